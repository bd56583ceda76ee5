package ciphersuite

import (
	"crypto/sha256"
	"errors"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/f3rmion/fy/group"
)

// secp256k1Group implements group.Group over the secp256k1 curve, backing
// the Ethereum-family ciphersuite. Scalar arithmetic is delegated to
// secp256k1.ModNScalar (arithmetic mod the group order); point arithmetic to
// secp256k1.JacobianPoint.
type secp256k1Group struct{}

// Secp256k1 is the shared group.Group instance for the secp256k1 ciphersuite.
var Secp256k1 group.Group = secp256k1Group{}

type secp256k1Scalar struct {
	val secp256k1.ModNScalar
}

type secp256k1Point struct {
	val secp256k1.JacobianPoint
}

func (secp256k1Group) NewScalar() group.Scalar { return &secp256k1Scalar{} }

func (secp256k1Group) NewPoint() group.Point {
	p := &secp256k1Point{}
	p.val.X.SetInt(0)
	p.val.Y.SetInt(0)
	p.val.Z.SetInt(0) // Z=0 is the point at infinity in Jacobian coordinates
	return p
}

func (secp256k1Group) Generator() group.Point {
	p := &secp256k1Point{}
	var one secp256k1.ModNScalar
	one.SetInt(1)
	secp256k1.ScalarBaseMultNonConst(&one, &p.val)
	return p
}

func (secp256k1Group) RandomScalar(r io.Reader) (group.Scalar, error) {
	var buf [32]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		s := &secp256k1Scalar{}
		overflow := s.val.SetBytes(&buf)
		if overflow == 0 && !s.val.IsZero() {
			return s, nil
		}
		// overflow or zero draw: retry, matching rejection sampling for a
		// uniform scalar in [1, order).
	}
}

func (secp256k1Group) HashToScalar(data ...[]byte) (group.Scalar, error) {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	sum := h.Sum(nil)
	var buf [32]byte
	copy(buf[:], sum)
	s := &secp256k1Scalar{}
	s.val.SetBytes(&buf) // reduces mod the group order, overflow is expected and fine here
	return s, nil
}

func (secp256k1Group) Order() []byte {
	// secp256k1 group order n, big-endian.
	return []byte{
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xfe,
		0xba, 0xae, 0xdc, 0xe6, 0xaf, 0x48, 0xa0, 0x3b,
		0xbf, 0xd2, 0x5e, 0x8c, 0xd0, 0x36, 0x41, 0x41,
	}
}

func (s *secp256k1Scalar) asScalar(v group.Scalar) *secp256k1Scalar { return v.(*secp256k1Scalar) }

func (s *secp256k1Scalar) Add(a, b group.Scalar) group.Scalar {
	s.val.Add2(&s.asScalar(a).val, &s.asScalar(b).val)
	return s
}

func (s *secp256k1Scalar) Sub(a, b group.Scalar) group.Scalar {
	bv := s.asScalar(b).val
	bv.Negate()
	s.val.Add2(&s.asScalar(a).val, &bv)
	return s
}

func (s *secp256k1Scalar) Mul(a, b group.Scalar) group.Scalar {
	s.val.Mul2(&s.asScalar(a).val, &s.asScalar(b).val)
	return s
}

func (s *secp256k1Scalar) Negate(a group.Scalar) group.Scalar {
	s.val = s.asScalar(a).val
	s.val.Negate()
	return s
}

func (s *secp256k1Scalar) Invert(a group.Scalar) (group.Scalar, error) {
	av := s.asScalar(a)
	if av.val.IsZero() {
		return nil, errors.New("ciphersuite: cannot invert zero scalar")
	}
	s.val = av.val
	s.val.InverseNonConst()
	return s, nil
}

func (s *secp256k1Scalar) Set(a group.Scalar) group.Scalar {
	s.val = s.asScalar(a).val
	return s
}

func (s *secp256k1Scalar) Bytes() []byte {
	b := s.val.Bytes()
	return b[:]
}

func (s *secp256k1Scalar) SetBytes(data []byte) (group.Scalar, error) {
	if len(data) != 32 {
		return nil, errors.New("ciphersuite: secp256k1 scalar must be 32 bytes")
	}
	var buf [32]byte
	copy(buf[:], data)
	s.val.SetBytes(&buf)
	return s, nil
}

func (s *secp256k1Scalar) Equal(b group.Scalar) bool {
	return s.val.Equals(&s.asScalar(b).val)
}

func (s *secp256k1Scalar) IsZero() bool { return s.val.IsZero() }

func (p *secp256k1Point) asPoint(v group.Point) *secp256k1Point { return v.(*secp256k1Point) }

func (p *secp256k1Point) Add(a, b group.Point) group.Point {
	secp256k1.AddNonConst(&p.asPoint(a).val, &p.asPoint(b).val, &p.val)
	return p
}

func (p *secp256k1Point) Sub(a, b group.Point) group.Point {
	var negB secp256k1.JacobianPoint
	negB = p.asPoint(b).val
	negB.Y.Negate(1)
	negB.Y.Normalize()
	secp256k1.AddNonConst(&p.asPoint(a).val, &negB, &p.val)
	return p
}

func (p *secp256k1Point) Negate(a group.Point) group.Point {
	p.val = p.asPoint(a).val
	p.val.Y.Negate(1)
	p.val.Y.Normalize()
	return p
}

func (p *secp256k1Point) ScalarMult(s group.Scalar, a group.Point) group.Point {
	sv := s.(*secp256k1Scalar)
	secp256k1.ScalarMultNonConst(&sv.val, &p.asPoint(a).val, &p.val)
	return p
}

func (p *secp256k1Point) Set(a group.Point) group.Point {
	p.val = p.asPoint(a).val
	return p
}

func (p *secp256k1Point) Bytes() []byte {
	affine := p.val
	affine.ToAffine()
	pub := secp256k1.NewPublicKey(&affine.X, &affine.Y)
	return pub.SerializeCompressed()
}

func (p *secp256k1Point) SetBytes(data []byte) (group.Point, error) {
	pub, err := secp256k1.ParsePubKey(data)
	if err != nil {
		return nil, err
	}
	pub.AsJacobian(&p.val)
	return p, nil
}

func (p *secp256k1Point) Equal(b group.Point) bool {
	left := p.val
	right := p.asPoint(b).val
	left.ToAffine()
	right.ToAffine()
	return left.X.Equals(&right.X) && left.Y.Equals(&right.Y) && !left.Z.IsZero() == !right.Z.IsZero()
}

func (p *secp256k1Point) IsIdentity() bool {
	affine := p.val
	affine.ToAffine()
	return affine.X.IsZero() && affine.Y.IsZero()
}

// UncompressedXY returns the 64-byte X||Y affine encoding used by the
// Ethereum address derivation (Keccak-256 over the uncompressed, unprefixed
// public key coordinates).
func UncompressedXY(p group.Point) []byte {
	sp := p.(*secp256k1Point)
	affine := sp.val
	affine.ToAffine()
	pub := secp256k1.NewPublicKey(&affine.X, &affine.Y)
	full := pub.SerializeUncompressed() // 0x04 || X || Y
	return full[1:]
}
