package ciphersuite

import (
	"crypto/sha512"
	"errors"
	"io"

	"filippo.io/edwards25519"
	"github.com/f3rmion/fy/group"
)

// ed25519Group implements group.Group over the Ed25519 curve, backing the
// Solana-family ciphersuite. Arithmetic is delegated entirely to
// filippo.io/edwards25519's constant-time Scalar/Point types.
type ed25519Group struct{}

// Ed25519 is the shared group.Group instance for the Ed25519 ciphersuite.
var Ed25519 group.Group = ed25519Group{}

type ed25519Scalar struct {
	val *edwards25519.Scalar
}

type ed25519Point struct {
	val *edwards25519.Point
}

func (ed25519Group) NewScalar() group.Scalar {
	return &ed25519Scalar{val: edwards25519.NewScalar()}
}

func (ed25519Group) NewPoint() group.Point {
	return &ed25519Point{val: edwards25519.NewIdentityPoint()}
}

func (ed25519Group) Generator() group.Point {
	return &ed25519Point{val: edwards25519.NewGeneratorPoint()}
}

func (ed25519Group) RandomScalar(r io.Reader) (group.Scalar, error) {
	var buf [64]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}
	s := edwards25519.NewScalar()
	if _, err := s.SetUniformBytes(buf[:]); err != nil {
		return nil, err
	}
	return &ed25519Scalar{val: s}, nil
}

func (ed25519Group) HashToScalar(data ...[]byte) (group.Scalar, error) {
	h := sha512.New()
	for _, d := range data {
		h.Write(d)
	}
	sum := h.Sum(nil) // 64 bytes, exactly what SetUniformBytes wants
	s := edwards25519.NewScalar()
	if _, err := s.SetUniformBytes(sum); err != nil {
		return nil, err
	}
	return &ed25519Scalar{val: s}, nil
}

func (ed25519Group) Order() []byte {
	// Ed25519 group order l, big-endian.
	return []byte{
		0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x14, 0xde, 0xf9, 0xde, 0xa2, 0xf7, 0x9c, 0xd6,
		0x58, 0x12, 0x63, 0x1a, 0x5c, 0xf5, 0xd3, 0xed,
	}
}

func as25519Scalar(v group.Scalar) *ed25519Scalar { return v.(*ed25519Scalar) }
func as25519Point(v group.Point) *ed25519Point     { return v.(*ed25519Point) }

func (s *ed25519Scalar) Add(a, b group.Scalar) group.Scalar {
	s.val.Add(as25519Scalar(a).val, as25519Scalar(b).val)
	return s
}

func (s *ed25519Scalar) Sub(a, b group.Scalar) group.Scalar {
	s.val.Subtract(as25519Scalar(a).val, as25519Scalar(b).val)
	return s
}

func (s *ed25519Scalar) Mul(a, b group.Scalar) group.Scalar {
	s.val.Multiply(as25519Scalar(a).val, as25519Scalar(b).val)
	return s
}

func (s *ed25519Scalar) Negate(a group.Scalar) group.Scalar {
	s.val.Negate(as25519Scalar(a).val)
	return s
}

func (s *ed25519Scalar) Invert(a group.Scalar) (group.Scalar, error) {
	av := as25519Scalar(a)
	zero := edwards25519.NewScalar()
	if av.val.Equal(zero) == 1 {
		return nil, errors.New("ciphersuite: cannot invert zero scalar")
	}
	s.val.Invert(av.val)
	return s, nil
}

func (s *ed25519Scalar) Set(a group.Scalar) group.Scalar {
	s.val.Set(as25519Scalar(a).val)
	return s
}

func (s *ed25519Scalar) Bytes() []byte { return s.val.Bytes() }

func (s *ed25519Scalar) SetBytes(data []byte) (group.Scalar, error) {
	if _, err := s.val.SetCanonicalBytes(data); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ed25519Scalar) Equal(b group.Scalar) bool {
	return s.val.Equal(as25519Scalar(b).val) == 1
}

func (s *ed25519Scalar) IsZero() bool {
	zero := edwards25519.NewScalar()
	return s.val.Equal(zero) == 1
}

func (p *ed25519Point) Add(a, b group.Point) group.Point {
	p.val.Add(as25519Point(a).val, as25519Point(b).val)
	return p
}

func (p *ed25519Point) Sub(a, b group.Point) group.Point {
	p.val.Subtract(as25519Point(a).val, as25519Point(b).val)
	return p
}

func (p *ed25519Point) Negate(a group.Point) group.Point {
	p.val.Negate(as25519Point(a).val)
	return p
}

func (p *ed25519Point) ScalarMult(s group.Scalar, a group.Point) group.Point {
	p.val.ScalarMult(as25519Scalar(s).val, as25519Point(a).val)
	return p
}

func (p *ed25519Point) Set(a group.Point) group.Point {
	p.val.Set(as25519Point(a).val)
	return p
}

func (p *ed25519Point) Bytes() []byte { return p.val.Bytes() }

func (p *ed25519Point) SetBytes(data []byte) (group.Point, error) {
	if _, err := p.val.SetBytes(data); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *ed25519Point) Equal(b group.Point) bool {
	return p.val.Equal(as25519Point(b).val) == 1
}

func (p *ed25519Point) IsIdentity() bool {
	return p.val.Equal(edwards25519.NewIdentityPoint()) == 1
}
