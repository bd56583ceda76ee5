package ciphersuite

import (
	"encoding/binary"
	"encoding/json"

	"github.com/f3rmion/fy/frost"
	"github.com/f3rmion/fy/group"

	"github.com/collider/frost-wallet-node/internal/errs"
)

// Wire encodings are flat JSON of hex-free raw bytes (base64 via
// encoding/json's []byte handling); scalars/points round-trip through their
// own Bytes()/SetBytes() canonical encodings so the wire format never
// depends on curve-specific struct layout.

type wireRound1 struct {
	ID          []byte   `json:"id"`
	Commitments [][]byte `json:"commitments"`
}

// SerializeRound1 encodes a PublicR1 package to opaque wire bytes.
func (s *suite) SerializeRound1(pkg *PublicR1) ([]byte, error) {
	w := wireRound1{ID: pkg.data.ID.Bytes()}
	for _, c := range pkg.data.Commitments {
		w.Commitments = append(w.Commitments, c.Bytes())
	}
	out, err := json.Marshal(w)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.SerializeRound1", err)
	}
	return out, nil
}

// DeserializeRound1 decodes a wire PublicR1 package.
func (s *suite) DeserializeRound1(data []byte) (*PublicR1, error) {
	var w wireRound1
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DeserializeRound1", err)
	}
	id := s.g.NewScalar()
	if _, err := id.SetBytes(w.ID); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DeserializeRound1", err)
	}
	commitments := make([]group.Point, 0, len(w.Commitments))
	for _, cb := range w.Commitments {
		p := s.g.NewPoint()
		if _, err := p.SetBytes(cb); err != nil {
			return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DeserializeRound1", err)
		}
		commitments = append(commitments, p)
	}
	return &PublicR1{data: &frost.Round1Data{ID: id, Commitments: commitments}}, nil
}

type wireRound2 struct {
	FromID []byte `json:"from_id"`
	ToID   []byte `json:"to_id"`
	Share  []byte `json:"share"`
}

// SerializeRound2 encodes a PublicR2 (private share) package to wire bytes.
func (s *suite) SerializeRound2(pkg *PublicR2) ([]byte, error) {
	w := wireRound2{
		FromID: pkg.data.FromID.Bytes(),
		ToID:   pkg.data.ToID.Bytes(),
		Share:  pkg.data.Share.Bytes(),
	}
	out, err := json.Marshal(w)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.SerializeRound2", err)
	}
	return out, nil
}

// DeserializeRound2 decodes a wire PublicR2 package.
func (s *suite) DeserializeRound2(data []byte) (*PublicR2, error) {
	var w wireRound2
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DeserializeRound2", err)
	}
	fromID := s.g.NewScalar()
	if _, err := fromID.SetBytes(w.FromID); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DeserializeRound2", err)
	}
	toID := s.g.NewScalar()
	if _, err := toID.SetBytes(w.ToID); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DeserializeRound2", err)
	}
	share := s.g.NewScalar()
	if _, err := share.SetBytes(w.Share); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DeserializeRound2", err)
	}
	return &PublicR2{data: &frost.Round1PrivateData{FromID: fromID, ToID: toID, Share: share}}, nil
}

type wireCommitment struct {
	ID      []byte `json:"id"`
	Hiding  []byte `json:"hiding"`
	Binding []byte `json:"binding"`
}

// SerializeCommitment encodes a signing Commitment to wire bytes.
func (s *suite) SerializeCommitment(c *Commitment) ([]byte, error) {
	w := wireCommitment{
		ID:      c.data.ID.Bytes(),
		Hiding:  c.data.HidingPoint.Bytes(),
		Binding: c.data.BindingPoint.Bytes(),
	}
	out, err := json.Marshal(w)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.SerializeCommitment", err)
	}
	return out, nil
}

// DeserializeCommitment decodes a wire signing Commitment.
func (s *suite) DeserializeCommitment(data []byte) (*Commitment, error) {
	var w wireCommitment
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DeserializeCommitment", err)
	}
	id := s.g.NewScalar()
	if _, err := id.SetBytes(w.ID); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DeserializeCommitment", err)
	}
	hiding := s.g.NewPoint()
	if _, err := hiding.SetBytes(w.Hiding); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DeserializeCommitment", err)
	}
	binding := s.g.NewPoint()
	if _, err := binding.SetBytes(w.Binding); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DeserializeCommitment", err)
	}
	return &Commitment{data: &frost.SigningCommitment{ID: id, HidingPoint: hiding, BindingPoint: binding}}, nil
}

type wireShare struct {
	ID []byte `json:"id"`
	Z  []byte `json:"z"`
}

// SerializeSignatureShare encodes a SignatureShare to wire bytes.
func (s *suite) SerializeSignatureShare(sh *SignatureShare) ([]byte, error) {
	w := wireShare{ID: sh.data.ID.Bytes(), Z: sh.data.Z.Bytes()}
	out, err := json.Marshal(w)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.SerializeSignatureShare", err)
	}
	return out, nil
}

// DeserializeSignatureShare decodes a wire SignatureShare.
func (s *suite) DeserializeSignatureShare(data []byte) (*SignatureShare, error) {
	var w wireShare
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DeserializeSignatureShare", err)
	}
	id := s.g.NewScalar()
	if _, err := id.SetBytes(w.ID); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DeserializeSignatureShare", err)
	}
	z := s.g.NewScalar()
	if _, err := z.SetBytes(w.Z); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DeserializeSignatureShare", err)
	}
	return &SignatureShare{data: &frost.SignatureShare{ID: id, Z: z}}, nil
}

type wireSignature struct {
	R []byte `json:"r"`
	Z []byte `json:"z"`
}

// SerializeSignature encodes the final aggregated Signature to wire bytes.
func (s *suite) SerializeSignature(sig *Signature) ([]byte, error) {
	w := wireSignature{R: sig.data.R.Bytes(), Z: sig.data.Z.Bytes()}
	out, err := json.Marshal(w)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.SerializeSignature", err)
	}
	return out, nil
}

// DeserializeSignature decodes a wire Signature.
func (s *suite) DeserializeSignature(data []byte) (*Signature, error) {
	var w wireSignature
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DeserializeSignature", err)
	}
	r := s.g.NewPoint()
	if _, err := r.SetBytes(w.R); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DeserializeSignature", err)
	}
	z := s.g.NewScalar()
	if _, err := z.SetBytes(w.Z); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DeserializeSignature", err)
	}
	return &Signature{data: &frost.Signature{R: r, Z: z}}, nil
}

// wireKeyPackage is the persisted-to-disk shape of a KeyPackage: the share
// bundle the keystore (C7) encrypts and writes to a wallet file's data
// field (after decryption).
type wireKeyPackage struct {
	Curve     string `json:"curve"`
	Threshold int    `json:"threshold"`
	Total     int    `json:"total"`
	ID        []byte `json:"id"`
	SecretKey []byte `json:"secret_key"`
	PublicKey []byte `json:"public_key"`
	GroupKey  []byte `json:"group_key"`
}

// SerializeKeyPackage encodes a KeyPackage for persistence.
func (s *suite) SerializeKeyPackage(kp *KeyPackage) ([]byte, error) {
	w := wireKeyPackage{
		Curve:     string(kp.Curve),
		Threshold: kp.Threshold,
		Total:     kp.Total,
		ID:        kp.share.ID.Bytes(),
		SecretKey: kp.share.SecretKey.Bytes(),
		PublicKey: kp.share.PublicKey.Bytes(),
		GroupKey:  kp.share.GroupKey.Bytes(),
	}
	out, err := json.Marshal(w)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.SerializeKeyPackage", err)
	}
	return out, nil
}

// DeserializeKeyPackage decodes a persisted KeyPackage. The suite the
// package is deserialized through must match the curve the package was
// serialized under; callers (the keystore) select the suite from the
// wallet file's own metadata.curve field before calling this.
func (s *suite) DeserializeKeyPackage(data []byte) (*KeyPackage, error) {
	var w wireKeyPackage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DeserializeKeyPackage", err)
	}
	if Curve(w.Curve) != s.curve {
		return nil, errs.New(errs.RosterMismatch, "ciphersuite.DeserializeKeyPackage")
	}
	id := s.g.NewScalar()
	if _, err := id.SetBytes(w.ID); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DeserializeKeyPackage", err)
	}
	sk := s.g.NewScalar()
	if _, err := sk.SetBytes(w.SecretKey); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DeserializeKeyPackage", err)
	}
	pk := s.g.NewPoint()
	if _, err := pk.SetBytes(w.PublicKey); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DeserializeKeyPackage", err)
	}
	gk := s.g.NewPoint()
	if _, err := gk.SetBytes(w.GroupKey); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DeserializeKeyPackage", err)
	}
	return &KeyPackage{
		Curve:     s.curve,
		Threshold: w.Threshold,
		Total:     w.Total,
		share:     &frost.KeyShare{ID: id, SecretKey: sk, PublicKey: pk, GroupKey: gk},
	}, nil
}

// wirePublicKeyPackage is the shape a PublicKeyPackage serializes to,
// needed so all signers (not just the one holding the KeyPackage) can
// reconstruct verifying shares for signature verification.
type wirePublicKeyPackage struct {
	Curve           string            `json:"curve"`
	Threshold       int               `json:"threshold"`
	GroupKey        []byte            `json:"group_key"`
	VerifyingShares map[uint16][]byte `json:"verifying_shares"`
}

// SerializePublicKeyPackage encodes a PublicKeyPackage for persistence or
// transmission to other devices.
func (s *suite) SerializePublicKeyPackage(pub *PublicKeyPackage) ([]byte, error) {
	w := wirePublicKeyPackage{
		Curve:           string(pub.Curve),
		Threshold:       pub.Threshold,
		GroupKey:        pub.GroupKey.Bytes(),
		VerifyingShares: make(map[uint16][]byte, len(pub.VerifyingShares)),
	}
	for id, p := range pub.VerifyingShares {
		w.VerifyingShares[id] = p.Bytes()
	}
	out, err := json.Marshal(w)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.SerializePublicKeyPackage", err)
	}
	return out, nil
}

// DeserializePublicKeyPackage decodes a persisted/transmitted
// PublicKeyPackage through this suite's group.
func (s *suite) DeserializePublicKeyPackage(data []byte) (*PublicKeyPackage, error) {
	var w wirePublicKeyPackage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DeserializePublicKeyPackage", err)
	}
	if Curve(w.Curve) != s.curve {
		return nil, errs.New(errs.RosterMismatch, "ciphersuite.DeserializePublicKeyPackage")
	}
	gk := s.g.NewPoint()
	if _, err := gk.SetBytes(w.GroupKey); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DeserializePublicKeyPackage", err)
	}
	shares := make(map[Identifier]group.Point, len(w.VerifyingShares))
	for id, b := range w.VerifyingShares {
		p := s.g.NewPoint()
		if _, err := p.SetBytes(b); err != nil {
			return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DeserializePublicKeyPackage", err)
		}
		shares[id] = p
	}
	return &PublicKeyPackage{Curve: s.curve, Threshold: w.Threshold, GroupKey: gk, VerifyingShares: shares}, nil
}

// identifierBytes renders an Identifier in the fixed 2-byte big-endian form
// used on the wire for SignerSelection's selected-signers[identifier-bytes].
func identifierBytes(id Identifier) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, id)
	return buf
}

// identifierFromBytes parses the 2-byte big-endian form back to an Identifier.
func identifierFromBytes(b []byte) (Identifier, error) {
	if len(b) != 2 {
		return 0, errs.New(errs.CryptoDecode, "ciphersuite.identifierFromBytes")
	}
	return binary.BigEndian.Uint16(b), nil
}

// IdentifierBytes and IdentifierFromBytes are the exported wire encodings
// for an Identifier, used by wireproto's SignerSelection message.
func IdentifierBytes(id Identifier) []byte            { return identifierBytes(id) }
func IdentifierFromBytes(b []byte) (Identifier, error) { return identifierFromBytes(b) }
