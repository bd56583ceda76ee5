// Package ciphersuite is the opaque FROST capability set: two
// concrete curve implementations (secp256k1, ed25519) built on a single
// generic round-math engine. The DKG and signing engines never branch on
// curve; they hold a Suite value injected at session creation and call
// through it.
package ciphersuite

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/f3rmion/fy/frost"
	"github.com/f3rmion/fy/group"
	"github.com/mr-tron/base58"

	"github.com/collider/frost-wallet-node/internal/errs"
)

// Curve tags the two shipped ciphersuites.
type Curve string

const (
	CurveSecp256k1 Curve = "secp256k1"
	CurveEd25519   Curve = "ed25519"
)

// Identifier is a participant's FROST identifier, 1..N, non-zero.
type Identifier = uint16

// SecretR1 is the opaque secret state produced by DKGPart1: the
// participant's private polynomial and accumulated state across rounds.
type SecretR1 struct {
	participant *frost.Participant
	self        Identifier
	suite       *suite
	threshold   int
	total       int
}

// PublicR1 is the broadcastable public package from round 1 (Pedersen/
// Feldman commitments to the sender's polynomial coefficients).
type PublicR1 struct {
	data *frost.Round1Data
}

// SecretR2 carries the same stateful participant forward into round 3.
type SecretR2 struct {
	participant *frost.Participant
	self        Identifier
	suite       *suite
	threshold   int
	total       int
}

// PublicR2 is the per-recipient private share emitted by round 2.
type PublicR2 struct {
	data *frost.Round1PrivateData
}

// KeyPackage is this device's secret share plus enough metadata
// (curve, threshold, total) to reconstruct the FROST engine for signing.
type KeyPackage struct {
	Curve     Curve
	Threshold int
	Total     int
	share     *frost.KeyShare
}

// PublicKeyPackage is the group verifying key plus each identifier's public
// verifying share, derived from the round-1 broadcasts alone.
type PublicKeyPackage struct {
	Curve           Curve
	Threshold       int
	GroupKey        group.Point
	VerifyingShares map[Identifier]group.Point
}

// Nonces is the signer's private per-ceremony nonce pair.
type Nonces struct {
	nonce *frost.SigningNonce
}

// Commitment is the signer's round-1 signing commitment.
type Commitment struct {
	data *frost.SigningCommitment
}

// SigningPackage bundles the selected signers' commitments with the message
// to be signed.
type SigningPackage struct {
	Message     []byte
	Commitments map[Identifier]*Commitment
}

// SignatureShare is one signer's contribution to the aggregated signature.
type SignatureShare struct {
	data *frost.SignatureShare
}

// Signature is the final aggregated Schnorr signature.
type Signature struct {
	data *frost.Signature
}

// Suite is the capability set every engine programs against: dkg_part1..3,
// commit/sign/aggregate/verify, serialize/deserialize, and address
// derivation.
type Suite interface {
	Curve() Curve
	DKGPart1(id Identifier, n, t int, rng io.Reader) (*SecretR1, *PublicR1, error)
	DKGPart2(secret *SecretR1, round1 map[Identifier]*PublicR1) (*SecretR2, map[Identifier]*PublicR2, error)
	DKGPart3(secret *SecretR2, round1 map[Identifier]*PublicR1, round2 map[Identifier]*PublicR2) (*KeyPackage, *PublicKeyPackage, error)

	SigningCommit(kp *KeyPackage, rng io.Reader) (*Nonces, *Commitment, error)
	BuildSigningPackage(commitments map[Identifier]*Commitment, message []byte) (*SigningPackage, error)
	Sign(pkg *SigningPackage, nonces *Nonces, kp *KeyPackage) (*SignatureShare, error)
	Aggregate(pkg *SigningPackage, shares map[Identifier]*SignatureShare, pub *PublicKeyPackage) (*Signature, error)
	Verify(pub *PublicKeyPackage, message []byte, sig *Signature) bool

	AddressFromPublicKeyPackage(pub *PublicKeyPackage, chain string) (string, error)

	SerializeRound1(pkg *PublicR1) ([]byte, error)
	DeserializeRound1(data []byte) (*PublicR1, error)
	SerializeRound2(pkg *PublicR2) ([]byte, error)
	DeserializeRound2(data []byte) (*PublicR2, error)
	SerializeCommitment(c *Commitment) ([]byte, error)
	DeserializeCommitment(data []byte) (*Commitment, error)
	SerializeSignatureShare(sh *SignatureShare) ([]byte, error)
	DeserializeSignatureShare(data []byte) (*SignatureShare, error)
	SerializeSignature(sig *Signature) ([]byte, error)
	DeserializeSignature(data []byte) (*Signature, error)
	SerializeKeyPackage(kp *KeyPackage) ([]byte, error)
	DeserializeKeyPackage(data []byte) (*KeyPackage, error)
	SerializePublicKeyPackage(pub *PublicKeyPackage) ([]byte, error)
	DeserializePublicKeyPackage(data []byte) (*PublicKeyPackage, error)
}

// NewSecp256k1Suite returns the Ethereum-family ciphersuite.
func NewSecp256k1Suite() Suite { return &suite{curve: CurveSecp256k1, g: Secp256k1} }

// NewEd25519Suite returns the Solana-family ciphersuite.
func NewEd25519Suite() Suite { return &suite{curve: CurveEd25519, g: Ed25519} }

type suite struct {
	curve Curve
	g     group.Group
}

func (s *suite) Curve() Curve { return s.curve }

func (s *suite) engine(t, n int) (*frost.FROST, error) {
	f, err := frost.New(s.g, t, n)
	if err != nil {
		return nil, errs.Wrap(errs.Config, "ciphersuite.engine", err)
	}
	return f, nil
}

// identifierScalar mirrors the generic engine's internal big-endian
// single-byte encoding of small integer identifiers, so verifying shares
// derived outside frost.Participant (see PublicKeyPackage construction)
// agree with identifiers frost.NewParticipant produces internally. This
// bounds total participants to 255, well above any human DKG ceremony.
func identifierScalar(g group.Group, id Identifier) group.Scalar {
	buf := make([]byte, 32)
	binary.BigEndian.PutUint16(buf[30:], id)
	s := g.NewScalar()
	s.SetBytes(buf)
	return s
}

func (s *suite) DKGPart1(id Identifier, n, t int, rng io.Reader) (*SecretR1, *PublicR1, error) {
	f, err := s.engine(t, n)
	if err != nil {
		return nil, nil, err
	}
	p, err := f.NewParticipant(rng, int(id))
	if err != nil {
		return nil, nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.DKGPart1", err)
	}
	return &SecretR1{participant: p, self: id, suite: s, threshold: t, total: n}, &PublicR1{data: p.Round1Broadcast()}, nil
}

func (s *suite) DKGPart2(secret *SecretR1, round1 map[Identifier]*PublicR1) (*SecretR2, map[Identifier]*PublicR2, error) {
	f, err := s.engine(secret.threshold, secret.total)
	if err != nil {
		return nil, nil, err
	}
	out := make(map[Identifier]*PublicR2, len(round1))
	for recipientID := range round1 {
		priv := f.Round1PrivateSend(secret.participant, int(recipientID))
		out[recipientID] = &PublicR2{data: priv}
	}
	return &SecretR2{participant: secret.participant, self: secret.self, suite: s, threshold: secret.threshold, total: secret.total}, out, nil
}

// DKGPart3 bridges this package's "round1 excludes self" parameter shape
// onto the underlying engine's Finalize, which requires allBroadcasts to
// contain every one of the N participants' Round1Data including the
// caller's own — Finalize sums Commitments[0] across allBroadcasts to
// produce GroupKey, so omitting self would make every participant derive a
// different (wrong) group key.
func (s *suite) DKGPart3(secret *SecretR2, round1 map[Identifier]*PublicR1, round2 map[Identifier]*PublicR2) (*KeyPackage, *PublicKeyPackage, error) {
	total := len(round1) + 1
	f, err := s.engine(secret.threshold, total)
	if err != nil {
		return nil, nil, err
	}

	for senderID, priv := range round2 {
		senderBroadcast, ok := round1[senderID]
		if !ok {
			return nil, nil, errs.New(errs.RosterMismatch, "ciphersuite.DKGPart3")
		}
		if err := f.Round2ReceiveShare(secret.participant, priv.data, senderBroadcast.data.Commitments); err != nil {
			return nil, nil, errs.Wrap(errs.DkgIntegrity, "ciphersuite.DKGPart3", err)
		}
	}

	broadcasts := make([]*frost.Round1Data, 0, total)
	broadcasts = append(broadcasts, secret.participant.Round1Broadcast())
	for _, pr1 := range round1 {
		broadcasts = append(broadcasts, pr1.data)
	}

	share, err := f.Finalize(secret.participant, broadcasts)
	if err != nil {
		return nil, nil, errs.Wrap(errs.DkgIntegrity, "ciphersuite.DKGPart3", err)
	}

	verifyingShares := make(map[Identifier]group.Point, total)
	verifyingShares[secret.self] = s.derivePublicShare(secret.self, broadcasts)
	for id := range round1 {
		verifyingShares[id] = s.derivePublicShare(id, broadcasts)
	}

	kp := &KeyPackage{Curve: s.curve, Threshold: secret.threshold, Total: total, share: share}
	pub := &PublicKeyPackage{Curve: s.curve, Threshold: secret.threshold, GroupKey: share.GroupKey, VerifyingShares: verifyingShares}
	return kp, pub, nil
}

// derivePublicShare evaluates every broadcast's commitment polynomial at id
// and sums the results, producing identifier id's public verifying share
// without needing any additional message beyond the round-1 broadcasts
// (Feldman VSS public evaluation — the same check Round2ReceiveShare
// performs against a single sender, generalized across all senders).
func (s *suite) derivePublicShare(id Identifier, broadcasts []*frost.Round1Data) group.Point {
	idScalar := identifierScalar(s.g, id)
	total := s.g.NewPoint()
	for _, broadcast := range broadcasts {
		termSum := s.g.NewPoint()
		xPower := identifierScalar(s.g, 1)
		for _, commitment := range broadcast.Commitments {
			term := s.g.NewPoint().ScalarMult(xPower, commitment)
			termSum = s.g.NewPoint().Add(termSum, term)
			xPower = s.g.NewScalar().Mul(xPower, idScalar)
		}
		total = s.g.NewPoint().Add(total, termSum)
	}
	return total
}

func (s *suite) SigningCommit(kp *KeyPackage, rng io.Reader) (*Nonces, *Commitment, error) {
	f, err := s.engine(kp.Threshold, kp.Total)
	if err != nil {
		return nil, nil, err
	}
	nonce, commitment, err := f.SignRound1(rng, kp.share)
	if err != nil {
		return nil, nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.SigningCommit", err)
	}
	return &Nonces{nonce: nonce}, &Commitment{data: commitment}, nil
}

func (s *suite) BuildSigningPackage(commitments map[Identifier]*Commitment, message []byte) (*SigningPackage, error) {
	if len(commitments) == 0 {
		return nil, errs.New(errs.Config, "ciphersuite.BuildSigningPackage")
	}
	return &SigningPackage{Message: message, Commitments: commitments}, nil
}

func (s *suite) Sign(pkg *SigningPackage, nonces *Nonces, kp *KeyPackage) (*SignatureShare, error) {
	f, err := s.engine(kp.Threshold, kp.Total)
	if err != nil {
		return nil, err
	}
	share, err := f.SignRound2(kp.share, nonces.nonce, pkg.Message, commitmentSlice(pkg.Commitments))
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "ciphersuite.Sign", err)
	}
	return &SignatureShare{data: share}, nil
}

func (s *suite) Aggregate(pkg *SigningPackage, shares map[Identifier]*SignatureShare, pub *PublicKeyPackage) (*Signature, error) {
	f, err := s.engine(pub.Threshold, len(pub.VerifyingShares))
	if err != nil {
		return nil, err
	}
	shareSlice := make([]*frost.SignatureShare, 0, len(shares))
	for _, sh := range shares {
		shareSlice = append(shareSlice, sh.data)
	}
	sig, err := f.Aggregate(pkg.Message, commitmentSlice(pkg.Commitments), shareSlice)
	if err != nil {
		return nil, errs.Wrap(errs.DkgIntegrity, "ciphersuite.Aggregate", err)
	}
	if !f.Verify(pkg.Message, sig, pub.GroupKey) {
		return nil, errs.New(errs.DkgIntegrity, "ciphersuite.Aggregate")
	}
	return &Signature{data: sig}, nil
}

func (s *suite) Verify(pub *PublicKeyPackage, message []byte, sig *Signature) bool {
	f, err := s.engine(pub.Threshold, len(pub.VerifyingShares))
	if err != nil {
		return false
	}
	return f.Verify(message, sig.data, pub.GroupKey)
}

func commitmentSlice(m map[Identifier]*Commitment) []*frost.SigningCommitment {
	out := make([]*frost.SigningCommitment, 0, len(m))
	for _, c := range m {
		out = append(out, c.data)
	}
	return out
}

// evmChains maps supported EVM chains to their chain-id: one
// BlockchainAddress per EVM chain. Only ethereum is enabled by default; the
// others are produced but flagged disabled by the keystore layer.
var evmChains = map[string]int64{
	"ethereum":  1,
	"bsc":       56,
	"polygon":   137,
	"arbitrum":  42161,
	"optimism":  10,
	"avalanche": 43114,
}

// AddressFromPublicKeyPackage derives the display address for chain from
// the group verifying key: Keccak-256(X||Y)[12:] hex-prefixed for any EVM
// chain on secp256k1, base58 of the compressed point for "solana" on
// ed25519.
func (s *suite) AddressFromPublicKeyPackage(pub *PublicKeyPackage, chain string) (string, error) {
	switch s.curve {
	case CurveSecp256k1:
		if _, ok := evmChains[chain]; !ok {
			return "", errs.New(errs.Config, "ciphersuite.AddressFromPublicKeyPackage")
		}
		xy := UncompressedXY(pub.GroupKey)
		hash := crypto.Keccak256(xy)
		return fmt.Sprintf("0x%x", hash[12:]), nil
	case CurveEd25519:
		if chain != "solana" {
			return "", errs.New(errs.Config, "ciphersuite.AddressFromPublicKeyPackage")
		}
		return base58.Encode(pub.GroupKey.Bytes()), nil
	default:
		return "", errs.New(errs.Config, "ciphersuite.AddressFromPublicKeyPackage")
	}
}

// SupportedEVMChains lists the EVM chain tags and chain-ids a wallet file
// carries a BlockchainAddress entry for.
func SupportedEVMChains() map[string]int64 {
	out := make(map[string]int64, len(evmChains))
	for k, v := range evmChains {
		out[k] = v
	}
	return out
}
