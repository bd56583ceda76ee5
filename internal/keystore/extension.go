package keystore

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/collider/frost-wallet-node/internal/ciphersuite"
	"github.com/collider/frost-wallet-node/internal/errs"
)

const extensionAlgorithm = "AES-256-GCM-PBKDF2"

// ExtensionKeyShare is the browser-extension-compatible export shape: base64
// key material plus both chain addresses populated where applicable, so the
// extension never needs to re-derive anything from the raw group key.
type ExtensionKeyShare struct {
	KeyPackage       string `json:"keyPackage"`
	PublicKeyPackage string `json:"publicKeyPackage"`
	GroupPublicKey   string `json:"groupPublicKey"`
	SessionID        string `json:"sessionId"`
	DeviceID         string `json:"deviceId"`
	ParticipantIndex int    `json:"participantIndex"`
	Threshold        int    `json:"threshold"`
	TotalParticipant int    `json:"totalParticipants"`
	Curve            string `json:"curve"`
	EthereumAddress  string `json:"ethereumAddress,omitempty"`
	SolanaAddress    string `json:"solanaAddress,omitempty"`
	CreatedAt        int64  `json:"createdAt"`
}

// ExtensionEncryptedKeyShare is the encrypted envelope the extension reads
// and writes, independent of this keystore's own WalletFile shape.
type ExtensionEncryptedKeyShare struct {
	WalletID   string `json:"walletId"`
	Algorithm  string `json:"algorithm"`
	Salt       string `json:"salt"`
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
}

// Export converts a native v2 wallet into the extension's encrypted format,
// re-encrypting under the same PBKDF2/AES-GCM scheme but with the fields
// named and shaped the way the extension expects them.
func (s *Store) Export(walletID string, suite ciphersuite.Suite) (*ExtensionEncryptedKeyShare, error) {
	s.mu.Lock()
	meta, ok := s.cache[walletID]
	s.mu.Unlock()
	if !ok {
		return nil, errs.New(errs.NotFound, "keystore.Store.Export")
	}

	kp, pub, _, err := s.Load(walletID, suite)
	if err != nil {
		return nil, err
	}

	keyPkgBytes, err := suite.SerializeKeyPackage(kp)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "keystore.Store.Export", err)
	}
	pubPkgBytes, err := suite.SerializePublicKeyPackage(pub)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "keystore.Store.Export", err)
	}

	share := ExtensionKeyShare{
		KeyPackage:       base64.StdEncoding.EncodeToString(keyPkgBytes),
		PublicKeyPackage: base64.StdEncoding.EncodeToString(pubPkgBytes),
		GroupPublicKey:   meta.GroupPublicKey,
		SessionID:        meta.SessionID,
		DeviceID:         meta.DeviceID,
		ParticipantIndex: meta.ParticipantIndex,
		Threshold:        meta.Threshold,
		TotalParticipant: meta.TotalParticipants,
		Curve:            meta.CurveType,
		CreatedAt:        time.Now().UnixMilli(),
	}
	for _, b := range meta.Blockchains {
		switch b.Blockchain {
		case "ethereum":
			share.EthereumAddress = b.Address
		case "solana":
			share.SolanaAddress = b.Address
		}
	}

	plaintext, err := json.Marshal(share)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "keystore.Store.Export", err)
	}
	blob, err := encrypt(plaintext, s.password)
	if err != nil {
		return nil, err
	}

	return &ExtensionEncryptedKeyShare{
		WalletID:   walletID,
		Algorithm:  extensionAlgorithm,
		Salt:       base64.StdEncoding.EncodeToString(blob.salt),
		IV:         base64.StdEncoding.EncodeToString(blob.nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(blob.ciphertext),
	}, nil
}

// Import decrypts an extension-format encrypted key share, validates its
// curve tag against one of the two supported ciphersuites, and re-encrypts
// it as a native v2 wallet file.
func (s *Store) Import(enc *ExtensionEncryptedKeyShare) (*WalletMetadata, error) {
	salt, err := base64.StdEncoding.DecodeString(enc.Salt)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "keystore.Store.Import", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(enc.IV)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "keystore.Store.Import", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(enc.Ciphertext)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "keystore.Store.Import", err)
	}

	plaintext, err := decrypt(blob{salt: salt, nonce: nonce, ciphertext: ciphertext}, s.password)
	if err != nil {
		return nil, err
	}

	var share ExtensionKeyShare
	if err := json.Unmarshal(plaintext, &share); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "keystore.Store.Import", err)
	}

	var suite ciphersuite.Suite
	switch ciphersuite.Curve(share.Curve) {
	case ciphersuite.CurveSecp256k1:
		suite = ciphersuite.NewSecp256k1Suite()
	case ciphersuite.CurveEd25519:
		suite = ciphersuite.NewEd25519Suite()
	default:
		return nil, errs.New(errs.Config, "keystore.Store.Import")
	}

	keyPkgBytes, err := base64.StdEncoding.DecodeString(share.KeyPackage)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "keystore.Store.Import", err)
	}
	pubPkgBytes, err := base64.StdEncoding.DecodeString(share.PublicKeyPackage)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "keystore.Store.Import", err)
	}
	kp, err := suite.DeserializeKeyPackage(keyPkgBytes)
	if err != nil {
		return nil, err
	}
	pub, err := suite.DeserializePublicKeyPackage(pubPkgBytes)
	if err != nil {
		return nil, err
	}

	return s.Create(share.SessionID, suite, kp, pub, share.Threshold, share.TotalParticipant, share.ParticipantIndex)
}
