// Package keystore persists wallet key shares to disk in a format
// bit-compatible with a sibling browser-extension keystore: PBKDF2-HMAC-
// SHA256 (100 000 iterations) key derivation over AES-256-GCM, one v2 JSON
// file per wallet under <base>/<device-id>/<curve>/<wallet-id>.json.
package keystore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/collider/frost-wallet-node/internal/ciphersuite"
	"github.com/collider/frost-wallet-node/internal/errs"
)

// WalletFile is the on-disk v2 wallet format.
type WalletFile struct {
	Version   string          `json:"version"`
	Encrypted bool            `json:"encrypted"`
	Algorithm string          `json:"algorithm"`
	Data      string          `json:"data"` // base64 ciphertext blob
	Metadata  WalletMetadata  `json:"metadata"`
}

// BlockchainAddress is one chain's derived address entry.
type BlockchainAddress struct {
	Blockchain    string `json:"blockchain"`
	Network       string `json:"network"`
	ChainID       *int64 `json:"chain_id,omitempty"`
	Address       string `json:"address"`
	AddressFormat string `json:"address_format"`
	Enabled       bool   `json:"enabled"`
}

// WalletMetadata is the v2 file's embedded, unencrypted metadata block.
type WalletMetadata struct {
	SessionID         string              `json:"session_id"`
	DeviceID          string              `json:"device_id"`
	CurveType         string              `json:"curve_type"`
	Blockchains       []BlockchainAddress `json:"blockchains"`
	Threshold         int                 `json:"threshold"`
	TotalParticipants int                 `json:"total_participants"`
	ParticipantIndex  int                 `json:"participant_index"`
	GroupPublicKey    string              `json:"group_public_key"`
	CreatedAt         string              `json:"created_at"`
	LastModified      string              `json:"last_modified"`
}

// shareBundle is the plaintext encrypted under Data: the serialized FROST
// key material this device holds for the wallet.
type shareBundle struct {
	KeyPackage       []byte `json:"key_package"`
	PublicKeyPackage []byte `json:"public_key_package"`
}

const legacyAlgorithm = "AES-256-GCM"

var walletIDSanitizer = regexp.MustCompile(`[\\/:]`)

// Store is one device's keystore: exclusive mutation under a single mutex,
// with an in-memory metadata cache built on open and updated entry by entry
// on every create/delete.
type Store struct {
	mu       sync.Mutex
	basePath string
	deviceID string
	password []byte
	cache    map[string]WalletMetadata // wallet-id -> metadata
	mirror   *RemoteMirror             // optional off-device backup, nil unless AttachMirror is called
	log      *zap.Logger
}

// Open creates (if absent) the device's wallet directory tree, migrates any
// legacy v1 files found, and builds the initial wallet-metadata cache.
func Open(basePath, deviceID, password string, log *zap.Logger) (*Store, error) {
	deviceDir := filepath.Join(basePath, deviceID)
	for _, curve := range []string{string(ciphersuite.CurveSecp256k1), string(ciphersuite.CurveEd25519)} {
		if err := os.MkdirAll(filepath.Join(deviceDir, curve), 0o700); err != nil {
			return nil, errs.Wrap(errs.Storage, "keystore.Open", err)
		}
	}

	st := &Store{
		basePath: basePath,
		deviceID: deviceID,
		password: []byte(password),
		cache:    make(map[string]WalletMetadata),
		log:      log,
	}

	if err := st.migrateLegacy(); err != nil {
		return nil, err
	}
	if err := st.reloadCache(); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) deviceDir() string {
	return filepath.Join(s.basePath, s.deviceID)
}

func (s *Store) walletPath(curve, walletID string) string {
	return filepath.Join(s.deviceDir(), curve, walletID+".json")
}

func sanitizeWalletID(name string) string {
	return walletIDSanitizer.ReplaceAllString(name, "-")
}

// reloadCache scans <base>/<device-id>/*/*.json and rebuilds the in-memory
// metadata index. Must be called with s.mu held, or during Open before any
// other goroutine can see st.
func (s *Store) reloadCache() error {
	s.cache = make(map[string]WalletMetadata)
	for _, curve := range []string{string(ciphersuite.CurveSecp256k1), string(ciphersuite.CurveEd25519)} {
		dir := filepath.Join(s.deviceDir(), curve)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				s.log.Warn("skipping unreadable wallet file", zap.String("path", e.Name()), zap.Error(err))
				continue
			}
			var wf WalletFile
			if err := json.Unmarshal(data, &wf); err != nil {
				s.log.Warn("skipping unparseable wallet file", zap.String("path", e.Name()), zap.Error(err))
				continue
			}
			s.cache[wf.Metadata.SessionID] = wf.Metadata
		}
	}
	return nil
}

// Create encrypts and writes a new wallet file, deriving its blockchain
// address table from the group public key, and updates the cache.
func (s *Store) Create(walletName string, suite ciphersuite.Suite, kp *ciphersuite.KeyPackage, pub *ciphersuite.PublicKeyPackage, threshold, total, participantIndex int) (*WalletMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	walletID := sanitizeWalletID(walletName)
	if _, exists := s.cache[walletID]; exists {
		return nil, errs.New(errs.Config, "keystore.Store.Create")
	}

	curve := string(suite.Curve())

	keyPkgBytes, err := suite.SerializeKeyPackage(kp)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "keystore.Store.Create", err)
	}
	pubPkgBytes, err := suite.SerializePublicKeyPackage(pub)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "keystore.Store.Create", err)
	}

	addresses, err := deriveAddresses(suite, pub)
	if err != nil {
		return nil, err
	}

	groupKeyHex := fmt.Sprintf("%x", pub.GroupKey.Bytes())
	now := time.Now().UTC().Format(time.RFC3339)

	meta := WalletMetadata{
		SessionID:         walletID,
		DeviceID:          s.deviceID,
		CurveType:         curve,
		Blockchains:       addresses,
		Threshold:         threshold,
		TotalParticipants: total,
		ParticipantIndex:  participantIndex,
		GroupPublicKey:    groupKeyHex,
		CreatedAt:         now,
		LastModified:      now,
	}

	bundle := shareBundle{KeyPackage: keyPkgBytes, PublicKeyPackage: pubPkgBytes}
	plaintext, err := json.Marshal(bundle)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "keystore.Store.Create", err)
	}

	blob, err := encrypt(plaintext, s.password)
	if err != nil {
		return nil, err
	}

	wf := WalletFile{
		Version:   "2.0",
		Encrypted: true,
		Algorithm: legacyAlgorithm,
		Data:      encodeBlob(blob),
		Metadata:  meta,
	}

	if err := s.writeFile(curve, walletID, wf); err != nil {
		return nil, err
	}
	s.cache[walletID] = meta
	s.mirrorPush(curve, walletID, wf)
	s.log.Info("wallet created", zap.String("wallet_id", walletID), zap.String("curve", curve))
	return &meta, nil
}

func (s *Store) writeFile(curve, walletID string, wf WalletFile) error {
	data, err := json.MarshalIndent(wf, "", "  ")
	if err != nil {
		return errs.Wrap(errs.CryptoDecode, "keystore.Store.writeFile", err)
	}
	if err := os.MkdirAll(filepath.Join(s.deviceDir(), curve), 0o700); err != nil {
		return errs.Wrap(errs.Storage, "keystore.Store.writeFile", err)
	}
	if err := os.WriteFile(s.walletPath(curve, walletID), data, 0o600); err != nil {
		return errs.Wrap(errs.Storage, "keystore.Store.writeFile", err)
	}
	return nil
}

// Load decrypts a wallet's share bundle and reconstructs its KeyPackage and
// PublicKeyPackage via the given suite (the caller must already know the
// curve, e.g. from List's metadata, to pick the right suite).
func (s *Store) Load(walletID string, suite ciphersuite.Suite) (*ciphersuite.KeyPackage, *ciphersuite.PublicKeyPackage, *WalletMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok := s.cache[walletID]
	if !ok {
		return nil, nil, nil, errs.New(errs.NotFound, "keystore.Store.Load")
	}
	data, err := os.ReadFile(s.walletPath(meta.CurveType, walletID))
	if err != nil {
		return nil, nil, nil, errs.Wrap(errs.Storage, "keystore.Store.Load", err)
	}
	var wf WalletFile
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, nil, nil, errs.Wrap(errs.CryptoDecode, "keystore.Store.Load", err)
	}

	blob, err := decodeBlob(wf.Data)
	if err != nil {
		return nil, nil, nil, err
	}
	plaintext, err := decrypt(blob, s.password)
	if err != nil {
		return nil, nil, nil, err
	}
	var bundle shareBundle
	if err := json.Unmarshal(plaintext, &bundle); err != nil {
		return nil, nil, nil, errs.Wrap(errs.CryptoDecode, "keystore.Store.Load", err)
	}

	kp, err := suite.DeserializeKeyPackage(bundle.KeyPackage)
	if err != nil {
		return nil, nil, nil, err
	}
	pub, err := suite.DeserializePublicKeyPackage(bundle.PublicKeyPackage)
	if err != nil {
		return nil, nil, nil, err
	}
	return kp, pub, &meta, nil
}

// List returns a snapshot of cached wallet metadata.
func (s *Store) List() []WalletMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WalletMetadata, 0, len(s.cache))
	for _, m := range s.cache {
		out = append(out, m)
	}
	return out
}

// Delete removes a wallet file and its cache entry.
func (s *Store) Delete(walletID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.cache[walletID]
	if !ok {
		return errs.New(errs.NotFound, "keystore.Store.Delete")
	}
	if err := os.Remove(s.walletPath(meta.CurveType, walletID)); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.Storage, "keystore.Store.Delete", err)
	}
	delete(s.cache, walletID)
	s.mirrorDelete(walletID)
	return nil
}

// deriveAddresses computes the fixed chain set: every EVM chain for
// secp256k1 wallets (only "ethereum" enabled by default), or Solana alone
// for ed25519 wallets.
func deriveAddresses(suite ciphersuite.Suite, pub *ciphersuite.PublicKeyPackage) ([]BlockchainAddress, error) {
	switch suite.Curve() {
	case ciphersuite.CurveSecp256k1:
		chains := ciphersuite.SupportedEVMChains()
		out := make([]BlockchainAddress, 0, len(chains))
		for name, chainID := range chains {
			addr, err := suite.AddressFromPublicKeyPackage(pub, name)
			if err != nil {
				return nil, err
			}
			id := chainID
			out = append(out, BlockchainAddress{
				Blockchain:    name,
				Network:       "mainnet",
				ChainID:       &id,
				Address:       checksumEthereum(addr),
				AddressFormat: "EIP-55",
				Enabled:       name == "ethereum",
			})
		}
		return out, nil
	case ciphersuite.CurveEd25519:
		addr, err := suite.AddressFromPublicKeyPackage(pub, "solana")
		if err != nil {
			return nil, err
		}
		return []BlockchainAddress{{
			Blockchain:    "solana",
			Network:       "mainnet",
			Address:       addr,
			AddressFormat: "base58",
			Enabled:       true,
		}}, nil
	default:
		return nil, errs.New(errs.Config, "keystore.deriveAddresses")
	}
}
