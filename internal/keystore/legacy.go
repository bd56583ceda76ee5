package keystore

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/collider/frost-wallet-node/internal/errs"
)

// legacyDeviceEntry is one device's participation row in a legacy index.
type legacyDeviceEntry struct {
	DeviceID string `json:"device_id"`
}

// legacyWalletInfo is one wallet's row in the legacy keystore-wide index.
type legacyWalletInfo struct {
	WalletID          string              `json:"wallet_id"`
	CurveType         string              `json:"curve_type"`
	Blockchain        string              `json:"blockchain"`
	PublicAddress     string              `json:"public_address"`
	Blockchains       []BlockchainAddress `json:"blockchains"`
	Threshold         int                 `json:"threshold"`
	TotalParticipants int                 `json:"total_participants"`
	GroupPublicKey    string              `json:"group_public_key"`
	CreatedAt         int64               `json:"created_at"`
	Devices           []legacyDeviceEntry `json:"devices"`
}

type legacyIndex struct {
	Wallets []legacyWalletInfo `json:"wallets"`
}

// legacyWalletFileFields is the subset of a v1 wallet JSON file this code
// reads without needing the full v1 schema.
type legacyWalletFileFields struct {
	Version   string `json:"version"`
	Encrypted bool   `json:"encrypted"`
	Algorithm string `json:"algorithm"`
	Data      string `json:"data"`
}

// migrateLegacy detects a keystore-wide index.json one level above the
// per-device tree and rewrites every wallet belonging to this device as a
// v2 file, renaming migrated legacy artifacts with a .legacy suffix
// (never deleting). Already-v2 files are left untouched. Idempotent:
// running twice is a no-op the second time since index.json.legacy no
// longer matches the index.json check.
func (s *Store) migrateLegacy() error {
	indexPath := filepath.Join(s.basePath, "index.json")
	data, err := os.ReadFile(indexPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errs.Wrap(errs.Storage, "keystore.migrateLegacy", err)
	}

	var idx legacyIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return errs.Wrap(errs.CryptoDecode, "keystore.migrateLegacy", err)
	}

	s.log.Info("legacy keystore index found, migrating to v2", zap.String("path", indexPath))

	for _, w := range idx.Wallets {
		if !deviceParticipates(w, s.deviceID) {
			continue
		}
		if err := s.migrateOneWallet(w); err != nil {
			s.log.Warn("legacy wallet migration failed", zap.String("wallet_id", w.WalletID), zap.Error(err))
		}
	}

	legacyPath := indexPath + ".legacy"
	if err := os.Rename(indexPath, legacyPath); err != nil {
		s.log.Warn("failed to rename legacy index", zap.Error(err))
	}
	return nil
}

func deviceParticipates(w legacyWalletInfo, deviceID string) bool {
	for _, d := range w.Devices {
		if d.DeviceID == deviceID {
			return true
		}
	}
	return false
}

func participantIndexOf(w legacyWalletInfo, deviceID string) int {
	for i, d := range w.Devices {
		if d.DeviceID == deviceID {
			return i + 1 // 1-based
		}
	}
	return 1
}

func (s *Store) migrateOneWallet(w legacyWalletInfo) error {
	walletDir := filepath.Join(s.deviceDir(), w.CurveType)
	jsonPath := filepath.Join(walletDir, w.WalletID+".json")
	datPath := filepath.Join(walletDir, w.WalletID+".dat")

	if data, err := os.ReadFile(jsonPath); err == nil {
		var probe struct {
			Version string `json:"version"`
		}
		if json.Unmarshal(data, &probe) == nil && probe.Version == "2.0" {
			return nil // already migrated
		}
		var v1 legacyWalletFileFields
		if err := json.Unmarshal(data, &v1); err != nil {
			return errs.Wrap(errs.CryptoDecode, "keystore.migrateOneWallet", err)
		}
		return s.writeMigratedV2(w, v1.Algorithm, v1.Data)
	}

	if data, err := os.ReadFile(datPath); err == nil {
		encoded := base64.StdEncoding.EncodeToString(data)
		if err := s.writeMigratedV2(w, legacyAlgorithm, encoded); err != nil {
			return err
		}
		if err := os.Rename(datPath, datPath+".legacy"); err != nil {
			s.log.Warn("failed to rename migrated .dat file", zap.String("path", datPath), zap.Error(err))
		}
		return nil
	}

	return nil // no legacy payload found for this device; nothing to migrate
}

func (s *Store) writeMigratedV2(w legacyWalletInfo, algorithm, data string) error {
	blockchains := w.Blockchains
	if len(blockchains) == 0 && w.Blockchain != "" && w.PublicAddress != "" {
		format := "base58"
		var chainID *int64
		if w.Blockchain == "ethereum" {
			format = "EIP-55"
			id := int64(1)
			chainID = &id
		}
		blockchains = []BlockchainAddress{{
			Blockchain:    w.Blockchain,
			Network:       "mainnet",
			ChainID:       chainID,
			Address:       w.PublicAddress,
			AddressFormat: format,
			Enabled:       true,
		}}
	}

	meta := WalletMetadata{
		SessionID:         w.WalletID,
		DeviceID:          s.deviceID,
		CurveType:         w.CurveType,
		Blockchains:       blockchains,
		Threshold:         w.Threshold,
		TotalParticipants: w.TotalParticipants,
		ParticipantIndex:  participantIndexOf(w, s.deviceID),
		GroupPublicKey:    w.GroupPublicKey,
		CreatedAt:         time.Unix(w.CreatedAt, 0).UTC().Format(time.RFC3339),
		LastModified:      time.Now().UTC().Format(time.RFC3339),
	}

	wf := WalletFile{
		Version:   "2.0",
		Encrypted: true,
		Algorithm: algorithm,
		Data:      data,
		Metadata:  meta,
	}
	return s.writeFile(w.CurveType, w.WalletID, wf)
}
