package keystore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/collider/frost-wallet-node/internal/errs"
)

// RemoteMirror is an optional off-device backup target for encrypted wallet
// files, keyed by (device_id, wallet_id). It never holds a password or
// plaintext share material — the blob it stores is the same base64
// salt‖nonce‖ciphertext payload already written under the wallet file's
// Data field, so a compromised database alone cannot recover a key share.
type RemoteMirror struct {
	db *sql.DB
}

// NewRemoteMirror connects to Postgres and ensures the mirror table exists.
func NewRemoteMirror(databaseURL string) (*RemoteMirror, error) {
	if !strings.Contains(databaseURL, "sslmode=") {
		if strings.Contains(databaseURL, "?") {
			databaseURL += "&sslmode=disable"
		} else {
			databaseURL += "?sslmode=disable"
		}
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "keystore.NewRemoteMirror", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, errs.Wrap(errs.Storage, "keystore.NewRemoteMirror", err)
	}

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS frost_wallet_mirror (
			device_id   VARCHAR(128) NOT NULL,
			wallet_id   VARCHAR(128) NOT NULL,
			curve_type  VARCHAR(32)  NOT NULL,
			wallet_file JSONB        NOT NULL,
			updated_at  TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			PRIMARY KEY (device_id, wallet_id)
		)
	`)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "keystore.NewRemoteMirror", err)
	}

	return &RemoteMirror{db: db}, nil
}

// Push upserts one device's encrypted wallet file into the mirror.
func (m *RemoteMirror) Push(deviceID, walletID string, wf WalletFile) error {
	data, err := json.Marshal(wf)
	if err != nil {
		return errs.Wrap(errs.CryptoDecode, "keystore.RemoteMirror.Push", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO frost_wallet_mirror (device_id, wallet_id, curve_type, wallet_file, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (device_id, wallet_id) DO UPDATE SET
			wallet_file = EXCLUDED.wallet_file,
			updated_at  = NOW()
	`, deviceID, walletID, wf.Metadata.CurveType, data)
	if err != nil {
		return errs.Wrap(errs.Storage, "keystore.RemoteMirror.Push", err)
	}
	return nil
}

// Pull fetches one device's mirrored wallet file, for disaster recovery
// when the local keystore directory has been lost.
func (m *RemoteMirror) Pull(deviceID, walletID string) (*WalletFile, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var data []byte
	err := m.db.QueryRowContext(ctx,
		"SELECT wallet_file FROM frost_wallet_mirror WHERE device_id = $1 AND wallet_id = $2",
		deviceID, walletID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.NotFound, "keystore.RemoteMirror.Pull")
	}
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "keystore.RemoteMirror.Pull", err)
	}

	var wf WalletFile
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "keystore.RemoteMirror.Pull", err)
	}
	return &wf, nil
}

// Delete removes a mirrored wallet file (called when the local wallet is
// deleted, so the mirror does not outlive its source of truth).
func (m *RemoteMirror) Delete(deviceID, walletID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := m.db.ExecContext(ctx,
		"DELETE FROM frost_wallet_mirror WHERE device_id = $1 AND wallet_id = $2",
		deviceID, walletID,
	)
	if err != nil {
		return errs.Wrap(errs.Storage, "keystore.RemoteMirror.Delete", err)
	}
	return nil
}

// Close closes the database connection.
func (m *RemoteMirror) Close() error { return m.db.Close() }

// AttachMirror wires a RemoteMirror into this Store: every subsequent
// Create pushes its wallet file to the mirror (best-effort — a mirror
// outage never blocks local wallet creation), and every Delete removes the
// mirrored copy.
func (s *Store) AttachMirror(m *RemoteMirror) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirror = m
}

func (s *Store) mirrorPush(curve, walletID string, wf WalletFile) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Push(s.deviceID, walletID, wf); err != nil {
		s.log.Warn("wallet mirror push failed", zap.String("wallet_id", walletID), zap.Error(err))
	}
}

func (s *Store) mirrorDelete(walletID string) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Delete(s.deviceID, walletID); err != nil {
		s.log.Warn("wallet mirror delete failed", zap.String("wallet_id", walletID), zap.Error(err))
	}
}
