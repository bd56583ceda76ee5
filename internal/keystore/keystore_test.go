package keystore

import (
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/collider/frost-wallet-node/internal/ciphersuite"
	"github.com/collider/frost-wallet-node/internal/errs"
	"github.com/collider/frost-wallet-node/internal/identifier"
)

// generateTestKeyPackages runs a real 2-of-3 DKG ceremony in-process and
// returns one device's resulting KeyPackage/PublicKeyPackage pair, so
// keystore tests exercise the real serialize/deserialize round trip rather
// than a hand-built fixture.
func generateTestKeyPackages(t *testing.T, suite ciphersuite.Suite) (*ciphersuite.KeyPackage, *ciphersuite.PublicKeyPackage) {
	t.Helper()
	const n, threshold = 3, 2
	idMap := identifier.Build([]string{"dev-a", "dev-b", "dev-c"})

	type partyState struct {
		id     ciphersuite.Identifier
		secret *ciphersuite.SecretR1
		r1     map[ciphersuite.Identifier]*ciphersuite.PublicR1
	}
	parties := make(map[ciphersuite.Identifier]*partyState)
	allR1 := make(map[ciphersuite.Identifier]*ciphersuite.PublicR1)

	for _, dev := range []string{"dev-a", "dev-b", "dev-c"} {
		id, err := idMap.IdentifierFor(dev)
		require.NoError(t, err)
		secret, pub, err := suite.DKGPart1(id, n, threshold, rand.Reader)
		require.NoError(t, err)
		parties[id] = &partyState{id: id, secret: secret, r1: map[ciphersuite.Identifier]*ciphersuite.PublicR1{}}
		allR1[id] = pub
	}
	for id, p := range parties {
		for otherID, otherPub := range allR1 {
			if otherID == id {
				continue
			}
			p.r1[otherID] = otherPub
		}
	}

	type round2State struct {
		secret2 *ciphersuite.SecretR2
		sent    map[ciphersuite.Identifier]*ciphersuite.PublicR2
	}
	round2 := make(map[ciphersuite.Identifier]*round2State)
	for id, p := range parties {
		secret2, out, err := suite.DKGPart2(p.secret, p.r1)
		require.NoError(t, err)
		round2[id] = &round2State{secret2: secret2, sent: out}
	}

	var targetID ciphersuite.Identifier
	for id := range parties {
		targetID = id
		break
	}

	incoming := make(map[ciphersuite.Identifier]*ciphersuite.PublicR2)
	for fromID, rs := range round2 {
		if fromID == targetID {
			continue
		}
		incoming[fromID] = rs.sent[targetID]
	}

	kp, pub, err := suite.DKGPart3(round2[targetID].secret2, parties[targetID].r1, incoming)
	require.NoError(t, err)
	return kp, pub
}

func TestWalletCreateLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, "dev-a", "hunter2", zap.NewNop())
	require.NoError(t, err)

	suite := ciphersuite.NewSecp256k1Suite()
	kp, pub := generateTestKeyPackages(t, suite)

	meta, err := store.Create("my-wallet", suite, kp, pub, 2, 3, 1)
	require.NoError(t, err)
	require.Equal(t, "secp256k1", meta.CurveType)
	require.NotEmpty(t, meta.Blockchains)

	var ethFound bool
	for _, b := range meta.Blockchains {
		if b.Blockchain == "ethereum" {
			ethFound = true
			require.True(t, b.Enabled)
		} else {
			require.False(t, b.Enabled)
		}
	}
	require.True(t, ethFound)

	loadedKP, loadedPub, loadedMeta, err := store.Load("my-wallet", suite)
	require.NoError(t, err)
	require.Equal(t, "my-wallet", loadedMeta.SessionID)
	require.NotNil(t, loadedKP)
	require.NotNil(t, loadedPub)

	list := store.List()
	require.Len(t, list, 1)

	raw, err := os.ReadFile(filepath.Join(dir, "dev-a", "secp256k1", "my-wallet.json"))
	require.NoError(t, err)
	var wf WalletFile
	require.NoError(t, json.Unmarshal(raw, &wf))
	require.Equal(t, "2.0", wf.Version)
}

func TestWalletCreateDuplicateRejected(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, "dev-a", "hunter2", zap.NewNop())
	require.NoError(t, err)

	suite := ciphersuite.NewEd25519Suite()
	kp, pub := generateTestKeyPackages(t, suite)

	_, err = store.Create("dup", suite, kp, pub, 2, 3, 1)
	require.NoError(t, err)
	_, err = store.Create("dup", suite, kp, pub, 2, 3, 1)
	require.Error(t, err)
}

func TestWalletDeleteRemovesFromCacheAndDisk(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, "dev-a", "hunter2", zap.NewNop())
	require.NoError(t, err)

	suite := ciphersuite.NewEd25519Suite()
	kp, pub := generateTestKeyPackages(t, suite)
	_, err = store.Create("gone-soon", suite, kp, pub, 2, 3, 1)
	require.NoError(t, err)

	require.NoError(t, store.Delete("gone-soon"))
	require.Len(t, store.List(), 0)

	_, _, _, err = store.Load("gone-soon", suite)
	require.Error(t, err)
}

func TestWalletLoadWrongPasswordReturnsStorageError(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, "dev-a", "password1", zap.NewNop())
	require.NoError(t, err)

	suite := ciphersuite.NewSecp256k1Suite()
	kp, pub := generateTestKeyPackages(t, suite)
	_, err = store.Create("my-wallet", suite, kp, pub, 2, 3, 1)
	require.NoError(t, err)

	wrongStore, err := Open(dir, "dev-a", "password2", zap.NewNop())
	require.NoError(t, err)

	_, _, _, err = wrongStore.Load("my-wallet", suite)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Storage), "wrong-password load should surface as Storage, got %v", err)
}

func TestLegacyIndexMigratesAndRenamesOnOpen(t *testing.T) {
	dir := t.TempDir()
	deviceID := "dev-a"
	curveDir := filepath.Join(dir, deviceID, "secp256k1")
	require.NoError(t, os.MkdirAll(curveDir, 0o700))

	v1 := map[string]any{
		"version":   "1.0",
		"encrypted": true,
		"algorithm": "AES-256-GCM",
		"data":      "deadbeef==",
	}
	v1Bytes, err := json.Marshal(v1)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(curveDir, "legacy-wallet.json"), v1Bytes, 0o600))

	idx := legacyIndex{Wallets: []legacyWalletInfo{{
		WalletID:          "legacy-wallet",
		CurveType:         "secp256k1",
		Blockchain:        "ethereum",
		PublicAddress:     "0xdeadbeef",
		Threshold:         2,
		TotalParticipants: 3,
		GroupPublicKey:    "abcd",
		CreatedAt:         1700000000,
		Devices:           []legacyDeviceEntry{{DeviceID: "dev-a"}, {DeviceID: "dev-b"}},
	}}}
	idxBytes, err := json.Marshal(idx)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.json"), idxBytes, 0o600))

	store, err := Open(dir, deviceID, "hunter2", zap.NewNop())
	require.NoError(t, err)

	list := store.List()
	require.Len(t, list, 1)
	require.Equal(t, "legacy-wallet", list[0].SessionID)
	require.Equal(t, 1, list[0].ParticipantIndex)

	_, err = os.Stat(filepath.Join(dir, "index.json.legacy"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "index.json"))
	require.True(t, os.IsNotExist(err))

	raw, err := os.ReadFile(filepath.Join(curveDir, "legacy-wallet.json"))
	require.NoError(t, err)
	var wf WalletFile
	require.NoError(t, json.Unmarshal(raw, &wf))
	require.Equal(t, "2.0", wf.Version)
}

func TestExportImportRoundTrip(t *testing.T) {
	dirA := t.TempDir()
	storeA, err := Open(dirA, "dev-a", "hunter2", zap.NewNop())
	require.NoError(t, err)

	suite := ciphersuite.NewSecp256k1Suite()
	kp, pub := generateTestKeyPackages(t, suite)
	_, err = storeA.Create("exported", suite, kp, pub, 2, 3, 1)
	require.NoError(t, err)

	enc, err := storeA.Export("exported", suite)
	require.NoError(t, err)
	require.Equal(t, extensionAlgorithm, enc.Algorithm)

	dirB := t.TempDir()
	storeB, err := Open(dirB, "dev-b", "hunter2", zap.NewNop())
	require.NoError(t, err)

	meta, err := storeB.Import(enc)
	require.NoError(t, err)
	require.Equal(t, "exported", meta.SessionID)

	_, _, loadedMeta, err := storeB.Load("exported", suite)
	require.NoError(t, err)
	require.Equal(t, "secp256k1", loadedMeta.CurveType)
}
