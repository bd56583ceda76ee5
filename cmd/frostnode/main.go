// Command frostnode is the operator-facing CLI for a FROST wallet
// coordination node: initializing a keystore identity, proposing and
// joining DKG ceremonies, listing the resulting wallets, and driving a
// threshold signing ceremony to completion.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/collider/frost-wallet-node/internal/ciphersuite"
	"github.com/collider/frost-wallet-node/internal/config"
	"github.com/collider/frost-wallet-node/internal/keystore"
	"github.com/collider/frost-wallet-node/internal/rendezvous"
	"github.com/collider/frost-wallet-node/internal/runner"
)

var logLevelFlag string

func main() {
	root := &cobra.Command{
		Use:           "frostnode",
		Short:         "FROST threshold-wallet coordination node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "override FROST_LOG_LEVEL (debug, info, warn, error)")

	root.AddCommand(
		newInitCmd(),
		newCreateWalletCmd(),
		newListWalletsCmd(),
		newProposeSessionCmd(),
		newJoinSessionCmd(),
		newSignCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

// loadConfig reads FROST_* environment variables, applying any CLI
// override of the log level.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}
	level := cfg.LogLevel
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	log, err := config.NewLogger(level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// suiteSet is the fixed curve-name to Suite mapping every node process
// wires up.
func suiteSet() map[string]ciphersuite.Suite {
	return map[string]ciphersuite.Suite{
		string(ciphersuite.CurveSecp256k1): ciphersuite.NewSecp256k1Suite(),
		string(ciphersuite.CurveEd25519):   ciphersuite.NewEd25519Suite(),
	}
}

// openStore opens this device's keystore home, requiring a device-id to
// already be present (i.e. `init` has already run).
func openStore(cfg *config.Config, log *zap.Logger) (*keystore.Store, error) {
	if cfg.DeviceID == "" {
		id, err := readDeviceID(cfg.KeystoreHome)
		if err != nil {
			return nil, err
		}
		cfg.DeviceID = id
	}
	store, err := keystore.Open(cfg.KeystoreHome, cfg.DeviceID, cfg.StorePassword, log)
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL != "" {
		mirror, err := keystore.NewRemoteMirror(cfg.DatabaseURL)
		if err != nil {
			log.Warn("postgres mirror unavailable, continuing with local keystore only", zap.Error(err))
		} else {
			store.AttachMirror(mirror)
		}
	}
	return store, nil
}

// connectedRunner opens the keystore, dials the rendezvous server, and
// starts a Runner's command loop in the background. Callers are
// responsible for submitting Commands and reading Snapshot(); the Runner
// keeps running until the rendezvous connection drops.
func connectedRunner(cfg *config.Config, log *zap.Logger) (*runner.Runner, *keystore.Store, error) {
	store, err := openStore(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	client, err := rendezvous.Connect(cfg.RendezvousURL, cfg.DeviceID, log)
	if err != nil {
		return nil, nil, err
	}
	r := runner.New(cfg.DeviceID, client, store, suiteSet(), log)
	go func() {
		if err := r.Run(); err != nil {
			log.Warn("runner exited", zap.Error(err))
		}
	}()
	return r, store, nil
}
