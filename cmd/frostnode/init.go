package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/collider/frost-wallet-node/internal/config"
	"github.com/collider/frost-wallet-node/internal/errs"
)

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate this device's identity and keystore home",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.KeystoreHome, 0o700); err != nil {
				return errs.Wrap(errs.Storage, "init.MkdirAll", err)
			}

			path := config.DeviceIDFile(cfg.KeystoreHome)
			if existing, err := readDeviceID(cfg.KeystoreHome); err == nil && !force {
				fmt.Printf("device already initialized: %s (%s)\n", existing, path)
				return nil
			}

			deviceID := cfg.DeviceID
			if deviceID == "" {
				deviceID = uuid.New().String()
			}
			if err := os.WriteFile(path, []byte(deviceID), 0o600); err != nil {
				return errs.Wrap(errs.Storage, "init.WriteFile", err)
			}
			log.Info("device initialized", zap.String("device_id", deviceID), zap.String("keystore_home", cfg.KeystoreHome))
			fmt.Printf("device initialized: %s\n", deviceID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing device identity")
	return cmd
}

// readDeviceID reads the identity file `init` writes. An empty file or a
// missing one surfaces as NotFound so callers can tell a never-initialized
// keystore home apart from a Storage-layer read failure.
func readDeviceID(keystoreHome string) (string, error) {
	path := config.DeviceIDFile(keystoreHome)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errs.New(errs.NotFound, "readDeviceID")
		}
		return "", errs.Wrap(errs.Storage, "readDeviceID", err)
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", errs.New(errs.NotFound, "readDeviceID")
	}
	return id, nil
}
