package main

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/collider/frost-wallet-node/internal/errs"
	"github.com/collider/frost-wallet-node/internal/runner"
)

const signingCeremonyTimeout = 2 * time.Minute

func newSignCmd() *cobra.Command {
	var blockchain string
	var chainID int64

	cmd := &cobra.Command{
		Use:   "sign <wallet> <tx-hex>",
		Short: "Initiate a threshold signing ceremony over a roster's wallet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			walletID := args[0]
			txBytes, err := hex.DecodeString(strings.TrimPrefix(args[1], "0x"))
			if err != nil {
				return errs.Wrap(errs.Config, "sign.DecodeString", err)
			}

			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			r, _, err := connectedRunner(cfg, log)
			if err != nil {
				return err
			}

			var chainIDPtr *int64
			if cmd.Flags().Changed("chain-id") {
				chainIDPtr = &chainID
			}

			done := make(chan error, 1)
			r.Submit(runner.Command{
				Kind:       runner.KindInitiateSigning,
				WalletID:   walletID,
				TxBytes:    txBytes,
				Blockchain: blockchain,
				ChainID:    chainIDPtr,
				Done:       done,
			})

			select {
			case err := <-done:
				if err != nil {
					return err
				}
			case <-time.After(signingCeremonyTimeout):
				return errs.New(errs.Timeout, "sign")
			}

			snap := r.Snapshot()
			for _, sig := range snap.Signatures {
				fmt.Printf("signature: %s\n", sig)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&blockchain, "blockchain", "ethereum", "target blockchain tag")
	cmd.Flags().Int64Var(&chainID, "chain-id", 0, "EVM chain-id, when blockchain requires one")
	return cmd
}
