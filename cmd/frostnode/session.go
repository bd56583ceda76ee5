package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/collider/frost-wallet-node/internal/errs"
	"github.com/collider/frost-wallet-node/internal/runner"
)

func newJoinSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join-session <id>",
		Short: "Accept an invited DKG session and wait for it to complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]

			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			r, _, err := connectedRunner(cfg, log)
			if err != nil {
				return err
			}

			done := make(chan error, 1)
			r.Submit(runner.Command{
				Kind:      runner.KindAcceptSession,
				SessionID: sessionID,
				Done:      done,
			})

			select {
			case err := <-done:
				if err != nil {
					return err
				}
			case <-time.After(dkgCeremonyTimeout):
				return errs.New(errs.Timeout, "join-session")
			}

			fmt.Printf("joined: %s\n", sessionID)
			return nil
		},
	}
}
