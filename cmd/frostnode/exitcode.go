package main

import (
	"errors"

	"github.com/collider/frost-wallet-node/internal/errs"
)

// exitCode maps an error's taxonomy Kind to the process exit code named in
// the CLI surface: 0 success, 1 user error, 2 protocol error, 3 I/O/crypto
// error. A nil error maps to 0; one outside the *errs.Error taxonomy (flag
// parsing, unexpected panics recovered upstream) falls back to 1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var fe *errs.Error
	if !errors.As(err, &fe) {
		return 1
	}
	switch fe.Kind {
	case errs.Config, errs.NotFound:
		return 1
	case errs.RosterMismatch, errs.PeerDisconnected, errs.DkgIntegrity, errs.Timeout:
		return 2
	case errs.CryptoDecode, errs.Storage, errs.Transport:
		return 3
	default:
		return 1
	}
}
