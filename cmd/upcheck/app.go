package main

import (
	"context"
	"fmt"
	"io"

	"upcheck/internal/config"
	"upcheck/internal/debug"
	"upcheck/internal/history"
	"upcheck/internal/integrity"
	"upcheck/internal/update"
)

// app holds the services a command needs, built from the loaded configuration.
type app struct {
	checker *update.Checker
	history *history.Store
}

// newApp wires the checker to the configured channels. The history store is
// optional: when it cannot be opened a warning is printed and checks continue
// unrecorded.
func newApp(ctx context.Context, warn io.Writer) (*app, error) {
	reg, err := config.Registry()
	if err != nil {
		return nil, err
	}

	logger := debug.Logger()
	opts := []update.CheckerOption{update.WithLogger(logger)}

	a := &app{}
	if path, err := config.HistoryPath(); err != nil {
		fmt.Fprintf(warn, "Warning: check history disabled: %v\n", err)
	} else if store, err := history.Open(ctx, path); err != nil {
		fmt.Fprintf(warn, "Warning: check history disabled: %v\n", err)
	} else {
		a.history = store
		opts = append(opts, update.WithRecorder(store))
	}

	fetchers := update.DefaultFetchers(config.FetcherOptions()...)
	a.checker = update.NewChecker(reg, fetchers, runningBuild(reg.Active().ID), opts...)
	debug.Logf("checker ready: channel=%s running=%s", reg.Active().ID, Version)
	return a, nil
}

// Close stops in-flight checks before closing the history store so the last
// attempt is recorded.
func (a *app) Close() {
	if a.checker != nil {
		a.checker.Close()
	}
	if a.history != nil {
		_ = a.history.Close()
	}
}

// newVerifier checks the running binary. A nil key selects the bundled release key.
func newVerifier(publicKeyPEM []byte) *integrity.Verifier {
	logger := debug.Logger()
	return integrity.New(integrity.Options{
		Disabled:     config.GetBool(config.KeyIntegrityDisable),
		PublicKeyPEM: publicKeyPEM,
		BuildCommit:  BuildCommit,
		BuildChannel: BuildChannel,
		Logger:       &logger,
	})
}
