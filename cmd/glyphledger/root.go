package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-glyphledger/bitfield"
	"github.com/forestrie/go-glyphledger/glyphledger"
	"github.com/forestrie/go-glyphledger/ledgerstore"
	"github.com/spf13/cobra"
)

const serviceName = "glyphledger"

type rootOptions struct {
	db           string
	logLevel     string
	firstTokenID uint64
}

type cli struct {
	out  io.Writer
	opts rootOptions
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	c := &cli{out: out}
	cmd := &cobra.Command{
		Use:           "glyphledger",
		Short:         "Inspect and operate a glyph ledger kept in a local database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.New(c.opts.logLevel)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.OnExit()
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	flags := cmd.PersistentFlags()
	flags.StringVar(&c.opts.db, "db", "glyphledger.db", "Ledger database file")
	flags.StringVar(&c.opts.logLevel, "log-level", "NOOP", "Log level (NOOP, DEBUG, INFO)")
	flags.Uint64Var(&c.opts.firstTokenID, "first-token-id", glyphledger.DefaultFirstTokenID,
		"First glyph id of a new ledger; ignored once the database holds a ledger")

	cmd.AddCommand(
		c.newMintCommand(),
		c.newTransferCommand(),
		c.newStakeCommand(),
		c.newUnstakeCommand(),
		c.newBurnCommand(),
		c.newDecomposeCommand(),
		c.newRangesCommand(),
		c.newGlyphsCommand(),
		c.newAccountCommand(),
		c.newOwnerCommand(),
		c.newInfoCommand(),
		c.newCheckCommand(),
	)
	return cmd
}

// withLedger loads the ledger from the database, or starts an empty one,
// and runs fn against it. A successful fn is saved back unless readOnly.
func (c *cli) withLedger(readOnly bool, fn func(l *glyphledger.Ledger) error) error {
	log := logger.Sugar.WithServiceName(serviceName)

	var opts []ledgerstore.Option
	if readOnly {
		opts = append(opts, ledgerstore.WithReadOnly())
	}
	store, err := ledgerstore.Open(log, c.opts.db, opts...)
	if err != nil {
		return err
	}
	defer store.Close()

	l, err := glyphledger.New(glyphledger.Config{FirstTokenID: c.opts.firstTokenID}, log)
	if err != nil {
		return err
	}
	defer l.Close()

	err = store.LoadLedger(l)
	if err != nil && !errors.Is(err, ledgerstore.ErrNoSnapshot) {
		return err
	}
	if err := fn(l); err != nil {
		return err
	}
	if readOnly {
		return nil
	}
	return store.SaveLedger(l)
}

func parseAddressArg(s string) (bitfield.Address, error) {
	a, err := bitfield.ParseAddress(s)
	if err != nil {
		return a, fmt.Errorf("bad address %q: %w", s, err)
	}
	return a, nil
}
