package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/forestrie/go-glyphledger/bitfield"
	"github.com/forestrie/go-glyphledger/glyphledger"
	"github.com/spf13/cobra"
)

func (c *cli) ownerView(use, short string, show func(l *glyphledger.Ledger, owner bitfield.Address) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " OWNER",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := parseAddressArg(args[0])
			if err != nil {
				return err
			}
			return c.withLedger(true, func(l *glyphledger.Ledger) error {
				return show(l, owner)
			})
		},
	}
}

func (c *cli) newRangesCommand() *cobra.Command {
	return c.ownerView("ranges", "List an owner's unstaked ranges in queue order",
		func(l *glyphledger.Ledger, owner bitfield.Address) error {
			w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "START\tSIZE\tLAST")
			for _, s := range l.QueueRanges(owner) {
				fmt.Fprintf(w, "%d\t%d\t%d\n", s.StartID, s.Size, s.StartID+s.Size-1)
			}
			return w.Flush()
		})
}

func (c *cli) newGlyphsCommand() *cobra.Command {
	return c.ownerView("glyphs", "List an owner's unstaked and staked glyph ids",
		func(l *glyphledger.Ledger, owner bitfield.Address) error {
			fmt.Fprintf(c.out, "queued: %v\n", l.QueueGlyphIDs(owner))
			fmt.Fprintf(c.out, "staked: %v\n", l.StakedIDs(owner))
			return nil
		})
}

func (c *cli) newAccountCommand() *cobra.Command {
	return c.ownerView("account", "Show an owner's balance and counters",
		func(l *glyphledger.Ledger, owner bitfield.Address) error {
			a := l.Account(owner)
			w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "owner\t%s\n", a.Owner)
			fmt.Fprintf(w, "balance\t%d\n", a.Balance)
			fmt.Fprintf(w, "unstaked\t%d\n", a.Unstaked)
			fmt.Fprintf(w, "staked\t%d\n", a.Staked)
			fmt.Fprintf(w, "minted\t%d\n", a.Minted)
			fmt.Fprintf(w, "burned\t%d\n", a.Burned)
			fmt.Fprintf(w, "received\t%d\n", a.Received)
			fmt.Fprintf(w, "sent\t%d\n", a.Sent)
			return w.Flush()
		})
}

func (c *cli) newOwnerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "owner GLYPH_ID",
		Short: "Show the range record holding a glyph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUintArg("glyph id", args[0])
			if err != nil {
				return err
			}
			return c.withLedger(true, func(l *glyphledger.Ledger) error {
				r, err := l.RangeInfo(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "%s\n", r)
				return nil
			})
		},
	}
}

func (c *cli) newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Summarize the stored ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withLedger(true, func(l *glyphledger.Ledger) error {
				w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "next token id\t%d\n", l.NextTokenID())
				fmt.Fprintf(w, "minted\t%d\n", l.Minted())
				fmt.Fprintf(w, "burned\t%d\n", l.Burned())
				fmt.Fprintf(w, "live ranges\t%d\n", l.LiveRanges())
				fmt.Fprintf(w, "staked glyphs\t%d\n", l.StakedTotal())
				fmt.Fprintf(w, "owners\t%d\n", len(l.Owners()))
				return w.Flush()
			})
		},
	}
}

func (c *cli) newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the stored ledger's digest and invariants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withLedger(true, func(l *glyphledger.Ledger) error {
				// loading already checked the digest and restored state
				if err := l.CheckInvariants(); err != nil {
					return err
				}
				fmt.Fprintln(c.out, "ok")
				return nil
			})
		},
	}
}
