package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/forestrie/go-glyphledger/bitfield"
	"github.com/forestrie/go-glyphledger/engine"
	"github.com/forestrie/go-glyphledger/glyphledger"
	"github.com/forestrie/go-glyphledger/ownerqueue"
	"github.com/spf13/cobra"
)

func parseUintArg(name, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q: %w", name, s, err)
	}
	return v, nil
}

func (c *cli) newMintCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mint OWNER QUANTITY",
		Short: "Mint new glyphs to the tail of an owner's queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := parseAddressArg(args[0])
			if err != nil {
				return err
			}
			qty, err := parseUintArg("quantity", args[1])
			if err != nil {
				return err
			}
			return c.withLedger(false, func(l *glyphledger.Ledger) error {
				start, err := l.Mint(owner, qty)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "minted %d..%d to %s\n", start, start+qty-1, owner)
				return nil
			})
		},
	}
}

func (c *cli) newTransferCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "transfer FROM TO QUANTITY",
		Short: "Move glyphs from the head of one queue to the tail of another",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseAddressArg(args[0])
			if err != nil {
				return err
			}
			to, err := parseAddressArg(args[1])
			if err != nil {
				return err
			}
			qty, err := parseUintArg("quantity", args[2])
			if err != nil {
				return err
			}
			return c.withLedger(false, func(l *glyphledger.Ledger) error {
				return l.Transfer(from, to, qty)
			})
		},
	}
}

// newIDCommand covers the commands that take an owner and a single glyph id.
func (c *cli) newIDCommand(use, short string, op func(l *glyphledger.Ledger, owner bitfield.Address, id uint64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " OWNER GLYPH_ID",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := parseAddressArg(args[0])
			if err != nil {
				return err
			}
			id, err := parseUintArg("glyph id", args[1])
			if err != nil {
				return err
			}
			return c.withLedger(false, func(l *glyphledger.Ledger) error {
				return op(l, owner, id)
			})
		},
	}
}

func (c *cli) newStakeCommand() *cobra.Command {
	return c.newIDCommand("stake", "Pull a glyph out of the owner's queue and stake it", (*glyphledger.Ledger).Stake)
}

func (c *cli) newUnstakeCommand() *cobra.Command {
	return c.newIDCommand("unstake", "Return a staked glyph to the owner's queue", (*glyphledger.Ledger).Unstake)
}

func (c *cli) newBurnCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "burn OWNER QUANTITY",
		Short: "Destroy glyphs from the head of an owner's queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := parseAddressArg(args[0])
			if err != nil {
				return err
			}
			qty, err := parseUintArg("quantity", args[1])
			if err != nil {
				return err
			}
			return c.withLedger(false, func(l *glyphledger.Ledger) error {
				return l.Burn(owner, qty)
			})
		},
	}
}

type decomposeOptions struct {
	parts  []string
	cursor uint64
}

func (c *cli) newDecomposeCommand() *cobra.Command {
	var opts decomposeOptions
	cmd := &cobra.Command{
		Use:   "decompose OWNER GLYPH_ID --part START:SIZE:ACTION...",
		Short: "Split the range holding a glyph into parts to requeue or stake",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := parseAddressArg(args[0])
			if err != nil {
				return err
			}
			id, err := parseUintArg("glyph id", args[1])
			if err != nil {
				return err
			}
			parts, err := parseParts(opts.parts)
			if err != nil {
				return err
			}
			return c.withLedger(false, func(l *glyphledger.Ledger) error {
				return l.Decompose(owner, id, parts, ownerqueue.NodeID(opts.cursor))
			})
		},
	}
	flags := cmd.Flags()
	flags.StringArrayVar(&opts.parts, "part", nil, "Sub range as START:SIZE:ACTION where ACTION is requeue or stake")
	flags.Uint64Var(&opts.cursor, "cursor", uint64(ownerqueue.NilNode), "Queue node to requeue before; 0 keeps the range's place")
	return cmd
}

func parseParts(args []string) ([]engine.SubRange, error) {
	parts := make([]engine.SubRange, 0, len(args))
	for _, arg := range args {
		fields := strings.Split(arg, ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("bad part %q: want START:SIZE:ACTION", arg)
		}
		start, err := parseUintArg("part start", fields[0])
		if err != nil {
			return nil, err
		}
		size, err := parseUintArg("part size", fields[1])
		if err != nil {
			return nil, err
		}
		var action engine.Action
		switch fields[2] {
		case engine.Requeue.String():
			action = engine.Requeue
		case engine.Stake.String():
			action = engine.Stake
		default:
			return nil, fmt.Errorf("bad part %q: unknown action %q", arg, fields[2])
		}
		parts = append(parts, engine.SubRange{StartID: start, Size: size, Action: action})
	}
	return parts, nil
}
