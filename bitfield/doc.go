/*
Package bitfield is the single place where ledger records are packed to, and
unpacked from, fixed width words.

# Range records

A range record describes one maximal run of glyph ids owned by one account.
It is packed into a 32 byte big endian word:

	.      | owner          | startID (63 bits) | size (32 bits) | staked |
	.      | 0            19| 20 .......................................31 |
	bits   | 255 ....... 96 | 95 ............ 33| 32 ........... 1|   0    |

The low 96 bits are treated as a single integer,

	startID<<33 | size<<1 | staked

which is split over a uint64 (bytes 20-27) and a uint32 (bytes 28-31) for
the big endian encoding. The width choices are fixed system wide. Nothing
outside this package should shift or mask record fields.

# Queue metadata

Each owner's range queue carries a metadata word of four big endian uint64
fields: head node id, tail node id, the next node id to allocate and the
live node count.

	.      | head  | tail  | next node id | size  |
	bytes  | 0   7 | 8  15 | 16        23 | 24 31 |
*/
package bitfield
