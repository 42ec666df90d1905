package ledgerstore

import (
	"time"

	commoncbor "github.com/datatrails/go-datatrails-common/cbor"
)

const DefaultTimeout = time.Second

type StoreOptions struct {
	// Timeout bounds the wait for the database file lock.
	Timeout  time.Duration
	ReadOnly bool
	Codec    *commoncbor.CBORCodec
}

// Option configures a Store. Options that do not apply to the target are
// ignored.
type Option func(any)

func WithTimeout(d time.Duration) Option {
	return func(opts any) {
		if o, ok := opts.(*StoreOptions); ok {
			o.Timeout = d
		}
	}
}

func WithReadOnly() Option {
	return func(opts any) {
		if o, ok := opts.(*StoreOptions); ok {
			o.ReadOnly = true
		}
	}
}

// WithCodec replaces the deterministic codec used for the record values.
func WithCodec(codec *commoncbor.CBORCodec) Option {
	return func(opts any) {
		if o, ok := opts.(*StoreOptions); ok {
			o.Codec = codec
		}
	}
}

func NewCodec() (commoncbor.CBORCodec, error) {
	codec, err := commoncbor.NewCBORCodec(
		commoncbor.NewDeterministicEncOpts(),
		commoncbor.NewDeterministicDecOpts(), // unsigned int decodes to uint64
	)
	if err != nil {
		return commoncbor.CBORCodec{}, err
	}
	return codec, nil
}
