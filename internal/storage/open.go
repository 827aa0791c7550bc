package storage

import (
	"context"
	"fmt"

	"github.com/youruser/magide/internal/storage/kv"
)

// Options selects a workspace backend.
type Options struct {
	// Dir, when set, opens a real directory and ignores the kv settings.
	Dir         string
	KV          kv.Config
	SnapshotKey string
	Codec       string
}

// Open builds the Store described by opts. The returned close function
// releases the kv backend, if any.
func Open(ctx context.Context, opts Options) (Store, func() error, error) {
	if opts.Dir != "" {
		d, err := OpenDisk(ctx, opts.Dir)
		if err != nil {
			return nil, nil, err
		}
		return d, func() error { return nil }, nil
	}

	codec, err := CodecByName(opts.Codec)
	if err != nil {
		return nil, nil, err
	}
	backend, err := kv.Open(ctx, opts.KV)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", opts.KV.Backend, err)
	}

	memOpts := []MemOption{WithCodec(codec)}
	if opts.SnapshotKey != "" {
		memOpts = append(memOpts, WithSnapshotKey(opts.SnapshotKey))
	}
	m, err := OpenMem(ctx, backend, memOpts...)
	if err != nil {
		backend.Close()
		return nil, nil, err
	}
	return m, backend.Close, nil
}
