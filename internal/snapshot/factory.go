package snapshot

import (
	"context"
	"fmt"
)

// Options selects and configures a snapshot backend.
type Options struct {
	Driver Driver
	FSRoot string
	Badger BadgerConfig
	S3     S3Config
}

// Open constructs the configured Store. An empty driver defaults to the
// filesystem backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverFilesystem:
		return NewFilesystem(opts.FSRoot)
	case DriverBadger:
		return NewBadger(opts.Badger)
	case DriverS3:
		return NewS3(ctx, opts.S3)
	default:
		return nil, fmt.Errorf("unknown snapshot driver %q", driver)
	}
}
