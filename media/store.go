// Package media is the contract for the external blob store that holds
// uploaded card images. The core only hands it opaque keys derived from
// duel id and slot name and never interprets the stored bytes.
package media

import "context"

type Store interface {
	// Put stores the bytes under key and returns a URL clients can load.
	Put(ctx context.Context, key string, data []byte) (string, error)

	// ListByPrefix returns every stored key beginning with prefix.
	ListByPrefix(ctx context.Context, prefix string) ([]string, error)

	// DeleteMany removes the given keys. Missing keys are not an error.
	DeleteMany(ctx context.Context, keys []string) error
}
