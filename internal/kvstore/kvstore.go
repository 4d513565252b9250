package kvstore

import "context"

// Store is a flat string-to-string store used as the last-resort copy of
// uploaded records.
type Store interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (value string, ok bool, err error)
}
