// Package blob abstracts attachment byte storage behind a put/get/delete
// interface. The workflow core only depends on the interface; drivers are an
// infrastructure concern.
package blob

import "context"

// Store holds attachment bytes by opaque key.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
