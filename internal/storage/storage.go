// Package storage provides the blob store the pipeline persists records and
// media in. Backends offer read-after-write consistency per key and no
// cross-key transactions.
package storage

import (
	"context"
)

type BlobStore interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}
