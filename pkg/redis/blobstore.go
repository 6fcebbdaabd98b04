package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	errs "github.com/552020/futura-alpha-icp-sub009/pkg/errors"
)

const (
	// defaultChunkSize is the storage chunk granularity.
	defaultChunkSize = 512 * 1024
	// maxWholeRead caps what Read returns in one piece; bigger blobs
	// need the streaming path.
	maxWholeRead = 2 * 1024 * 1024
)

// blobMeta describes a stored blob.
type blobMeta struct {
	Size      int64 `json:"size"`
	Chunks    int   `json:"chunks"`
	ChunkSize int   `json:"chunk_size"`
}

// BlobStore stores internal blobs as chunked Redis values. It implements
// the gateway's BlobStore contract.
type BlobStore struct {
	client    *Client
	kb        *KeyBuilder
	log       *zap.Logger
	chunkSize int
}

// NewBlobStore creates a blob store on the given client.
func NewBlobStore(client *Client, log *zap.Logger) *BlobStore {
	return &BlobStore{
		client:    client,
		kb:        NewKeyBuilder("gateway", "blob"),
		log:       log,
		chunkSize: defaultChunkSize,
	}
}

func (b *BlobStore) metaKey(locator string) string {
	return b.kb.Build("meta", locator)
}

func (b *BlobStore) chunkKey(locator string, n int) string {
	return b.kb.Build("chunk", fmt.Sprintf("%s:%d", locator, n))
}

// ChunkCount returns the number of chunks a payload of the given size
// occupies at the given chunk granularity.
func ChunkCount(size int64, chunkSize int) int {
	if size <= 0 {
		return 0
	}
	return int((size + int64(chunkSize) - 1) / int64(chunkSize))
}

// Write stores the payload under the locator, replacing any previous
// content.
func (b *BlobStore) Write(ctx context.Context, locator string, payload []byte) error {
	meta := blobMeta{
		Size:      int64(len(payload)),
		Chunks:    ChunkCount(int64(len(payload)), b.chunkSize),
		ChunkSize: b.chunkSize,
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding blob meta: %w", err)
	}

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, b.metaKey(locator), encoded, 0)
	for i := 0; i < meta.Chunks; i++ {
		start := i * b.chunkSize
		end := start + b.chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		pipe.Set(ctx, b.chunkKey(locator, i), payload[start:end], 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("writing blob chunks: %w", err)
	}
	return nil
}

// Read returns the whole blob. Blobs over the single-read cap return
// ErrTooLarge without touching their chunks.
func (b *BlobStore) Read(ctx context.Context, locator string) ([]byte, error) {
	raw, err := b.client.Get(ctx, b.metaKey(locator)).Bytes()
	if err == goredis.Nil {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading blob meta: %w", err)
	}
	var meta blobMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decoding blob meta: %w", err)
	}
	if meta.Size > maxWholeRead {
		return nil, errs.ErrTooLarge
	}

	payload := make([]byte, 0, meta.Size)
	for i := 0; i < meta.Chunks; i++ {
		chunk, err := b.client.Get(ctx, b.chunkKey(locator, i)).Bytes()
		if err == goredis.Nil {
			b.log.Warn("blob chunk missing",
				zap.String("locator", locator), zap.Int("chunk", i))
			return nil, errs.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("reading blob chunk %d: %w", i, err)
		}
		payload = append(payload, chunk...)
	}
	if int64(len(payload)) != meta.Size {
		return nil, fmt.Errorf("blob %q: got %d bytes, meta says %d", locator, len(payload), meta.Size)
	}
	return payload, nil
}

// Delete removes the blob and its chunks.
func (b *BlobStore) Delete(ctx context.Context, locator string) error {
	raw, err := b.client.Get(ctx, b.metaKey(locator)).Bytes()
	if err == goredis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading blob meta: %w", err)
	}
	var meta blobMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return fmt.Errorf("decoding blob meta: %w", err)
	}
	keys := []string{b.metaKey(locator)}
	for i := 0; i < meta.Chunks; i++ {
		keys = append(keys, b.chunkKey(locator, i))
	}
	return b.client.Del(ctx, keys...).Err()
}
