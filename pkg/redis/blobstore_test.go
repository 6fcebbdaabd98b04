package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkCount(t *testing.T) {
	tests := []struct {
		size      int64
		chunkSize int
		want      int
	}{
		{0, defaultChunkSize, 0},
		{1, defaultChunkSize, 1},
		{defaultChunkSize, defaultChunkSize, 1},
		{defaultChunkSize + 1, defaultChunkSize, 2},
		{4 * defaultChunkSize, defaultChunkSize, 4},
		{2*1024*1024 + 1, defaultChunkSize, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ChunkCount(tt.size, tt.chunkSize), "size=%d", tt.size)
	}
}

func TestKeyLayout(t *testing.T) {
	b := &BlobStore{kb: NewKeyBuilder("gateway", "blob"), chunkSize: defaultChunkSize}
	assert.Equal(t, "gateway:blob:meta:loc-1", b.metaKey("loc-1"))
	assert.Equal(t, "gateway:blob:chunk:loc-1:3", b.chunkKey("loc-1", 3))
}
