package store

import (
	"context"
	"sync"

	errs "github.com/552020/futura-alpha-icp-sub009/pkg/errors"
)

// MemStore is the in-memory implementation of AssetStore, BlobStore and
// Acl used by tests and the dev backend.
type MemStore struct {
	mu       sync.RWMutex
	memories []Memory
	grants   map[string][]Principal // memory id -> principals with view
	blobs    map[string][]byte      // locator -> payload
}

func NewMemStore() *MemStore {
	return &MemStore{
		grants: make(map[string][]Principal),
		blobs:  make(map[string][]byte),
	}
}

// AddMemory registers a memory and grants view to the listed principals.
func (m *MemStore) AddMemory(mem Memory, viewers ...Principal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memories = append(m.memories, mem)
	m.grants[mem.ID] = append(m.grants[mem.ID], viewers...)
}

// PutBlob stores blob bytes under a locator.
func (m *MemStore) PutBlob(locator string, payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[locator] = payload
}

func (m *MemStore) AccessibleMemories(_ context.Context, p Principal) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for _, mem := range m.memories {
		if m.hasView(mem.ID, p) {
			ids = append(ids, mem.ID)
		}
	}
	return ids, nil
}

func (m *MemStore) LoadMemory(_ context.Context, memoryID string) (*Memory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.memories {
		if m.memories[i].ID == memoryID {
			mem := m.memories[i]
			return &mem, nil
		}
	}
	return nil, nil
}

func (m *MemStore) InlineByID(ctx context.Context, p Principal, memoryID, assetID string) (*Inline, error) {
	mem, err := m.viewableMemory(ctx, p, memoryID)
	if mem == nil || err != nil {
		return nil, err
	}
	for i := range mem.Inline {
		if mem.Inline[i].ID == assetID {
			return &mem.Inline[i], nil
		}
	}
	return nil, nil
}

func (m *MemStore) BlobByID(ctx context.Context, p Principal, memoryID, assetID string) (*Blob, error) {
	mem, err := m.viewableMemory(ctx, p, memoryID)
	if mem == nil || err != nil {
		return nil, err
	}
	for i := range mem.Blobs {
		if mem.Blobs[i].ID == assetID {
			return &mem.Blobs[i], nil
		}
	}
	return nil, nil
}

func (m *MemStore) ResolveForVariant(ctx context.Context, p Principal, memoryID, variant, assetID string) (string, error) {
	mem, err := m.viewableMemory(ctx, p, memoryID)
	if mem == nil || err != nil {
		return "", err
	}
	// inline -> internal blob -> external, exact id match when given
	for _, a := range mem.Inline {
		if a.Variant == variant && (assetID == "" || a.ID == assetID) {
			return a.ID, nil
		}
	}
	for _, a := range mem.Blobs {
		if a.Variant == variant && (assetID == "" || a.ID == assetID) {
			return a.ID, nil
		}
	}
	for _, a := range mem.External {
		if a.Variant == variant && (assetID == "" || a.ID == assetID) {
			return a.ID, nil
		}
	}
	return "", nil
}

func (m *MemStore) Read(_ context.Context, locator string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.blobs[locator]
	if !ok {
		return nil, errs.ErrNotFound
	}
	// Whole reads stop at the single-response ceiling (2 MiB).
	if len(payload) > 2*1024*1024 {
		return nil, errs.ErrTooLarge
	}
	return payload, nil
}

func (m *MemStore) CanView(_ context.Context, memoryID string, p Principal) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasView(memoryID, p), nil
}

func (m *MemStore) viewableMemory(ctx context.Context, p Principal, memoryID string) (*Memory, error) {
	m.mu.RLock()
	viewable := m.hasView(memoryID, p)
	m.mu.RUnlock()
	if !viewable {
		return nil, nil
	}
	return m.LoadMemory(ctx, memoryID)
}

// hasView is called with the lock held.
func (m *MemStore) hasView(memoryID string, p Principal) bool {
	for _, viewer := range m.grants[memoryID] {
		if viewer == p {
			return true
		}
	}
	return false
}
