// Package resolver locates the concrete asset serving a (principal,
// memory, variant, optional asset id) request.
package resolver

import (
	"context"
	"fmt"

	"github.com/552020/futura-alpha-icp-sub009/internal/store"
	errs "github.com/552020/futura-alpha-icp-sub009/pkg/errors"
)

// Kind tags the storage modality of a resolved asset.
type Kind int

const (
	KindInline Kind = iota
	KindInternalBlob
	KindExternal
)

// Resolved is the resolver output: exactly one of the asset fields is
// set, matching Kind.
type Resolved struct {
	Kind     Kind
	MemoryID string
	Inline   *store.Inline
	Blob     *store.Blob
	External *store.External
}

// Resolver scans the principal's accessible memories.
type Resolver struct {
	assets store.AssetStore
}

func New(assets store.AssetStore) *Resolver {
	return &Resolver{assets: assets}
}

// Resolve walks the accessible memories in store order and selects the
// first asset for the variant, preferring inline over internal blob over
// external storage. When assetID is non-empty only an exact id match is
// accepted; the variant still has to agree so an id cannot widen the
// scope the token granted.
func (r *Resolver) Resolve(ctx context.Context, p store.Principal, memoryID, variant, assetID string) (*Resolved, error) {
	ids, err := r.assets.AccessibleMemories(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%w: listing accessible memories: %w", errs.ErrInternal, err)
	}
	for _, id := range ids {
		if id != memoryID {
			continue
		}
		mem, err := r.assets.LoadMemory(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: loading memory: %w", errs.ErrInternal, err)
		}
		if mem == nil {
			continue
		}
		if found := pick(mem, variant, assetID); found != nil {
			return found, nil
		}
	}
	return nil, errs.ErrNotFound
}

func pick(mem *store.Memory, variant, assetID string) *Resolved {
	for i := range mem.Inline {
		a := &mem.Inline[i]
		if a.Variant == variant && (assetID == "" || a.ID == assetID) {
			return &Resolved{Kind: KindInline, MemoryID: mem.ID, Inline: a}
		}
	}
	for i := range mem.Blobs {
		a := &mem.Blobs[i]
		if a.Variant == variant && (assetID == "" || a.ID == assetID) {
			return &Resolved{Kind: KindInternalBlob, MemoryID: mem.ID, Blob: a}
		}
	}
	for i := range mem.External {
		a := &mem.External[i]
		if a.Variant == variant && (assetID == "" || a.ID == assetID) {
			return &Resolved{Kind: KindExternal, MemoryID: mem.ID, External: a}
		}
	}
	return nil
}

// ResolveID reports the id of the asset that would serve the request, or
// ErrNotFound.
func (r *Resolver) ResolveID(ctx context.Context, p store.Principal, memoryID, variant, assetID string) (string, error) {
	resolved, err := r.Resolve(ctx, p, memoryID, variant, assetID)
	if err != nil {
		return "", err
	}
	switch resolved.Kind {
	case KindInline:
		return resolved.Inline.ID, nil
	case KindInternalBlob:
		return resolved.Blob.ID, nil
	default:
		return resolved.External.ID, nil
	}
}
