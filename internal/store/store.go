// Package store declares the collaborator contracts the gateway core
// consumes: the asset store, the blob store, and the permission
// evaluator. Production adapters and test doubles implement them
// independently; the HTTP layer never imports their internals.
package store

import "context"

// Principal is the textual identity an operation runs as.
type Principal = string

// Inline is an asset stored as owned bytes on the memory record itself.
type Inline struct {
	ID          string
	Variant     string
	Name        string
	ContentType string
	Bytes       []byte
	Size        uint64
	SHA256      []byte
}

// Blob is an asset whose bytes live in the internal blob store, reachable
// through a locator.
type Blob struct {
	ID          string
	Variant     string
	Name        string
	ContentType string
	Size        uint64
	Locator     string
	SHA256      []byte
}

// External is an asset hosted outside the internal stores. Serving it is
// unavailable in this phase.
type External struct {
	ID         string
	Variant    string
	StorageKey string
	URL        string
	Size       uint64
}

// Memory is a logical container of asset variants of one content item.
type Memory struct {
	ID       string
	Inline   []Inline
	Blobs    []Blob
	External []External
}

// AssetStore is the read view over the domain data the core borrows.
type AssetStore interface {
	// AccessibleMemories returns the ids of the memories the principal
	// may view, in store order.
	AccessibleMemories(ctx context.Context, p Principal) ([]string, error)
	// LoadMemory returns the memory with its asset sequences, or nil.
	LoadMemory(ctx context.Context, memoryID string) (*Memory, error)
	// InlineByID returns the inline asset when it exists and the
	// principal may view its memory, or nil.
	InlineByID(ctx context.Context, p Principal, memoryID, assetID string) (*Inline, error)
	// BlobByID returns the internal-blob asset under the same rules.
	BlobByID(ctx context.Context, p Principal, memoryID, assetID string) (*Blob, error)
	// ResolveForVariant picks the asset id serving the given variant,
	// honoring an explicit asset id when provided. Empty result means
	// nothing matched.
	ResolveForVariant(ctx context.Context, p Principal, memoryID, variant, assetID string) (string, error)
}

// BlobStore reads whole internal blobs. Implementations may chunk
// internally; Read returns the complete payload only when its size fits
// the single-response ceiling.
type BlobStore interface {
	Read(ctx context.Context, locator string) ([]byte, error)
}

// Acl evaluates the view permission for a memory. The gateway asks it at
// mint time with the minting caller; the serve path does not call it and
// relies on AccessibleMemories for the token subject instead.
type Acl interface {
	CanView(ctx context.Context, memoryID string, p Principal) (bool, error)
}
