// Package asset is the Postgres-backed AssetStore and Acl adapter. All
// SQL lives here; the gateway core sees only the collaborator contracts.
package asset

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/552020/futura-alpha-icp-sub009/internal/store"
)

// viewBit is the permission bit the gateway cares about.
const viewBit = 1

// Repository implements store.AssetStore and store.Acl over Postgres.
type Repository struct {
	db  *sql.DB
	log *zap.Logger
}

// InitRepository creates a new asset repository instance.
func InitRepository(db *sql.DB, log *zap.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log,
	}
}

// AccessibleMemories returns memories the principal owns or holds a view
// grant on, in creation order.
func (r *Repository) AccessibleMemories(ctx context.Context, p store.Principal) ([]string, error) {
	query := `
		SELECT m.id
		FROM gateway_memories m
		WHERE m.owner = $1
		   OR EXISTS (
			SELECT 1 FROM gateway_grants g
			WHERE g.memory_id = m.id AND g.principal = $1 AND (g.perm_mask & $2) != 0
		   )
		ORDER BY m.created_at, m.id
	`
	rows, err := r.db.QueryContext(ctx, query, p, viewBit)
	if err != nil {
		return nil, errors.Wrap(err, "listing accessible memories")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scanning memory id")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "iterating memories")
}

// LoadMemory returns the memory with its asset sequences, or nil.
func (r *Repository) LoadMemory(ctx context.Context, memoryID string) (*store.Memory, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM gateway_memories WHERE id = $1)`, memoryID).Scan(&exists)
	if err != nil {
		return nil, errors.Wrap(err, "checking memory")
	}
	if !exists {
		return nil, nil
	}

	query := `
		SELECT id, kind, variant, name, content_type, size,
		       COALESCE(bytes, ''), COALESCE(locator, ''),
		       COALESCE(storage_key, ''), COALESCE(url, ''), sha256
		FROM gateway_assets
		WHERE memory_id = $1
		ORDER BY CASE kind WHEN 'inline' THEN 0 WHEN 'blob' THEN 1 ELSE 2 END, position, id
	`
	rows, err := r.db.QueryContext(ctx, query, memoryID)
	if err != nil {
		return nil, errors.Wrap(err, "loading assets")
	}
	defer rows.Close()

	mem := &store.Memory{ID: memoryID}
	for rows.Next() {
		var (
			id, kind, variant, name, contentType string
			size                                 int64
			payload                              []byte
			locator, storageKey, rawURL          string
			sha                                  []byte
		)
		if err := rows.Scan(&id, &kind, &variant, &name, &contentType, &size,
			&payload, &locator, &storageKey, &rawURL, &sha); err != nil {
			return nil, errors.Wrap(err, "scanning asset")
		}
		switch kind {
		case "inline":
			mem.Inline = append(mem.Inline, store.Inline{
				ID: id, Variant: variant, Name: name, ContentType: contentType,
				Bytes: payload, Size: uint64(size), SHA256: sha,
			})
		case "blob":
			mem.Blobs = append(mem.Blobs, store.Blob{
				ID: id, Variant: variant, Name: name, ContentType: contentType,
				Size: uint64(size), Locator: locator, SHA256: sha,
			})
		default:
			mem.External = append(mem.External, store.External{
				ID: id, Variant: variant, StorageKey: storageKey, URL: rawURL, Size: uint64(size),
			})
		}
	}
	return mem, errors.Wrap(rows.Err(), "iterating assets")
}

// InlineByID returns the inline asset when the principal may view its memory.
func (r *Repository) InlineByID(ctx context.Context, p store.Principal, memoryID, assetID string) (*store.Inline, error) {
	viewable, err := r.CanView(ctx, memoryID, p)
	if err != nil || !viewable {
		return nil, err
	}
	query := `
		SELECT id, variant, name, content_type, size, COALESCE(bytes, ''), sha256
		FROM gateway_assets
		WHERE memory_id = $1 AND id = $2 AND kind = 'inline'
	`
	var a store.Inline
	var size int64
	err = r.db.QueryRowContext(ctx, query, memoryID, assetID).Scan(
		&a.ID, &a.Variant, &a.Name, &a.ContentType, &size, &a.Bytes, &a.SHA256)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading inline asset")
	}
	a.Size = uint64(size)
	return &a, nil
}

// BlobByID returns the internal-blob asset under the same rules.
func (r *Repository) BlobByID(ctx context.Context, p store.Principal, memoryID, assetID string) (*store.Blob, error) {
	viewable, err := r.CanView(ctx, memoryID, p)
	if err != nil || !viewable {
		return nil, err
	}
	query := `
		SELECT id, variant, name, content_type, size, COALESCE(locator, ''), sha256
		FROM gateway_assets
		WHERE memory_id = $1 AND id = $2 AND kind = 'blob'
	`
	var a store.Blob
	var size int64
	err = r.db.QueryRowContext(ctx, query, memoryID, assetID).Scan(
		&a.ID, &a.Variant, &a.Name, &a.ContentType, &size, &a.Locator, &a.SHA256)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading blob asset")
	}
	a.Size = uint64(size)
	return &a, nil
}

// ResolveForVariant picks the serving asset id with the inline -> blob
// -> external priority encoded in the ORDER BY.
func (r *Repository) ResolveForVariant(ctx context.Context, p store.Principal, memoryID, variant, assetID string) (string, error) {
	viewable, err := r.CanView(ctx, memoryID, p)
	if err != nil || !viewable {
		return "", err
	}
	query := `
		SELECT id
		FROM gateway_assets
		WHERE memory_id = $1 AND variant = $2 AND ($3 = '' OR id = $3)
		ORDER BY CASE kind WHEN 'inline' THEN 0 WHEN 'blob' THEN 1 ELSE 2 END, position, id
		LIMIT 1
	`
	var id string
	err = r.db.QueryRowContext(ctx, query, memoryID, variant, assetID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "resolving variant")
	}
	return id, nil
}

// CanView evaluates the view permission: ownership or a grant carrying
// the view bit.
func (r *Repository) CanView(ctx context.Context, memoryID string, p store.Principal) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM gateway_memories m
			WHERE m.id = $1 AND m.owner = $2
		) OR EXISTS (
			SELECT 1 FROM gateway_grants g
			WHERE g.memory_id = $1 AND g.principal = $2 AND (g.perm_mask & $3) != 0
		)
	`
	var allowed bool
	if err := r.db.QueryRowContext(ctx, query, memoryID, p, viewBit).Scan(&allowed); err != nil {
		return false, errors.Wrap(err, "evaluating view permission")
	}
	return allowed, nil
}
