package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/552020/futura-alpha-icp-sub009/internal/metrics"
	"github.com/552020/futura-alpha-icp-sub009/internal/resolver"
	"github.com/552020/futura-alpha-icp-sub009/internal/store"
	"github.com/552020/futura-alpha-icp-sub009/internal/token"
	errs "github.com/552020/futura-alpha-icp-sub009/pkg/errors"
)

const maxMintAssetIDs = 16

// nonceCounter feeds the deterministic nonce fallback; uniqueness, not
// secrecy, is what nonces provide.
var nonceCounter atomic.Uint64

// MintRequest is the read-only capability issuance input.
type MintRequest struct {
	MemoryID string
	Variants []string
	AssetIDs []string
	TTLSecs  uint32
}

// Mint validates the request against the caller's view permission and
// returns an encoded token. It mutates no state.
func (g *Gateway) Mint(ctx context.Context, caller store.Principal, req MintRequest) (string, error) {
	tok, err := g.mint(ctx, caller, req)
	metrics.Mints.WithLabelValues(mintOutcome(err)).Inc()
	return tok, err
}

func (g *Gateway) mint(ctx context.Context, caller store.Principal, req MintRequest) (string, error) {
	if caller == "" {
		return "", fmt.Errorf("%w: anonymous caller", errs.ErrForbidden)
	}
	if err := validateMintRequest(req); err != nil {
		return "", err
	}

	allowed, err := g.acl.CanView(ctx, req.MemoryID, caller)
	if err != nil {
		return "", fmt.Errorf("%w: acl check: %w", errs.ErrInternal, err)
	}
	if !allowed {
		return "", errs.ErrForbidden
	}

	// Explicitly named assets must be resolvable for the caller as
	// inline or internal-blob storage; external-only ids are not
	// mintable in this phase.
	for _, assetID := range req.AssetIDs {
		if err := g.checkResolvable(ctx, caller, req.MemoryID, req.Variants, assetID); err != nil {
			return "", err
		}
	}

	now := g.clock.NowNs()
	ttl := token.ClampTTL(req.TTLSecs)
	payload := token.Payload{
		Ver:   token.Version,
		Kid:   g.secrets.CurrentKid(),
		ExpNs: now + uint64(ttl.Nanoseconds()),
		Nonce: g.nonce(caller, now),
		Scope: token.Scope{
			MemoryID: req.MemoryID,
			Variants: req.Variants,
			AssetIDs: req.AssetIDs,
		},
		Sub: caller,
	}

	key, ok := g.secrets.Key(payload.Kid)
	if !ok {
		// The current kid always resolves unless the lifecycle broke.
		return "", fmt.Errorf("%w: current signing key missing", errs.ErrInternal)
	}
	encoded, err := token.Sign(payload, key)
	if err != nil {
		return "", fmt.Errorf("%w: signing: %w", errs.ErrInternal, err)
	}
	g.log.Debug("token minted",
		zap.String("memory_id", req.MemoryID),
		zap.Uint32("kid", payload.Kid),
		zap.Uint64("exp_ns", payload.ExpNs))
	return encoded, nil
}

func validateMintRequest(req MintRequest) error {
	if req.MemoryID == "" {
		return fmt.Errorf("%w: memory id is required", errs.ErrInvalidInput)
	}
	if len(req.Variants) == 0 {
		return fmt.Errorf("%w: at least one variant is required", errs.ErrInvalidInput)
	}
	for _, v := range req.Variants {
		if !token.KnownVariant(v) {
			return fmt.Errorf("%w: unknown variant %q", errs.ErrInvalidInput, v)
		}
	}
	if len(req.AssetIDs) > maxMintAssetIDs {
		return fmt.Errorf("%w: at most %d asset ids", errs.ErrInvalidInput, maxMintAssetIDs)
	}
	for _, id := range req.AssetIDs {
		if id == "" || len(id) > maxAssetIDLen {
			return fmt.Errorf("%w: bad asset id", errs.ErrInvalidInput)
		}
	}
	return nil
}

func (g *Gateway) checkResolvable(ctx context.Context, caller store.Principal, memoryID string, variants []string, assetID string) error {
	for _, variant := range variants {
		resolved, err := g.resolver.Resolve(ctx, caller, memoryID, variant, assetID)
		if errors.Is(err, errs.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if resolved.Kind == resolver.KindExternal { // not mintable in this phase
			continue
		}
		return nil
	}
	return fmt.Errorf("%w: asset %q", errs.ErrNotFound, assetID)
}

// nonce returns 12 fresh bytes: host randomness when available, else a
// unique combination of caller, time and a process counter.
func (g *Gateway) nonce(caller store.Principal, nowNs uint64) []byte {
	buf := make([]byte, token.NonceSize)
	if err := g.random.Read(buf); err == nil {
		return buf
	}
	var seed [16]byte
	binary.BigEndian.PutUint64(seed[0:8], nowNs)
	binary.BigEndian.PutUint64(seed[8:16], nonceCounter.Add(1))
	sum := sha256.Sum256(append([]byte(caller), seed[:]...))
	copy(buf, sum[:token.NonceSize])
	return buf
}

func mintOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errs.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, errs.ErrForbidden):
		return "forbidden"
	case errors.Is(err, errs.ErrNotFound):
		return "not_found"
	}
	return "error"
}
