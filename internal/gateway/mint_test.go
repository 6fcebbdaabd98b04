package gateway

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/552020/futura-alpha-icp-sub009/internal/token"
	errs "github.com/552020/futura-alpha-icp-sub009/pkg/errors"
)

func TestMintHappyPath(t *testing.T) {
	clock := fixedClock(1_000_000_000)
	g := newTestGateway(t, seededStore(), clock)

	tok, err := g.Mint(context.Background(), owner, MintRequest{
		MemoryID: "mem-A",
		Variants: []string{"original"},
		AssetIDs: []string{"a-1"},
		TTLSecs:  60,
	})
	require.NoError(t, err)

	payload, err := token.Verify(tok,
		token.Scope{MemoryID: "mem-A", Variants: []string{"original"}, AssetIDs: []string{"a-1"}},
		uint64(clock), testSecrets().Key)
	require.NoError(t, err)

	assert.Equal(t, uint8(token.Version), payload.Ver)
	assert.Equal(t, uint32(1), payload.Kid)
	assert.Equal(t, owner, payload.Sub, "sub must carry the minting caller")
	assert.Equal(t, uint64(1_000_000_000)+60*1_000_000_000, payload.ExpNs)
	assert.Len(t, payload.Nonce, token.NonceSize)
}

func TestMintTTLPolicy(t *testing.T) {
	clock := fixedClock(1_000_000_000)
	g := newTestGateway(t, seededStore(), clock)

	tests := []struct {
		ttl     uint32
		wantSec uint64
	}{
		{0, 180},    // zero means default
		{5, 15},     // floor
		{60, 60},    // in range
		{9999, 180}, // cap
	}
	for _, tt := range tests {
		tok, err := g.Mint(context.Background(), owner, MintRequest{
			MemoryID: "mem-A",
			Variants: []string{"thumbnail"},
			TTLSecs:  tt.ttl,
		})
		require.NoError(t, err)
		payload, err := token.Verify(tok,
			token.Scope{MemoryID: "mem-A", Variants: []string{"thumbnail"}},
			uint64(clock), testSecrets().Key)
		require.NoError(t, err)
		assert.Equal(t, uint64(clock)+tt.wantSec*1_000_000_000, payload.ExpNs, "ttl=%d", tt.ttl)
	}
}

func TestMintValidation(t *testing.T) {
	g := newTestGateway(t, seededStore(), fixedClock(1))

	manyIDs := make([]string, 17)
	for i := range manyIDs {
		manyIDs[i] = "a-1"
	}

	tests := []struct {
		name string
		req  MintRequest
		err  error
	}{
		{"empty memory", MintRequest{Variants: []string{"original"}}, errs.ErrInvalidInput},
		{"no variants", MintRequest{MemoryID: "mem-A"}, errs.ErrInvalidInput},
		{"unknown variant", MintRequest{MemoryID: "mem-A", Variants: []string{"video"}}, errs.ErrInvalidInput},
		{"too many asset ids", MintRequest{MemoryID: "mem-A", Variants: []string{"original"}, AssetIDs: manyIDs}, errs.ErrInvalidInput},
		{"empty asset id", MintRequest{MemoryID: "mem-A", Variants: []string{"original"}, AssetIDs: []string{""}}, errs.ErrInvalidInput},
		{"unresolvable asset id", MintRequest{MemoryID: "mem-A", Variants: []string{"original"}, AssetIDs: []string{"ghost"}}, errs.ErrNotFound},
		{"external-only asset id", MintRequest{MemoryID: "mem-A", Variants: []string{"placeholder"}, AssetIDs: []string{"x-1"}}, errs.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Mint(context.Background(), owner, tt.req)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestMintAclDenied(t *testing.T) {
	g := newTestGateway(t, seededStore(), fixedClock(1))

	_, err := g.Mint(context.Background(), stranger, MintRequest{
		MemoryID: "mem-A",
		Variants: []string{"original"},
	})
	assert.ErrorIs(t, err, errs.ErrForbidden)

	_, err = g.Mint(context.Background(), "", MintRequest{
		MemoryID: "mem-A",
		Variants: []string{"original"},
	})
	assert.ErrorIs(t, err, errs.ErrForbidden)
}

func TestMintOriginalWithoutAssetIDsIsPermitted(t *testing.T) {
	// Soft policy: a token may authorize all originals of a memory.
	g := newTestGateway(t, seededStore(), fixedClock(1))
	tok, err := g.Mint(context.Background(), owner, MintRequest{
		MemoryID: "mem-A",
		Variants: []string{"original"},
	})
	require.NoError(t, err)

	resp := get(g, "/asset/mem-A/original?token="+tok)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestMintedTokenIsURLSafe(t *testing.T) {
	g := newTestGateway(t, seededStore(), fixedClock(1))
	tok, err := g.Mint(context.Background(), owner, MintRequest{
		MemoryID: "mem-A",
		Variants: []string{"original", "thumbnail"},
		AssetIDs: []string{"a-1", "t-1"},
	})
	require.NoError(t, err)

	assert.NotContains(t, tok, "=")
	assert.NotContains(t, tok, "+")
	assert.NotContains(t, tok, "/")
	_, err = base64.RawURLEncoding.DecodeString(tok)
	assert.NoError(t, err)
	assert.LessOrEqual(t, len(tok), token.MaxEncodedLen)
}

func TestNonceUniqueness(t *testing.T) {
	g := newTestGateway(t, seededStore(), fixedClock(1))
	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		n := string(g.nonce(owner, 1))
		assert.False(t, seen[n], "nonce repeated")
		seen[n] = true
	}
}
