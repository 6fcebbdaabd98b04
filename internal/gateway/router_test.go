package gateway

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/552020/futura-alpha-icp-sub009/internal/platform"
	"github.com/552020/futura-alpha-icp-sub009/internal/store"
	"github.com/552020/futura-alpha-icp-sub009/internal/token"
)

const (
	owner    = "principal-a"
	stranger = "principal-b"
)

type fixedClock uint64

func (c fixedClock) NowNs() uint64 { return uint64(c) }

type staticSecrets struct {
	keys map[uint32][32]byte
	kid  uint32
}

func (s staticSecrets) Key(kid uint32) ([32]byte, bool) {
	k, ok := s.keys[kid]
	return k, ok
}

func (s staticSecrets) CurrentKid() uint32 { return s.kid }

var testKey = [32]byte{1, 2, 3}

func testSecrets() staticSecrets {
	return staticSecrets{keys: map[uint32][32]byte{1: testKey}, kid: 1}
}

func seededStore() *store.MemStore {
	ms := store.NewMemStore()
	ms.AddMemory(store.Memory{
		ID: "mem-A",
		Inline: []store.Inline{
			{ID: "a-1", Variant: "original", Name: "hello.txt", ContentType: "text/plain", Bytes: []byte("Hello"), Size: 5},
			{ID: "t-1", Variant: "thumbnail", ContentType: "image/jpeg", Bytes: []byte{0xff, 0xd8, 0xff, 0x00}, Size: 4},
		},
		Blobs: []store.Blob{
			{ID: "b-1", Variant: "preview", Name: "preview.bin", ContentType: "application/octet-stream", Size: 8, Locator: "loc-b1"},
			{ID: "b-big", Variant: "derivative", Size: 3_000_000, Locator: "loc-big"},
		},
		External: []store.External{
			{ID: "x-1", Variant: "placeholder", StorageKey: "s3://x-1"},
		},
	}, owner)
	ms.PutBlob("loc-b1", []byte("PREVIEW!"))
	return ms
}

func newTestGateway(t *testing.T, ms *store.MemStore, clock platform.Clock) *Gateway {
	t.Helper()
	certifier, err := platform.NewLocalCertifier(platform.CryptoRandom{})
	require.NoError(t, err)
	require.NoError(t, certifier.SetCertifiedData(SkipCertificationRoot()))

	g, err := New(zaptest.NewLogger(t), Config{
		Clock:     clock,
		Secrets:   testSecrets(),
		Assets:    ms,
		Blobs:     ms,
		Acl:       ms,
		Certifier: certifier,
		Random:    platform.CryptoRandom{},
	})
	require.NoError(t, err)
	return g
}

func signScope(t *testing.T, scope token.Scope, exp uint64, sub string) string {
	t.Helper()
	tok, err := token.Sign(token.Payload{
		Ver:   token.Version,
		Kid:   1,
		ExpNs: exp,
		Nonce: []byte("nonce-abcdef"),
		Scope: scope,
		Sub:   sub,
	}, testKey)
	require.NoError(t, err)
	return tok
}

func get(g *Gateway, rawURL string, headers ...Header) Response {
	return g.Handle(context.Background(), Request{Method: "GET", URL: rawURL, Headers: headers})
}

func TestNewRequiresCollaborators(t *testing.T) {
	ms := seededStore()
	certifier, err := platform.NewLocalCertifier(platform.CryptoRandom{})
	require.NoError(t, err)

	base := Config{
		Clock:     fixedClock(0),
		Secrets:   testSecrets(),
		Assets:    ms,
		Blobs:     ms,
		Acl:       ms,
		Certifier: certifier,
		Random:    platform.CryptoRandom{},
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		err    string
	}{
		{"missing clock", func(c *Config) { c.Clock = nil }, "clock is required"},
		{"missing secrets", func(c *Config) { c.Secrets = nil }, "secret store is required"},
		{"missing assets", func(c *Config) { c.Assets = nil }, "asset store is required"},
		{"missing blobs", func(c *Config) { c.Blobs = nil }, "blob store is required"},
		{"missing acl", func(c *Config) { c.Acl = nil }, "acl is required"},
		{"missing certifier", func(c *Config) { c.Certifier = nil }, "certifier is required"},
		{"missing random", func(c *Config) { c.Random = nil }, "randomness source is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			_, err := New(zaptest.NewLogger(t), cfg)
			require.EqualError(t, err, tt.err)
		})
	}
}

func TestHealth(t *testing.T) {
	g := newTestGateway(t, seededStore(), fixedClock(0))

	resp := get(g, "/health")
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "OK", string(resp.Body))
	assertAlwaysHeaders(t, resp)

	ct, _ := resp.HeaderValue("Content-Type")
	assert.Equal(t, "text/plain", ct)

	head := g.Handle(context.Background(), Request{Method: "HEAD", URL: "/health"})
	assert.Equal(t, 200, head.StatusCode)

	post := g.Handle(context.Background(), Request{Method: "POST", URL: "/health"})
	assert.Equal(t, 404, post.StatusCode)
}

func TestUnknownRoute(t *testing.T) {
	g := newTestGateway(t, seededStore(), fixedClock(0))
	resp := get(g, "/unknown")
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "Not Found", string(resp.Body))
	assertAlwaysHeaders(t, resp)
}

func TestAssetMethodNotAllowed(t *testing.T) {
	g := newTestGateway(t, seededStore(), fixedClock(0))
	resp := g.Handle(context.Background(), Request{Method: "PUT", URL: "/asset/mem-A/original"})
	assert.Equal(t, 404, resp.StatusCode)
}

func TestMintThenGetHappyPath(t *testing.T) {
	clock := fixedClock(1_000_000_000)
	g := newTestGateway(t, seededStore(), clock)

	tok, err := g.Mint(context.Background(), owner, MintRequest{
		MemoryID: "mem-A",
		Variants: []string{"original"},
		AssetIDs: []string{"a-1"},
		TTLSecs:  60,
	})
	require.NoError(t, err)

	resp := get(g, "/asset/mem-A/original?id=a-1&token="+tok)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "Hello", string(resp.Body))
	assertAlwaysHeaders(t, resp)

	ct, _ := resp.HeaderValue("Content-Type")
	assert.Equal(t, "text/plain", ct)
	cl, _ := resp.HeaderValue("Content-Length")
	assert.Equal(t, "5", cl)
	cc, _ := resp.HeaderValue("Cache-Control")
	assert.Equal(t, "private, no-store", cc)
	cd, _ := resp.HeaderValue("Content-Disposition")
	assert.Equal(t, `inline; filename="hello.txt"`, cd)
}

func TestBearerHeaderToken(t *testing.T) {
	g := newTestGateway(t, seededStore(), fixedClock(1))
	tok := signScope(t, token.Scope{MemoryID: "mem-A", Variants: []string{"original"}}, 100, owner)

	resp := get(g, "/asset/mem-A/original", Header{"Authorization", "Bearer " + tok})
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "Hello", string(resp.Body))
}

func TestPercentEncodedToken(t *testing.T) {
	g := newTestGateway(t, seededStore(), fixedClock(1))
	tok := signScope(t, token.Scope{MemoryID: "mem-A", Variants: []string{"original"}}, 100, owner)

	// Percent-encode every byte of the token; the parser must decode
	// before base64 decoding.
	var encoded strings.Builder
	for i := 0; i < len(tok); i++ {
		fmt.Fprintf(&encoded, "%%%02X", tok[i])
	}
	resp := get(g, "/asset/mem-A/original?token="+encoded.String())
	assert.Equal(t, 200, resp.StatusCode)
}

func TestMissingToken(t *testing.T) {
	g := newTestGateway(t, seededStore(), fixedClock(1))
	resp := get(g, "/asset/mem-A/original")
	assert.Equal(t, 401, resp.StatusCode)
	assert.Equal(t, "Missing token", string(resp.Body))
}

func TestForbiddenResponses(t *testing.T) {
	clock := fixedClock(1_000_000_001)
	g := newTestGateway(t, seededStore(), clock)

	okScope := token.Scope{MemoryID: "mem-A", Variants: []string{"original"}}

	tests := []struct {
		name string
		url  string
	}{
		{"expired token", "/asset/mem-A/original?token=" + signScope(t, okScope, 1_000_000_000, owner)},
		{"malformed token", "/asset/mem-A/original?token=not-a-token"},
		{"wrong memory", "/asset/mem-B/original?token=" + signScope(t, okScope, 2_000_000_000, owner)},
		{"variant not allowed", "/asset/mem-A/original?token=" + signScope(t, token.Scope{MemoryID: "mem-A", Variants: []string{"thumbnail"}}, 2_000_000_000, owner)},
		{"asset not allowed", "/asset/mem-A/original?id=a-1&token=" + signScope(t, token.Scope{MemoryID: "mem-A", Variants: []string{"original"}, AssetIDs: []string{"other"}}, 2_000_000_000, owner)},
		{"missing subject", "/asset/mem-A/original?token=" + signScope(t, okScope, 2_000_000_000, "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(g, tt.url)
			assert.Equal(t, 403, resp.StatusCode)
			// Generic body: failure subkinds must not leak.
			assert.Equal(t, "Forbidden", string(resp.Body))
			assertAlwaysHeaders(t, resp)
		})
	}
}

func TestNotFoundResponses(t *testing.T) {
	g := newTestGateway(t, seededStore(), fixedClock(1))

	tests := []struct {
		name string
		url  string
	}{
		{"token subject has no access", "/asset/mem-A/original?token=" +
			signScope(t, token.Scope{MemoryID: "mem-A", Variants: []string{"original"}}, 100, stranger)},
		{"no asset for variant", "/asset/mem-A/derivative?id=nope&token=" +
			signScope(t, token.Scope{MemoryID: "mem-A", Variants: []string{"derivative"}}, 100, owner)},
		{"external asset", "/asset/mem-A/placeholder?token=" +
			signScope(t, token.Scope{MemoryID: "mem-A", Variants: []string{"placeholder"}}, 100, owner)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(g, tt.url)
			assert.Equal(t, 404, resp.StatusCode)
			assert.Equal(t, "Not Found", string(resp.Body))
		})
	}
}

func TestInternalBlobServing(t *testing.T) {
	g := newTestGateway(t, seededStore(), fixedClock(1))
	tok := signScope(t, token.Scope{MemoryID: "mem-A", Variants: []string{"preview"}}, 100, owner)

	resp := get(g, "/asset/mem-A/preview?id=b-1&token="+tok)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "PREVIEW!", string(resp.Body))
	cl, _ := resp.HeaderValue("Content-Length")
	assert.Equal(t, "8", cl)
}

func TestBlobTooLarge(t *testing.T) {
	g := newTestGateway(t, seededStore(), fixedClock(1))
	tok := signScope(t, token.Scope{MemoryID: "mem-A", Variants: []string{"derivative"}}, 100, owner)

	resp := get(g, "/asset/mem-A/derivative?id=b-big&token="+tok)
	assert.Equal(t, 413, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "streaming is unavailable")
}

func TestBlobMissingFromStore(t *testing.T) {
	ms := seededStore()
	ms.AddMemory(store.Memory{
		ID:    "mem-drift",
		Blobs: []store.Blob{{ID: "gone", Variant: "preview", Size: 4, Locator: "loc-gone"}},
	}, owner)
	g := newTestGateway(t, ms, fixedClock(1))
	tok := signScope(t, token.Scope{MemoryID: "mem-drift", Variants: []string{"preview"}}, 100, owner)

	resp := get(g, "/asset/mem-drift/preview?token="+tok)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestSingleResponseCeiling(t *testing.T) {
	ms := store.NewMemStore()
	exact := bytes.Repeat([]byte{'x'}, MaxSingleResponse)
	over := bytes.Repeat([]byte{'x'}, MaxSingleResponse+1)
	ms.AddMemory(store.Memory{
		ID: "mem-big",
		Inline: []store.Inline{
			{ID: "exact", Variant: "original", ContentType: "application/octet-stream", Bytes: exact, Size: uint64(len(exact))},
			{ID: "over", Variant: "preview", ContentType: "application/octet-stream", Bytes: over, Size: uint64(len(over))},
		},
	}, owner)
	g := newTestGateway(t, ms, fixedClock(1))

	tok := signScope(t, token.Scope{MemoryID: "mem-big", Variants: []string{"original", "preview"}}, 100, owner)

	resp := get(g, "/asset/mem-big/original?id=exact&token="+tok)
	require.Equal(t, 200, resp.StatusCode)
	cl, _ := resp.HeaderValue("Content-Length")
	assert.Equal(t, "2097152", cl)

	resp = get(g, "/asset/mem-big/preview?id=over&token="+tok)
	assert.Equal(t, 413, resp.StatusCode)
}

func TestBadRequests(t *testing.T) {
	g := newTestGateway(t, seededStore(), fixedClock(1))
	tok := signScope(t, token.Scope{MemoryID: "mem-A", Variants: []string{"original"}}, 100, owner)

	tests := []struct {
		name string
		url  string
	}{
		{"unknown variant", "/asset/mem-A/video?token=" + tok},
		{"missing variant", "/asset/mem-A?token=" + tok},
		{"bad percent escape", "/asset/mem-A/original?token=%zz"},
		{"oversized id", "/asset/mem-A/original?id=" + strings.Repeat("x", 129) + "&token=" + tok},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(g, tt.url)
			assert.Equal(t, 400, resp.StatusCode)
			assert.Equal(t, "Bad Request", string(resp.Body))
		})
	}
}

func TestContentTypeSniffFallback(t *testing.T) {
	ms := store.NewMemStore()
	ms.AddMemory(store.Memory{
		ID: "mem-S",
		Inline: []store.Inline{
			{ID: "jpeg", Variant: "thumbnail", Bytes: []byte{0xff, 0xd8, 0xff, 0xe0}, Size: 4},
			{ID: "blob", Variant: "preview", Bytes: []byte{0x00, 0x01}, Size: 2},
		},
	}, owner)
	g := newTestGateway(t, ms, fixedClock(1))
	tok := signScope(t, token.Scope{MemoryID: "mem-S", Variants: []string{"thumbnail", "preview"}}, 100, owner)

	resp := get(g, "/asset/mem-S/thumbnail?token="+tok)
	require.Equal(t, 200, resp.StatusCode)
	ct, _ := resp.HeaderValue("Content-Type")
	assert.Equal(t, "image/jpeg", ct)

	resp = get(g, "/asset/mem-S/preview?token="+tok)
	require.Equal(t, 200, resp.StatusCode)
	ct, _ = resp.HeaderValue("Content-Type")
	assert.Equal(t, "application/octet-stream", ct)
}

// assertAlwaysHeaders checks the headers every response must carry: the
// private cache policy and the skip-certification declaration.
func assertAlwaysHeaders(t *testing.T, resp Response) {
	t.Helper()
	cc, ok := resp.HeaderValue("Cache-Control")
	require.True(t, ok)
	assert.Equal(t, "private, no-store", cc)

	cert, ok := resp.HeaderValue("IC-Certificate")
	require.True(t, ok, "certificate header missing")
	assert.Contains(t, cert, "certificate=:")
	assert.Contains(t, cert, "tree=:")

	expr, ok := resp.HeaderValue("IC-CertificateExpression")
	require.True(t, ok, "certificate expression header missing")
	assert.Equal(t, CertExpressionSkip, expr)
	assert.Contains(t, expr, "no_certification")

	assert.False(t, resp.Upgrade)
}
