package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/552020/futura-alpha-icp-sub009/internal/gateway"
	"github.com/552020/futura-alpha-icp-sub009/internal/platform"
	"github.com/552020/futura-alpha-icp-sub009/internal/secrets"
	"github.com/552020/futura-alpha-icp-sub009/internal/store"
)

const owner = "principal-a"

type fixedClock uint64

func (c fixedClock) NowNs() uint64 { return uint64(c) }

func newTestServer(t *testing.T) *http.ServeMux {
	t.Helper()
	log := zaptest.NewLogger(t)

	ms := store.NewMemStore()
	ms.AddMemory(store.Memory{
		ID: "mem-A",
		Inline: []store.Inline{
			{ID: "a-1", Variant: "original", Name: "hello.txt", ContentType: "text/plain", Bytes: []byte("Hello"), Size: 5},
		},
	}, owner)

	slot := secrets.NewFileSlot(t.TempDir() + "/secrets.bin")
	cell, _, err := secrets.Open(slot, platform.CryptoRandom{}, fixedClock(1), log)
	require.NoError(t, err)

	certifier, err := platform.NewLocalCertifier(platform.CryptoRandom{})
	require.NoError(t, err)
	require.NoError(t, certifier.SetCertifiedData(gateway.SkipCertificationRoot()))

	core, err := gateway.New(log, gateway.Config{
		Clock:     fixedClock(1_000_000_000),
		Secrets:   cell,
		Assets:    ms,
		Blobs:     ms,
		Acl:       ms,
		Certifier: certifier,
		Random:    platform.CryptoRandom{},
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	RegisterGatewayHandler(mux, log, core)
	RegisterMintHandler(mux, log, core)
	return mux
}

func TestMintAndServeOverHTTP(t *testing.T) {
	mux := newTestServer(t)

	mintReq := httptest.NewRequest(http.MethodPost, "/api/mint",
		strings.NewReader(`{"memory_id":"mem-A","variants":["original"],"asset_ids":["a-1"],"ttl_secs":60}`))
	mintReq.Header.Set(callerHeader, owner)
	mintRec := httptest.NewRecorder()
	mux.ServeHTTP(mintRec, mintReq)
	require.Equal(t, http.StatusOK, mintRec.Code, mintRec.Body.String())

	var minted mintResponseBody
	require.NoError(t, json.NewDecoder(mintRec.Body).Decode(&minted))
	require.NotEmpty(t, minted.Token)

	getReq := httptest.NewRequest(http.MethodGet, "/asset/mem-A/original?id=a-1&token="+minted.Token, nil)
	getRec := httptest.NewRecorder()
	mux.ServeHTTP(getRec, getReq)

	assert.Equal(t, http.StatusOK, getRec.Code)
	assert.Equal(t, "Hello", getRec.Body.String())
	assert.Equal(t, "text/plain", getRec.Header().Get("Content-Type"))
	assert.Equal(t, "5", getRec.Header().Get("Content-Length"))
	assert.Equal(t, "private, no-store", getRec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, getRec.Header().Get("IC-Certificate"))
	assert.Contains(t, getRec.Header().Get("IC-CertificateExpression"), "no_certification")
	assert.NotEmpty(t, getRec.Header().Get("X-Request-Id"))
}

func TestServeRoutes(t *testing.T) {
	mux := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		status int
		body   string
	}{
		{"health", http.MethodGet, "/health", http.StatusOK, "OK"},
		{"unknown route", http.MethodGet, "/unknown", http.StatusNotFound, "Not Found"},
		{"asset without token", http.MethodGet, "/asset/mem-A/original", http.StatusUnauthorized, "Missing token"},
		{"asset bad method", http.MethodPut, "/asset/mem-A/original", http.StatusNotFound, "Not Found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}
}

func TestMintHandlerFailures(t *testing.T) {
	mux := newTestServer(t)

	tests := []struct {
		name   string
		caller string
		body   string
		status int
	}{
		{"no caller", "", `{"memory_id":"mem-A","variants":["original"]}`, http.StatusForbidden},
		{"bad json", owner, `{`, http.StatusBadRequest},
		{"invalid input", owner, `{"memory_id":"","variants":["original"]}`, http.StatusBadRequest},
		{"acl denied", "principal-b", `{"memory_id":"mem-A","variants":["original"]}`, http.StatusForbidden},
		{"unknown asset", owner, `{"memory_id":"mem-A","variants":["original"],"asset_ids":["ghost"]}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/mint", strings.NewReader(tt.body))
			if tt.caller != "" {
				req.Header.Set(callerHeader, tt.caller)
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	t.Run("mint is POST only", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/mint", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}
