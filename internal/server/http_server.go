// Package server adapts the wire-level gateway core to net/http. The
// core keeps its own request/response shapes so it stays portable; this
// package only translates.
package server

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/552020/futura-alpha-icp-sub009/internal/gateway"
)

// New builds the HTTP server fronting the gateway core.
func New(log *zap.Logger, core *gateway.Gateway, addr string) *http.Server {
	mux := http.NewServeMux()
	RegisterGatewayHandler(mux, log, core)
	RegisterMintHandler(mux, log, core)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second, // Mitigate Slowloris
	}
}
