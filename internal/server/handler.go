package server

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/552020/futura-alpha-icp-sub009/internal/gateway"
	"github.com/552020/futura-alpha-icp-sub009/pkg/contextx"
)

// maxRequestBody bounds what the adapter reads; the asset surface is
// GET-only so bodies are never meaningful.
const maxRequestBody = 64 * 1024

// RegisterGatewayHandler routes everything except the mint API through
// the wire-level core.
func RegisterGatewayHandler(mux *http.ServeMux, log *zap.Logger, core *gateway.Gateway) {
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		ctx := contextx.WithRequestID(contextx.WithLogger(r.Context(), log), requestID)

		resp := core.Handle(ctx, toWireRequest(r))

		header := w.Header()
		header.Set("X-Request-Id", requestID)
		for _, h := range resp.Headers {
			header.Add(h.Name, h.Value)
		}
		w.WriteHeader(resp.StatusCode)
		if r.Method != http.MethodHead {
			if _, err := w.Write(resp.Body); err != nil {
				log.Warn("failed to write response body", zap.Error(err))
			}
		}
	})
}

// toWireRequest flattens a net/http request into the core's wire shape.
func toWireRequest(r *http.Request) gateway.Request {
	headers := make([]gateway.Header, 0, len(r.Header))
	for name, values := range r.Header {
		if len(values) > 0 {
			headers = append(headers, gateway.Header{Name: name, Value: values[0]})
		}
	}
	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	}
	return gateway.Request{
		Method:  r.Method,
		URL:     r.URL.RequestURI(),
		Headers: headers,
		Body:    body,
	}
}
