package server

import (
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/552020/futura-alpha-icp-sub009/internal/gateway"
	"github.com/552020/futura-alpha-icp-sub009/internal/server/httputil"
	"github.com/552020/futura-alpha-icp-sub009/pkg/contextx"
	errs "github.com/552020/futura-alpha-icp-sub009/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// callerHeader carries the authenticated caller identity, injected by
// the trusted platform ingress in front of this process. It is the
// adapter-level analogue of reading the message caller from the host.
const callerHeader = "X-Ic-Caller"

type mintRequestBody struct {
	MemoryID string   `json:"memory_id"`
	Variants []string `json:"variants"`
	AssetIDs []string `json:"asset_ids,omitempty"`
	TTLSecs  uint32   `json:"ttl_secs"`
}

type mintResponseBody struct {
	Token string `json:"token"`
}

// RegisterMintHandler exposes capability issuance. The operation is
// read-only; it maps the core's typed failures onto statuses.
func RegisterMintHandler(mux *http.ServeMux, log *zap.Logger, core *gateway.Gateway) {
	mux.HandleFunc("/api/mint", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.WriteJSONError(w, log, http.StatusMethodNotAllowed, "method not allowed", nil)
			return
		}
		caller := r.Header.Get(callerHeader)
		if caller == "" {
			httputil.WriteJSONError(w, log, http.StatusForbidden, "forbidden", nil)
			return
		}

		var body mintRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httputil.WriteJSONError(w, log, http.StatusBadRequest, "invalid JSON", err)
			return
		}

		ctx := contextx.WithCaller(r.Context(), caller)
		tok, err := core.Mint(ctx, caller, gateway.MintRequest{
			MemoryID: body.MemoryID,
			Variants: body.Variants,
			AssetIDs: body.AssetIDs,
			TTLSecs:  body.TTLSecs,
		})
		switch {
		case errors.Is(err, errs.ErrInvalidInput):
			httputil.WriteJSONError(w, log, http.StatusBadRequest, "invalid input", nil)
		case errors.Is(err, errs.ErrForbidden):
			// Opaque outcome: no detail on why the mint was refused.
			httputil.WriteJSONError(w, log, http.StatusForbidden, "forbidden", nil)
		case errors.Is(err, errs.ErrNotFound):
			httputil.WriteJSONError(w, log, http.StatusNotFound, "not found", nil)
		case err != nil:
			httputil.WriteJSONError(w, log, http.StatusInternalServerError, "internal error", err)
		default:
			httputil.WriteJSONResponse(w, log, mintResponseBody{Token: tok})
		}
	})
}
