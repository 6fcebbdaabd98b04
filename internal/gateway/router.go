package gateway

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/552020/futura-alpha-icp-sub009/internal/metrics"
	"github.com/552020/futura-alpha-icp-sub009/internal/platform"
	"github.com/552020/futura-alpha-icp-sub009/internal/resolver"
	"github.com/552020/futura-alpha-icp-sub009/internal/store"
	"github.com/552020/futura-alpha-icp-sub009/internal/token"
	errs "github.com/552020/futura-alpha-icp-sub009/pkg/errors"
)

const (
	bodyOK           = "OK"
	bodyNotFound     = "Not Found"
	bodyMissingToken = "Missing token"
	bodyForbidden    = "Forbidden"
	bodyBadRequest   = "Bad Request"
	bodyInternal     = "Internal Server Error"
	bodyTooLarge     = "Payload Too Large: streaming is unavailable in this phase"
)

// SecretStore is the key-lookup capability the core consumes. Rotation
// stays with the lifecycle glue and is not reachable from a request.
type SecretStore interface {
	Key(kid uint32) ([32]byte, bool)
	CurrentKid() uint32
}

// Config carries the collaborators the gateway is built from.
type Config struct {
	Clock     platform.Clock
	Secrets   SecretStore
	Assets    store.AssetStore
	Blobs     store.BlobStore
	Acl       store.Acl
	Certifier platform.Certifier
	Random    platform.Random
}

// Gateway is the HTTP core. It is stateless between requests; the secret
// cell behind SecretStore is the only shared state it reads.
type Gateway struct {
	log       *zap.Logger
	clock     platform.Clock
	secrets   SecretStore
	resolver  *resolver.Resolver
	blobs     store.BlobStore
	acl       store.Acl
	certifier platform.Certifier
	random    platform.Random
}

// New validates the collaborator set and builds the gateway.
func New(log *zap.Logger, cfg Config) (*Gateway, error) {
	switch {
	case cfg.Clock == nil:
		return nil, errors.New("clock is required")
	case cfg.Secrets == nil:
		return nil, errors.New("secret store is required")
	case cfg.Assets == nil:
		return nil, errors.New("asset store is required")
	case cfg.Blobs == nil:
		return nil, errors.New("blob store is required")
	case cfg.Acl == nil:
		return nil, errors.New("acl is required")
	case cfg.Certifier == nil:
		return nil, errors.New("certifier is required")
	case cfg.Random == nil:
		return nil, errors.New("randomness source is required")
	}
	return &Gateway{
		log:       log,
		clock:     cfg.Clock,
		secrets:   cfg.Secrets,
		resolver:  resolver.New(cfg.Assets),
		blobs:     cfg.Blobs,
		acl:       cfg.Acl,
		certifier: cfg.Certifier,
		random:    cfg.Random,
	}, nil
}

// Handle serves one wire-level request. Parsing and authorization
// failures map to statuses here and nowhere else.
func (g *Gateway) Handle(ctx context.Context, req Request) Response {
	parsed, err := parseRequestURL(req.URL)
	if err != nil {
		return g.observe("unknown", g.textResponse(400, bodyBadRequest))
	}

	segments := parsed.segments
	switch {
	case len(segments) == 1 && segments[0] == "health":
		if req.Method != "GET" && req.Method != "HEAD" {
			return g.observe("health", g.textResponse(404, bodyNotFound))
		}
		return g.observe("health", g.textResponse(200, bodyOK))
	case len(segments) > 0 && segments[0] == "asset":
		if req.Method != "GET" {
			// 405 would leak which methods exist; a plain 404 does not.
			return g.observe("asset", g.textResponse(404, bodyNotFound))
		}
		return g.observe("asset", g.serveAsset(ctx, req, parsed))
	}
	return g.observe("unknown", g.textResponse(404, bodyNotFound))
}

func (g *Gateway) observe(route string, resp Response) Response {
	metrics.HTTPRequests.WithLabelValues(route, statusLabel(resp.StatusCode)).Inc()
	if resp.StatusCode == 200 && route == "asset" {
		metrics.BytesServed.Add(float64(len(resp.Body)))
	}
	return resp
}

func statusLabel(code int) string {
	switch code {
	case 200:
		return "200"
	case 400:
		return "400"
	case 401:
		return "401"
	case 403:
		return "403"
	case 404:
		return "404"
	case 413:
		return "413"
	default:
		return "500"
	}
}

// serveAsset runs the dispatch order: token extraction, path-to-scope
// mapping, verification (decoding, expiry, key, signature, scope),
// subject check, resolution, then the storage modality switch.
func (g *Gateway) serveAsset(ctx context.Context, req Request, parsed *parsedURL) Response {
	encoded, ok := extractToken(req, parsed.query)
	if !ok {
		return g.textResponse(401, bodyMissingToken)
	}

	requested, err := pathToScope(parsed.segments, parsed.query)
	if err != nil {
		return g.textResponse(400, bodyBadRequest)
	}

	payload, err := token.Verify(encoded, requested, g.clock.NowNs(), g.secrets.Key)
	if err != nil {
		kind := authFailureKind(err)
		metrics.AuthFailures.WithLabelValues(kind).Inc()
		// Subkinds are logged, never leaked; a generic body denies
		// token probing.
		g.log.Warn("token rejected",
			zap.String("kind", kind),
			zap.String("memory_id", requested.MemoryID))
		return g.textResponse(403, bodyForbidden)
	}
	if payload.Sub == "" {
		metrics.AuthFailures.WithLabelValues("missing_subject").Inc()
		return g.textResponse(403, bodyForbidden)
	}

	assetID := ""
	if len(requested.AssetIDs) == 1 {
		assetID = requested.AssetIDs[0]
	}

	resolved, err := g.resolver.Resolve(ctx, payload.Sub, requested.MemoryID, requested.Variants[0], assetID)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return g.textResponse(404, bodyNotFound)
	case err != nil:
		g.log.Error("asset resolution failed", zap.Error(err))
		return g.textResponse(500, bodyInternal)
	}

	switch resolved.Kind {
	case resolver.KindInline:
		return g.serveInline(resolved.Inline)
	case resolver.KindInternalBlob:
		return g.serveBlob(ctx, resolved.Blob)
	default:
		// Cross-store fetch is reserved for the streaming phase.
		return g.textResponse(404, bodyNotFound)
	}
}

func (g *Gateway) serveInline(asset *store.Inline) Response {
	size := asset.Size
	if size == 0 {
		size = uint64(len(asset.Bytes))
	}
	if size > MaxSingleResponse {
		return g.textResponse(413, bodyTooLarge)
	}
	return g.assetResponse(asset.Bytes, asset.ContentType, filenameOf(asset.Name, asset.ID))
}

func (g *Gateway) serveBlob(ctx context.Context, asset *store.Blob) Response {
	if asset.Size > MaxSingleResponse {
		return g.textResponse(413, bodyTooLarge)
	}
	payload, err := g.blobs.Read(ctx, asset.Locator)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		g.log.Warn("blob missing for stored locator", zap.String("locator", asset.Locator))
		return g.textResponse(404, bodyNotFound)
	case errors.Is(err, errs.ErrTooLarge):
		return g.textResponse(413, bodyTooLarge)
	case err != nil:
		g.log.Error("blob read failed", zap.Error(err))
		return g.textResponse(500, bodyInternal)
	}
	if uint64(len(payload)) > MaxSingleResponse {
		return g.textResponse(413, bodyTooLarge)
	}
	return g.assetResponse(payload, asset.ContentType, filenameOf(asset.Name, asset.ID))
}

func filenameOf(name, id string) string {
	if name != "" {
		return name
	}
	return id
}

func authFailureKind(err error) string {
	switch {
	case errors.Is(err, token.ErrMalformed):
		return "malformed"
	case errors.Is(err, token.ErrExpired):
		return "expired"
	case errors.Is(err, token.ErrUnknownKid):
		return "unknown_kid"
	case errors.Is(err, token.ErrBadSig):
		return "bad_sig"
	case errors.Is(err, token.ErrWrongMemory):
		return "wrong_memory"
	case errors.Is(err, token.ErrVariantNotAllowed):
		return "variant_not_allowed"
	case errors.Is(err, token.ErrAssetNotAllowed):
		return "asset_not_allowed"
	}
	return "other"
}
