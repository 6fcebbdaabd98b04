package gateway

import (
	"errors"
	"net/url"
	"strings"

	"github.com/552020/futura-alpha-icp-sub009/internal/token"
)

const (
	// maxAssetIDLen bounds the ?id= query value.
	maxAssetIDLen = 128
)

var (
	errBadPath  = errors.New("bad path")
	errBadQuery = errors.New("bad query")
)

// parsedURL is the outcome of splitting a request URL.
type parsedURL struct {
	segments []string
	query    map[string]string
}

// parseRequestURL splits the URL on the first '?', then the path on '/'
// ignoring empty segments, and decodes the query string.
func parseRequestURL(raw string) (*parsedURL, error) {
	path := raw
	rawQuery := ""
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		path, rawQuery = raw[:i], raw[i+1:]
	}

	var segments []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}

	query, err := parseQuery(rawQuery)
	if err != nil {
		return nil, err
	}
	return &parsedURL{segments: segments, query: query}, nil
}

// parseQuery decodes a raw query string. Duplicate keys keep the first
// occurrence; a value containing '=' keeps everything after the first
// one; keys and values are percent-decoded.
func parseQuery(rawQuery string) (map[string]string, error) {
	query := make(map[string]string)
	if rawQuery == "" {
		return query, nil
	}
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key, value := pair, ""
		if i := strings.IndexByte(pair, '='); i >= 0 {
			key, value = pair[:i], pair[i+1:]
		}
		decodedKey, err := url.QueryUnescape(key)
		if err != nil {
			return nil, errBadQuery
		}
		decodedValue, err := url.QueryUnescape(value)
		if err != nil {
			return nil, errBadQuery
		}
		if _, seen := query[decodedKey]; !seen {
			query[decodedKey] = decodedValue
		}
	}
	return query, nil
}

// extractToken reads the capability token from the query string, falling
// back to an Authorization bearer header.
func extractToken(req Request, query map[string]string) (string, bool) {
	if tok, ok := query["token"]; ok && tok != "" {
		return tok, true
	}
	if auth, ok := req.Header("Authorization"); ok {
		const scheme = "Bearer "
		if len(auth) > len(scheme) && strings.EqualFold(auth[:len(scheme)], scheme) {
			return auth[len(scheme):], true
		}
	}
	return "", false
}

// pathToScope maps /asset/{memory_id}/{variant} plus the optional ?id=
// parameter onto the scope the token must cover.
func pathToScope(segments []string, query map[string]string) (token.Scope, error) {
	if len(segments) != 3 || segments[1] == "" {
		return token.Scope{}, errBadPath
	}
	variant := segments[2]
	if !token.KnownVariant(variant) {
		return token.Scope{}, errBadPath
	}
	scope := token.Scope{MemoryID: segments[1], Variants: []string{variant}}
	if id, ok := query["id"]; ok {
		if id == "" || len(id) > maxAssetIDLen {
			return token.Scope{}, errBadQuery
		}
		scope.AssetIDs = []string{id}
	}
	return scope, nil
}
