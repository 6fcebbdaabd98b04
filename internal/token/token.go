// Package token implements the stateless capability tokens that gate the
// asset routes: a canonical JSON payload signed with HMAC-SHA256 and
// carried as unpadded URL-safe base64.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// json must agree byte-for-byte between sign and verify; the compatible
// config matches encoding/json exactly.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// The closed variant set.
const (
	VariantOriginal    = "original"
	VariantPreview     = "preview"
	VariantThumbnail   = "thumbnail"
	VariantPlaceholder = "placeholder"
	VariantDerivative  = "derivative"
)

// KnownVariant reports membership in the closed variant set.
func KnownVariant(v string) bool {
	switch v {
	case VariantOriginal, VariantPreview, VariantThumbnail, VariantPlaceholder, VariantDerivative:
		return true
	}
	return false
}

const (
	// Version is the only payload version in circulation.
	Version = 1
	// NonceSize is the fixed nonce length. Nonces provide uniqueness,
	// not replay defeat.
	NonceSize = 12
	// SignatureSize is the HMAC-SHA256 output length.
	SignatureSize = sha256.Size
	// MaxEncodedLen bounds the textual token accepted on the wire.
	MaxEncodedLen = 2048

	// TTL policy at mint. Zero means DefaultTTL.
	MinTTL     = 15 * time.Second
	DefaultTTL = 180 * time.Second
	MaxTTL     = 180 * time.Second
)

var (
	ErrMalformed         = errors.New("malformed token")
	ErrExpired           = errors.New("token expired")
	ErrUnknownKid        = errors.New("unknown key version")
	ErrBadSig            = errors.New("bad signature")
	ErrWrongMemory       = errors.New("token bound to a different memory")
	ErrVariantNotAllowed = errors.New("variant not allowed by token")
	ErrAssetNotAllowed   = errors.New("asset not allowed by token")
	ErrMissingSubject    = errors.New("token has no subject")
)

// Scope names what a token authorizes: one memory, a set of variants,
// and optionally a narrowed set of asset ids.
type Scope struct {
	MemoryID string   `json:"m"`
	Variants []string `json:"v"`
	AssetIDs []string `json:"a,omitempty"`
}

// Covers checks that the requested scope is fully authorized by s.
func (s Scope) Covers(requested Scope) error {
	if s.MemoryID != requested.MemoryID {
		return ErrWrongMemory
	}
	for _, v := range requested.Variants {
		if !contains(s.Variants, v) {
			return ErrVariantNotAllowed
		}
	}
	// A token without asset ids authorizes the whole memory at the
	// listed variants.
	if len(requested.AssetIDs) > 0 && s.AssetIDs != nil {
		for _, id := range requested.AssetIDs {
			if !contains(s.AssetIDs, id) {
				return ErrAssetNotAllowed
			}
		}
	}
	return nil
}

func contains(set []string, want string) bool {
	for _, s := range set {
		if s == want {
			return true
		}
	}
	return false
}

// Payload is the signed claim set.
type Payload struct {
	Ver   uint8  `json:"ver"`
	Kid   uint32 `json:"kid"`
	ExpNs uint64 `json:"exp"`
	Nonce []byte `json:"non"`
	Scope Scope  `json:"scp"`
	Sub   string `json:"sub,omitempty"`
}

// envelope is the wire shape: payload plus detached signature.
type envelope struct {
	P Payload `json:"p"`
	S []byte  `json:"s"`
}

// canonical returns the byte form the signature is computed over. Field
// order follows the struct declaration, which sign and verify share.
func canonical(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

// Sign computes the payload signature under key and returns the encoded
// token string.
func Sign(p Payload, key [32]byte) (string, error) {
	body, err := canonical(p)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key[:])
	mac.Write(body)
	raw, err := json.Marshal(envelope{P: p, S: mac.Sum(nil)})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// KeyFunc resolves a key version to key material.
type KeyFunc func(kid uint32) ([32]byte, bool)

// Verify is pure: identical inputs always yield identical results. The
// checks run in a fixed order so failures map deterministically.
func Verify(encoded string, requested Scope, nowNs uint64, keys KeyFunc) (*Payload, error) {
	if encoded == "" || len(encoded) > MaxEncodedLen {
		return nil, ErrMalformed
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrMalformed
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrMalformed
	}
	if env.P.Ver != Version || len(env.S) != SignatureSize {
		return nil, ErrMalformed
	}
	if nowNs > env.P.ExpNs {
		return nil, ErrExpired
	}
	key, ok := keys(env.P.Kid)
	if !ok {
		return nil, ErrUnknownKid
	}
	body, err := canonical(env.P)
	if err != nil {
		return nil, ErrMalformed
	}
	mac := hmac.New(sha256.New, key[:])
	mac.Write(body)
	// hmac.Equal compares in constant time.
	if !hmac.Equal(mac.Sum(nil), env.S) {
		return nil, ErrBadSig
	}
	if err := env.P.Scope.Covers(requested); err != nil {
		return nil, err
	}
	return &env.P, nil
}

// ClampTTL applies the mint TTL policy: zero means the default, and the
// result is clamped to [MinTTL, MaxTTL].
func ClampTTL(ttlSecs uint32) time.Duration {
	if ttlSecs == 0 {
		return DefaultTTL
	}
	ttl := time.Duration(ttlSecs) * time.Second
	if ttl < MinTTL {
		return MinTTL
	}
	if ttl > MaxTTL {
		return MaxTTL
	}
	return ttl
}
