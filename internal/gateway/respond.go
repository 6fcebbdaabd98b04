package gateway

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	// MaxSingleResponse is the single-response body ceiling. Larger
	// assets need the streaming path, which this phase does not carry.
	MaxSingleResponse = 2 * 1024 * 1024

	headerCacheControl   = "Cache-Control"
	headerContentType    = "Content-Type"
	headerContentLength  = "Content-Length"
	headerDisposition    = "Content-Disposition"
	headerCertificate    = "IC-Certificate"
	headerCertExpression = "IC-CertificateExpression"

	cacheControlPrivate = "private, no-store"

	contentTypeText  = "text/plain"
	contentTypeOctet = "application/octet-stream"
)

// CertExpressionSkip is the fixed expression declaring that this
// response is deliberately uncertified. The fronting gateway rejects
// responses that carry neither a certification nor this declaration.
const CertExpressionSkip = "default_certification(ValidationArgs{no_certification:Empty{}})"

// SkipCertificationRoot is the certified-data value associated with the
// skip-certification expression; it is written at init and at every
// upgrade.
func SkipCertificationRoot() [32]byte {
	return sha256.Sum256([]byte(CertExpressionSkip))
}

// respond assembles a response with the headers every reply carries:
// the private cache policy and the skip-certification declaration.
func (g *Gateway) respond(status int, contentType string, body []byte, extra ...Header) Response {
	headers := []Header{
		{headerCacheControl, cacheControlPrivate},
		{headerContentType, contentType},
		{headerContentLength, strconv.Itoa(len(body))},
	}
	headers = append(headers, g.certificationHeaders()...)
	headers = append(headers, extra...)
	return Response{StatusCode: status, Headers: headers, Body: body}
}

func (g *Gateway) textResponse(status int, body string) Response {
	return g.respond(status, contentTypeText, []byte(body))
}

// certificationHeaders fetches the platform certificate at serve time.
func (g *Gateway) certificationHeaders() []Header {
	cert, tree, err := g.certifier.Certificate()
	if err != nil {
		// Without these headers the fronting gateway will answer 503;
		// the failure is logged, not leaked.
		g.log.Error("certificate unavailable", zap.Error(err))
		return nil
	}
	value := fmt.Sprintf("certificate=:%s:, tree=:%s:, version=2",
		base64.StdEncoding.EncodeToString(cert),
		base64.StdEncoding.EncodeToString(tree))
	return []Header{
		{headerCertificate, value},
		{headerCertExpression, CertExpressionSkip},
	}
}

// sniffContentType recognizes the common image containers and falls back
// to the generic byte stream type.
func sniffContentType(data []byte) string {
	switch {
	case len(data) >= 3 && data[0] == 0xff && data[1] == 0xd8 && data[2] == 0xff:
		return "image/jpeg"
	case len(data) >= 8 && string(data[:8]) == "\x89PNG\r\n\x1a\n":
		return "image/png"
	case len(data) >= 6 && (string(data[:6]) == "GIF87a" || string(data[:6]) == "GIF89a"):
		return "image/gif"
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "image/webp"
	}
	return contentTypeOctet
}

// sanitizeFilename strips characters that would break or smuggle past
// the Content-Disposition header.
func sanitizeFilename(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '"', '\\', '/', '\r', '\n', ';':
			return -1
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)
	return strings.TrimSpace(cleaned)
}

// assetResponse builds a 200 with the success-only headers.
func (g *Gateway) assetResponse(body []byte, contentType, filename string) Response {
	if contentType == "" {
		contentType = sniffContentType(body)
	}
	disposition := "inline"
	if name := sanitizeFilename(filename); name != "" {
		disposition = fmt.Sprintf("inline; filename=%q", name)
	}
	return g.respond(200, contentType, body, Header{headerDisposition, disposition})
}
