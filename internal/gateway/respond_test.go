package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSniffContentType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0, 0x00}, "image/jpeg"},
		{"png", []byte("\x89PNG\r\n\x1a\n rest"), "image/png"},
		{"gif87", []byte("GIF87a..."), "image/gif"},
		{"gif89", []byte("GIF89a..."), "image/gif"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp"},
		{"riff non-webp", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), "application/octet-stream"},
		{"empty", nil, "application/octet-stream"},
		{"text", []byte("hello"), "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sniffContentType(tt.data))
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"photo.jpg", "photo.jpg"},
		{`evil".jpg`, "evil.jpg"},
		{"multi\r\nline", "multiline"},
		{"path/to/file", "pathtofile"},
		{"back\\slash", "backslash"},
		{"semi;colon", "semicolon"},
		{"  padded  ", "padded"},
		{"\r\n", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.in), "input %q", tt.in)
	}
}

func TestSkipCertificationRootIsStable(t *testing.T) {
	a := SkipCertificationRoot()
	b := SkipCertificationRoot()
	assert.Equal(t, a, b)
	assert.NotEqual(t, [32]byte{}, a)
}
