package platform

import (
	"crypto/hmac"
	"crypto/sha256"
	"sync"

	"github.com/pkg/errors"
)

// ErrNoCertificate is returned when the certificate is requested before
// any certified data has been set.
var ErrNoCertificate = errors.New("certified data not set")

// LocalCertifier is the in-process Certifier. It countersigns the
// certified-data root with an instance key so the fronting gateway can
// check that this process, and not a client, chose skip certification.
// On the real host the certificate is issued by the platform instead.
type LocalCertifier struct {
	mu   sync.RWMutex
	key  [32]byte
	root *[32]byte
}

// NewLocalCertifier creates a certifier with a fresh instance key.
func NewLocalCertifier(random Random) (*LocalCertifier, error) {
	c := &LocalCertifier{}
	if err := random.Read(c.key[:]); err != nil {
		return nil, errors.Wrap(err, "certifier instance key")
	}
	return c, nil
}

func (c *LocalCertifier) SetCertifiedData(root [32]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.root = &root
	return nil
}

func (c *LocalCertifier) Certificate() (cert, tree []byte, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.root == nil {
		return nil, nil, ErrNoCertificate
	}
	mac := hmac.New(sha256.New, c.key[:])
	mac.Write(c.root[:])
	return mac.Sum(nil), c.root[:], nil
}
