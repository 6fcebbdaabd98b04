// Package platform isolates the host capabilities the gateway core
// depends on: time, randomness, and the certified-data slot. Production
// adapters live here; tests substitute fixed implementations.
package platform

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"os"
	"time"

	"github.com/pkg/errors"
)

// Clock supplies the host time in nanoseconds. It is read once per
// message, so all checks inside a request observe the same instant.
type Clock interface {
	NowNs() uint64
}

// Random supplies host randomness. Reads may fail on hosts where
// randomness is an asynchronous capability; callers must tolerate that
// at init time (see secrets.Cell).
type Random interface {
	Read(p []byte) error
}

// Certifier owns the certified-data slot and hands out the certificate
// blob attached to HTTP responses. The root written at init/upgrade is
// the skip-certification declaration; the host countersigns it.
type Certifier interface {
	SetCertifiedData(root [32]byte) error
	// Certificate returns the host-issued certificate over the current
	// certified data, and the hash tree it commits to.
	Certificate() (cert, tree []byte, err error)
}

// SystemClock reads the operating-system clock.
type SystemClock struct{}

func (SystemClock) NowNs() uint64 {
	return uint64(time.Now().UnixNano())
}

// CryptoRandom reads from the host CSPRNG.
type CryptoRandom struct{}

func (CryptoRandom) Read(p []byte) error {
	_, err := rand.Read(p)
	return errors.Wrap(err, "platform randomness")
}

// DeterministicSeed derives placeholder key material from the clock and
// process identity. Used only when true randomness is not callable at
// init; the lifecycle replaces it at the first opportunity.
func DeterministicSeed(clock Clock) [32]byte {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], clock.NowNs())
	binary.BigEndian.PutUint64(buf[8:16], uint64(os.Getpid()))
	return sha256.Sum256(buf[:])
}
