// Package secrets owns the HMAC key cell: a single persistent record
// holding the current signing key, the previous key kept for one
// generation, and the monotonically increasing key version.
package secrets

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/552020/futura-alpha-icp-sub009/internal/platform"
)

const (
	// KeySize is the HMAC-SHA256 key length.
	KeySize = 32
	// maxEncodedSize bounds the persisted record so it fits a fixed-size
	// stable slot.
	maxEncodedSize = 256

	recordVersion = 1

	flagHasPrevious   = 1 << 0
	flagDeterministic = 1 << 1
)

var recordMagic = [4]byte{'s', 'k', 'c', '1'}

var (
	// ErrCorruptSlot is returned when the persisted record cannot be decoded.
	ErrCorruptSlot = errors.New("secret slot corrupt")
	// ErrNoCurrentKey indicates a broken lifecycle; it is fatal.
	ErrNoCurrentKey = errors.New("secret cell has no current key")
	// ErrRecordTooLarge is returned when an encoded record exceeds the slot size.
	ErrRecordTooLarge = errors.New("secret record exceeds slot size")
)

// Slot is one fixed-size stable storage slot. Read reports ok=false when
// the slot has never been written.
type Slot interface {
	Read() (data []byte, ok bool, err error)
	Write(data []byte) error
}

// FileSlot stores the record in a single file, written atomically.
type FileSlot struct {
	path string
}

func NewFileSlot(path string) *FileSlot {
	return &FileSlot{path: path}
}

func (s *FileSlot) Read() ([]byte, bool, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *FileSlot) Write(data []byte) error {
	if len(data) > maxEncodedSize {
		return ErrRecordTooLarge
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Cell is the only writable shared state the gateway introduces. It is
// written by Open, Rotate, and Reseed during lifecycle messages; every
// other code path is a reader.
type Cell struct {
	mu            sync.RWMutex
	slot          Slot
	log           *zap.Logger
	current       [KeySize]byte
	previous      *[KeySize]byte
	kid           uint32
	deterministic bool
}

// Open loads the cell from the slot, initializing it with kid=1 on first
// use. The returned fresh flag is true when the cell was just created.
// When host randomness is unavailable at init the key is seeded
// deterministically and marked for replacement (see Reseed).
func Open(slot Slot, random platform.Random, clock platform.Clock, log *zap.Logger) (*Cell, bool, error) {
	c := &Cell{slot: slot, log: log}

	data, ok, err := slot.Read()
	if err != nil {
		return nil, false, err
	}
	if ok {
		if err := c.decode(data); err != nil {
			return nil, false, err
		}
		return c, false, nil
	}

	if err := random.Read(c.current[:]); err != nil {
		log.Warn("host randomness unavailable at init, seeding deterministically",
			zap.Error(err))
		c.current = platform.DeterministicSeed(clock)
		c.deterministic = true
	}
	c.kid = 1
	if err := c.persist(); err != nil {
		return nil, false, err
	}
	log.Info("secret cell initialized", zap.Uint32("kid", c.kid))
	return c, true, nil
}

// Rotate installs a new current key, shifts the old one into previous,
// and advances the version. Called only during upgrade messages; it MUST
// use host randomness.
func (c *Cell) Rotate(random platform.Random) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var next [KeySize]byte
	if err := random.Read(next[:]); err != nil {
		return 0, err
	}
	prev := c.current
	c.previous = &prev
	c.current = next
	c.kid++
	c.deterministic = false
	if err := c.persist(); err != nil {
		return 0, err
	}
	c.log.Info("secret cell rotated", zap.Uint32("kid", c.kid))
	return c.kid, nil
}

// Reseed replaces a deterministically seeded current key with true
// randomness, keeping the version. No-op once the key is random.
func (c *Cell) Reseed(random platform.Random) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.deterministic {
		return nil
	}
	var next [KeySize]byte
	if err := random.Read(next[:]); err != nil {
		return err
	}
	c.current = next
	c.deterministic = false
	if err := c.persist(); err != nil {
		return err
	}
	c.log.Info("secret cell reseeded with host randomness", zap.Uint32("kid", c.kid))
	return nil
}

// Deterministic reports whether the current key still carries the init
// placeholder seed.
func (c *Cell) Deterministic() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deterministic
}

// CurrentKid returns the version of the current signing key.
func (c *Cell) CurrentKid() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.kid
}

// Key returns the key for the given version: the current key, or the
// previous one while it is retained.
func (c *Cell) Key(kid uint32) ([KeySize]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case kid == c.kid:
		return c.current, true
	case c.previous != nil && kid == c.kid-1:
		return *c.previous, true
	}
	return [KeySize]byte{}, false
}

// persist is called with the write lock held.
func (c *Cell) persist() error {
	return c.slot.Write(c.encode())
}

func (c *Cell) encode() []byte {
	buf := make([]byte, 0, 4+1+4+1+2*KeySize)
	buf = append(buf, recordMagic[:]...)
	buf = append(buf, recordVersion)
	buf = binary.BigEndian.AppendUint32(buf, c.kid)
	var flags byte
	if c.previous != nil {
		flags |= flagHasPrevious
	}
	if c.deterministic {
		flags |= flagDeterministic
	}
	buf = append(buf, flags)
	buf = append(buf, c.current[:]...)
	if c.previous != nil {
		buf = append(buf, c.previous[:]...)
	}
	return buf
}

func (c *Cell) decode(data []byte) error {
	const header = 4 + 1 + 4 + 1
	if len(data) < header+KeySize || len(data) > maxEncodedSize {
		return ErrCorruptSlot
	}
	if [4]byte(data[0:4]) != recordMagic || data[4] != recordVersion {
		return ErrCorruptSlot
	}
	c.kid = binary.BigEndian.Uint32(data[5:9])
	flags := data[9]
	c.current = [KeySize]byte(data[header : header+KeySize])
	if c.current == ([KeySize]byte{}) {
		// A zero current key after init indicates a broken lifecycle.
		return ErrNoCurrentKey
	}
	if flags&flagHasPrevious != 0 {
		if len(data) < header+2*KeySize {
			return ErrCorruptSlot
		}
		prev := [KeySize]byte(data[header+KeySize : header+2*KeySize])
		c.previous = &prev
	}
	c.deterministic = flags&flagDeterministic != 0
	return nil
}
