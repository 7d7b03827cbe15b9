// Package store persists the marketplace event journal.
//
// A journal is an append-only sequence of Records. Each record carries one
// encoded event and is chained to its predecessor by a BLAKE3 digest, so a
// journal that was truncated in the middle or edited by hand is detected
// when it is opened. Backends only store and return records; sealing and
// verification live in Log.
package store

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
)

// Digest is a BLAKE3 chain digest.
type Digest [32]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Record is one journaled event.
type Record struct {
	Seq     uint64
	Time    model.Timestamp
	Kind    model.EventKind
	Payload []byte
	Prev    Digest
	Hash    Digest
}

// Journal is a durable, ordered record sink.
type Journal interface {
	// Append stores records atomically: either all of them are durable
	// or none are.
	Append(ctx context.Context, recs []Record) error
	// Load calls fn for every stored record in sequence order.
	Load(ctx context.Context, fn func(Record) error) error
	Close() error
}

var ErrClosed = errors.New("store: journal closed")

// Memory is a Journal kept in process memory. It is used in tests and when
// no durable driver is configured.
type Memory struct {
	mu     sync.RWMutex
	recs   []Record
	closed bool
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(_ context.Context, recs []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, r := range recs {
		r.Payload = append([]byte(nil), r.Payload...)
		m.recs = append(m.recs, r)
	}
	return nil
}

func (m *Memory) Load(ctx context.Context, fn func(Record) error) error {
	m.mu.RLock()
	recs := append([]Record(nil), m.recs...)
	m.mu.RUnlock()
	for _, r := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.recs)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
