package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/codec"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
)

// ErrChainBroken is returned when a stored record does not follow from its
// predecessor.
var ErrChainBroken = errors.New("store: journal hash chain broken")

// chainKey separates journal digests from any other BLAKE3 use. Changing it
// invalidates every existing journal.
var chainKey = [32]byte{
	'm', 'a', 'r', 'k', 'e', 't', 'p', 'l', 'a', 'c', 'e', '.', 'j', 'o', 'u', 'r',
	'n', 'a', 'l', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// seal computes the digest of r chained onto r.Prev.
func seal(r Record) Digest {
	h, err := blake3.NewKeyed(chainKey[:])
	if err != nil {
		panic("store: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	var n [8]byte
	h.Write(r.Prev[:])
	binary.BigEndian.PutUint64(n[:], r.Seq)
	h.Write(n[:])
	binary.BigEndian.PutUint64(n[:], uint64(r.Time))
	h.Write(n[:])
	binary.BigEndian.PutUint64(n[:], uint64(len(r.Kind)))
	h.Write(n[:])
	h.Write([]byte(r.Kind))
	h.Write(r.Payload)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// Log seals events into chained records on top of a Journal. It is not safe
// for concurrent appends; the executor is its only writer.
type Log struct {
	j    Journal
	seq  uint64
	head Digest
	last model.Timestamp
}

// Open verifies every record of j and hands each decoded event to replay
// in order. The returned Log continues the chain after the last record.
func Open(ctx context.Context, j Journal, replay func(at model.Timestamp, ev model.Event) error) (*Log, error) {
	l := &Log{j: j}
	err := j.Load(ctx, func(r Record) error {
		if r.Seq != l.seq+1 || r.Prev != l.head || seal(r) != r.Hash {
			return fmt.Errorf("%w at seq %d", ErrChainBroken, r.Seq)
		}
		ev, err := codec.DecodeEvent(r.Kind, r.Payload)
		if err != nil {
			return fmt.Errorf("store: record %d: %w", r.Seq, err)
		}
		if replay != nil {
			if err := replay(r.Time, ev); err != nil {
				return fmt.Errorf("store: replay record %d: %w", r.Seq, err)
			}
		}
		l.seq, l.head, l.last = r.Seq, r.Hash, r.Time
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Append journals events emitted at one instant. Nothing is appended when
// events is empty.
func (l *Log) Append(ctx context.Context, at model.Timestamp, events []model.Event) ([]Record, error) {
	if len(events) == 0 {
		return nil, nil
	}
	recs := make([]Record, 0, len(events))
	seq, head := l.seq, l.head
	for _, ev := range events {
		kind, payload, err := codec.EncodeEvent(ev)
		if err != nil {
			return nil, err
		}
		seq++
		r := Record{Seq: seq, Time: at, Kind: kind, Payload: payload, Prev: head}
		r.Hash = seal(r)
		head = r.Hash
		recs = append(recs, r)
	}
	if err := l.j.Append(ctx, recs); err != nil {
		return nil, fmt.Errorf("store: append: %w", err)
	}
	l.seq, l.head, l.last = seq, head, at
	return recs, nil
}

// Seq returns the sequence number of the last record.
func (l *Log) Seq() uint64 { return l.seq }

// Head returns the digest of the last record, zero for an empty journal.
func (l *Log) Head() Digest { return l.head }

// LastTime returns the time of the last record.
func (l *Log) LastTime() model.Timestamp { return l.last }

func (l *Log) Close() error { return l.j.Close() }
