package queue

import "sync/atomic"

// Sequencer hands out command ids. Ids only correlate log lines; journal
// order is kept by the store.
type Sequencer struct{ n atomic.Uint64 }

// Next returns the next id, starting at 1.
func (s *Sequencer) Next() uint64 { return s.n.Add(1) }

// Last returns the most recently issued id.
func (s *Sequencer) Last() uint64 { return s.n.Load() }
