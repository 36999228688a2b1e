// Package problemstore implements the append/group/dedup/resolve/abort
// problem queue (spec §4.6): an append-only vector of entries, each backed
// by a one-shot reply channel a reporting wrapper blocks on.
package problemstore

import (
	"sync"

	"github.com/capcage/capcage/internal/problem"
)

// Reply is the one-shot answer sent to a wrapper that reported a problem
// entry: Continue lets the wrapper proceed (or retry), GiveUp tells it to
// exit non-zero.
type Reply int

const (
	Continue Reply = iota
	GiveUp
)

// Entry holds one or more problems reported together and the reply channel
// their reporter blocks on. Removing the last remaining problem sends
// Continue; aborting the store sends GiveUp to every still-open entry.
type Entry struct {
	mu       sync.Mutex
	problems []problem.Problem
	reply    chan Reply
	once     sync.Once
}

// Reply returns the entry's receive-only reply channel.
func (e *Entry) Reply() <-chan Reply {
	return e.reply
}

// Problems returns a snapshot of the entry's currently unresolved problems,
// in insertion order.
func (e *Entry) Problems() []problem.Problem {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]problem.Problem, len(e.problems))
	copy(out, e.problems)

	return out
}

// Resolve removes the problem at index i. If that was the entry's last
// remaining problem, it sends Continue on the reply channel.
func (e *Entry) Resolve(i int) {
	e.mu.Lock()
	e.problems = append(e.problems[:i:i], e.problems[i+1:]...)
	empty := len(e.problems) == 0
	e.mu.Unlock()

	if empty {
		e.sendOnce(Continue)
	}
}

func (e *Entry) sendOnce(r Reply) {
	e.once.Do(func() {
		e.reply <- r
	})
}

// Store is an append-only, mutex-guarded vector of entries.
type Store struct {
	mu       sync.Mutex
	entries  []*Entry
	dedup    map[string]dedupTarget
	aborted  bool
}

type dedupTarget struct {
	entry *Entry
	index int
}

// New returns an empty, non-aborted Store.
func New() *Store {
	return &Store{dedup: make(map[string]dedupTarget)}
}

// Append groups consecutive DisallowedApiUsage problems sharing (crate,
// capability) in problems, then merges any problem matching an existing
// open entry's dedup key into that entry instead of duplicating it. Any
// problems left over (genuinely new) become a fresh Entry, which is
// returned along with its reply channel for the caller to block on. If
// every problem in the call was absorbed by dedup, the returned entry is
// already resolved (its channel immediately yields Continue), since this
// call introduced nothing new for its reporter to wait on.
//
// If the store has already been aborted, the new entry (if any) is
// immediately sent GiveUp: no UI remains to ever resolve it.
func (s *Store) Append(problems []problem.Problem) *Entry {
	grouped := groupByTypeCrateAndAPI(problems)

	s.mu.Lock()
	defer s.mu.Unlock()

	var fresh []problem.Problem

	for _, p := range grouped {
		key := p.DedupKey()

		if target, ok := s.dedup[key]; ok {
			open := target.entry.Problems()
			if target.index < len(open) && open[target.index].DedupKey() == key {
				target.entry.mergeUsages(target.index, p)

				continue
			}
		}

		fresh = append(fresh, p)
	}

	entry := &Entry{problems: fresh, reply: make(chan Reply, 1)}
	s.entries = append(s.entries, entry)

	for i, p := range fresh {
		s.dedup[p.DedupKey()] = dedupTarget{entry: entry, index: i}
	}

	if len(fresh) == 0 {
		entry.sendOnce(Continue)
	} else if s.aborted {
		entry.sendOnce(GiveUp)
	}

	return entry
}

// mergeUsages appends p's usage sites onto the existing problem at index i
// (cross-entry dedup: repeated hits of the same API by the same crate
// collapse into one problem whose usage list grows).
func (e *Entry) mergeUsages(i int, p problem.Problem) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if i >= len(e.problems) {
		return
	}

	e.problems[i].Usages = append(e.problems[i].Usages, p.Usages...)
	e.problems[i].Locations = append(e.problems[i].Locations, p.Locations...)
}

// Abort sends GiveUp to every still-open entry and marks the store
// aborted. Entries appended afterward still succeed but are immediately
// resolved GiveUp as well, since no UI remains to service them.
func (s *Store) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.aborted = true

	for _, e := range s.entries {
		e.sendOnce(GiveUp)
	}
}

// Aborted reports whether Abort has been called.
func (s *Store) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.aborted
}

// Entries returns a snapshot of all entries in insertion order.
func (s *Store) Entries() []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Entry, len(s.entries))
	copy(out, s.entries)

	return out
}

// groupByTypeCrateAndAPI implements grouped_by_type_crate_and_api: within a
// single Append call, consecutive DisallowedApiUsage problems that share
// (crate, capability) merge into one, with usage lists concatenated.
// Problems of any other kind, or non-consecutive runs, are left distinct.
func groupByTypeCrateAndAPI(problems []problem.Problem) []problem.Problem {
	if len(problems) == 0 {
		return nil
	}

	out := make([]problem.Problem, 0, len(problems))
	out = append(out, problems[0])

	for _, p := range problems[1:] {
		last := &out[len(out)-1]

		lastKey, lastOK := last.GroupKey()
		key, ok := p.GroupKey()

		if lastOK && ok && lastKey == key {
			last.Usages = append(last.Usages, p.Usages...)
			last.Locations = append(last.Locations, p.Locations...)

			continue
		}

		out = append(out, p)
	}

	return out
}
