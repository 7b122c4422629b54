package tablet

import (
	"slices"
	"sync"
	"time"

	"github.com/Iron-Ham/instamo/internal/errors"
)

// Tablet is an in-memory sorted map from Key to the newest Entry.
type Tablet struct {
	mu      sync.RWMutex
	entries []Entry
	last    int64
	now     func() int64
}

// New returns an empty tablet.
func New() *Tablet {
	return &Tablet{now: func() int64 { return time.Now().UnixMilli() }}
}

// Validate rejects mutations that cannot be applied.
func Validate(muts []Mutation) error {
	if len(muts) == 0 {
		return errors.Wrap(errors.ErrInvalidInput, "no mutations")
	}
	for i, m := range muts {
		if m.Row == "" {
			return errors.Wrapf(errors.ErrInvalidInput, "mutation %d has an empty row", i)
		}
		if len(m.Updates) == 0 {
			return errors.Wrapf(errors.ErrInvalidInput, "mutation %d for row %q has no updates", i, m.Row)
		}
	}
	return nil
}

// NextTimestamp returns a timestamp later than any this tablet has seen.
func (t *Tablet) NextTimestamp() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts := max(t.now(), t.last+1)
	t.last = ts
	return ts
}

// Apply applies muts at ts. A cell keeps whichever write has the newest
// timestamp, so replaying a log over live data is harmless.
func (t *Tablet) Apply(ts int64, muts []Mutation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = max(t.last, ts)

	for _, m := range muts {
		for _, u := range m.Updates {
			key := Key{Row: m.Row, Family: u.Family, Qualifier: u.Qualifier}
			i, found := slices.BinarySearchFunc(t.entries, key, func(e Entry, k Key) int {
				return e.Key.Compare(k)
			})
			switch {
			case found && t.entries[i].Timestamp > ts:
				// newer write already present
			case u.Delete:
				if found {
					t.entries = slices.Delete(t.entries, i, i+1)
				}
			case found:
				t.entries[i].Value = u.Value
				t.entries[i].Timestamp = ts
			default:
				t.entries = slices.Insert(t.entries, i, Entry{Key: key, Timestamp: ts, Value: u.Value})
			}
		}
	}
}

// Scan returns the entries with start <= row < end in key order. An empty
// bound is open.
func (t *Tablet) Scan(start, end string) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		if start != "" && e.Row < start {
			continue
		}
		if end != "" && e.Row >= end {
			break
		}
		out = append(out, e)
	}
	return out
}

// Len returns the number of live cells.
func (t *Tablet) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
