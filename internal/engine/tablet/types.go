package tablet

import "cmp"

// ColumnUpdate sets or deletes one column of a row.
type ColumnUpdate struct {
	Family    string `json:"family"`
	Qualifier string `json:"qualifier"`
	Value     string `json:"value,omitempty"`
	Delete    bool   `json:"delete,omitempty"`
}

// Mutation is an atomic set of column updates to one row.
type Mutation struct {
	Row     string         `json:"row"`
	Updates []ColumnUpdate `json:"updates"`
}

// NewMutation starts a mutation for row.
func NewMutation(row string) *Mutation {
	return &Mutation{Row: row}
}

// Put adds a column write.
func (m *Mutation) Put(family, qualifier, value string) *Mutation {
	m.Updates = append(m.Updates, ColumnUpdate{Family: family, Qualifier: qualifier, Value: value})
	return m
}

// PutDelete adds a column delete.
func (m *Mutation) PutDelete(family, qualifier string) *Mutation {
	m.Updates = append(m.Updates, ColumnUpdate{Family: family, Qualifier: qualifier, Delete: true})
	return m
}

// Key identifies a cell.
type Key struct {
	Row       string `json:"row"`
	Family    string `json:"family"`
	Qualifier string `json:"qualifier"`
}

// Compare orders keys by row, family, then qualifier.
func (k Key) Compare(o Key) int {
	if c := cmp.Compare(k.Row, o.Row); c != 0 {
		return c
	}
	if c := cmp.Compare(k.Family, o.Family); c != 0 {
		return c
	}
	return cmp.Compare(k.Qualifier, o.Qualifier)
}

// Entry is a cell's latest value.
type Entry struct {
	Key
	Timestamp int64  `json:"timestamp"`
	Value     string `json:"value"`
}

// Record is one write-ahead-log entry: a batch of mutations applied to a
// table at one timestamp.
type Record struct {
	Table     string     `json:"table"`
	Timestamp int64      `json:"timestamp"`
	Mutations []Mutation `json:"mutations"`
}
