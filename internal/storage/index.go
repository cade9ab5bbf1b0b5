package storage

import (
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/yamlbase/yamlbase/internal/catalog"
	"github.com/yamlbase/yamlbase/internal/value"
)

// tableIndexes holds the lazily-built primary-key and unique indexes for
// one table. Index build is deferred until first use but idempotent: the
// first reader that needs an index triggers its construction under a
// brief exclusive lock on the index slot only, never on the table (spec
// §4.1). singleflight collapses concurrent first-use builds into one.
type tableIndexes struct {
	mu      sync.RWMutex
	group   singleflight.Group
	primary map[string]int   // encoded PK tuple -> row position
	unique  map[int]map[string]int // column index -> encoded value -> row position
}

func (s *Storage) indexesFor(t *catalog.Table) *tableIndexes {
	s.indexesMu.Lock()
	ti, ok := s.tableIndexes[t]
	if !ok {
		ti = &tableIndexes{}
		s.tableIndexes[t] = ti
	}
	s.indexesMu.Unlock()
	return ti
}

// PrimaryKeyIndex returns the primary-key index for t, building it on
// first call. Returns nil if t declares no primary key.
func (s *Storage) PrimaryKeyIndex(t *catalog.Table) map[string]int {
	pk := t.PrimaryKeyColumns()
	if len(pk) == 0 {
		return nil
	}

	ti := s.indexesFor(t)

	ti.mu.RLock()
	if ti.primary != nil {
		defer ti.mu.RUnlock()
		return ti.primary
	}
	ti.mu.RUnlock()

	result, _, _ := ti.group.Do("primary", func() (any, error) {
		ti.mu.Lock()
		defer ti.mu.Unlock()
		if ti.primary != nil {
			return ti.primary, nil
		}
		idx := make(map[string]int, len(t.Rows))
		for pos, row := range t.Rows {
			idx[encodeKey(row, pk)] = pos
		}
		ti.primary = idx
		return idx, nil
	})
	return result.(map[string]int)
}

// UniqueIndex returns the index mapping encoded values of column col to row
// position, building it on first call.
func (s *Storage) UniqueIndex(t *catalog.Table, col int) map[string]int {
	ti := s.indexesFor(t)

	ti.mu.RLock()
	if ti.unique != nil {
		if idx, ok := ti.unique[col]; ok {
			defer ti.mu.RUnlock()
			return idx
		}
	}
	ti.mu.RUnlock()

	key := fmt.Sprintf("unique:%d", col)
	result, _, _ := ti.group.Do(key, func() (any, error) {
		ti.mu.Lock()
		defer ti.mu.Unlock()
		if ti.unique == nil {
			ti.unique = make(map[int]map[string]int)
		}
		if idx, ok := ti.unique[col]; ok {
			return idx, nil
		}
		idx := make(map[string]int, len(t.Rows))
		for pos, row := range t.Rows {
			idx[encodeKey(row, []int{col})] = pos
		}
		ti.unique[col] = idx
		return idx, nil
	})
	return result.(map[string]int)
}

// Invalidate drops cached indexes for t, used after a bulk insert so the
// next reader rebuilds them against the current row set.
func (s *Storage) Invalidate(t *catalog.Table) {
	ti := s.indexesFor(t)
	ti.mu.Lock()
	ti.primary = nil
	ti.unique = nil
	ti.mu.Unlock()
}

// encodeKey builds a canonical byte-sequence key over the given column
// positions of row, used for both primary-key and unique index lookups.
func encodeKey(row []value.Value, cols []int) string {
	return EncodeProbeKey(pluck(row, cols)...)
}

func pluck(row []value.Value, cols []int) []value.Value {
	out := make([]value.Value, len(cols))
	for i, c := range cols {
		out[i] = row[c]
	}
	return out
}

// EncodeProbeKey builds the same canonical key encodeKey uses, from a
// literal value tuple supplied by a caller (the query engine's equality
// predicate probe) rather than from a stored row, so a WHERE/ON equality
// can be looked up against PrimaryKeyIndex/UniqueIndex directly.
func EncodeProbeKey(vals ...value.Value) string {
	var b []byte
	for _, v := range vals {
		s := v.String()
		if v.Kind == value.KindFloat {
			// Plain notation, so 1e-07 encodes like the equal DECIMAL 0.0000001.
			s = strconv.FormatFloat(v.Float, 'f', -1, 64)
		}
		b = append(b, s...)
		b = append(b, 0)
	}
	return string(b)
}

