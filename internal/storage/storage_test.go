package storage

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yamlbase/yamlbase/internal/catalog"
	"github.com/yamlbase/yamlbase/internal/value"
)

func usersTable() *catalog.Table {
	t := catalog.NewTable("users", []catalog.Column{
		{Name: "id", Type: value.SqlType{Name: value.TypeInteger}, PrimaryKey: true},
		{Name: "email", Type: value.SqlType{Name: value.TypeVarchar, Length: 64}, Unique: true},
	})
	t.AppendRow([]value.Value{value.Integer(1), value.Text("a@example.com")})
	t.AppendRow([]value.Value{value.Integer(2), value.Text("b@example.com")})
	return t
}

func TestPrimaryKeyIndexLookup(t *testing.T) {
	tbl := usersTable()
	db := catalog.NewDatabase("app")
	assert.NoError(t, db.AddTable(tbl))
	s := New(db)

	idx := s.PrimaryKeyIndex(tbl)
	pos, ok := idx[encodeKey([]value.Value{value.Integer(2)}, []int{0})]
	assert.True(t, ok)
	assert.Equal(t, 1, pos)
}

func TestPrimaryKeyIndexConcurrentBuildIsSingleflighted(t *testing.T) {
	tbl := usersTable()
	db := catalog.NewDatabase("app")
	assert.NoError(t, db.AddTable(tbl))
	s := New(db)

	var wg sync.WaitGroup
	results := make([]map[string]int, 8)
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.PrimaryKeyIndex(tbl)
		}()
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		assert.Equal(t, results[0], results[i])
	}
}

func TestUniqueIndexInvalidateRebuilds(t *testing.T) {
	tbl := usersTable()
	db := catalog.NewDatabase("app")
	assert.NoError(t, db.AddTable(tbl))
	s := New(db)

	idx := s.UniqueIndex(tbl, 1)
	assert.Len(t, idx, 2)

	tbl.AppendRow([]value.Value{value.Integer(3), value.Text("c@example.com")})
	s.Invalidate(tbl)

	idx = s.UniqueIndex(tbl, 1)
	assert.Len(t, idx, 3)
}

func TestReaderExcludesWriter(t *testing.T) {
	db := catalog.NewDatabase("app")
	s := New(db)

	lease := s.Reader()
	assert.Equal(t, db, lease.Database())

	done := make(chan struct{})
	go func() {
		w := s.Writer()
		w.Replace(catalog.NewDatabase("app2"))
		w.Release()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("writer acquired lease while reader was active")
	default:
	}
	lease.Release()
	<-done
}
