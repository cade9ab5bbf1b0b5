package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yamlbase/yamlbase/internal/value"
)

func sampleTable() *Table {
	return NewTable("Users", []Column{
		{Name: "id", Type: value.SqlType{Name: value.TypeInteger}, PrimaryKey: true},
		{Name: "Email", Type: value.SqlType{Name: value.TypeVarchar, Length: 64}, Unique: true},
	})
}

func TestColumnLookupCaseInsensitive(t *testing.T) {
	tbl := sampleTable()

	idx, ok := tbl.ColumnIndex("EMAIL")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = tbl.ColumnIndex("missing")
	assert.False(t, ok)
}

func TestPrimaryKeyAndUniqueColumns(t *testing.T) {
	tbl := sampleTable()
	assert.Equal(t, []int{0}, tbl.PrimaryKeyColumns())
	assert.Equal(t, []int{1}, tbl.UniqueColumns())
}

func TestDatabaseFoldedNameCollision(t *testing.T) {
	db := NewDatabase("app")
	assert.NoError(t, db.AddTable(sampleTable()))

	dup := NewTable("users", nil)
	assert.Error(t, db.AddTable(dup))

	got, ok := db.GetTable("USERS")
	assert.True(t, ok)
	assert.Equal(t, "Users", got.Name)
}

func TestTablesSortedByFoldedName(t *testing.T) {
	db := NewDatabase("app")
	assert.NoError(t, db.AddTable(NewTable("Zebra", nil)))
	assert.NoError(t, db.AddTable(NewTable("apple", nil)))

	names := make([]string, 0, 2)
	for _, tbl := range db.Tables() {
		names = append(names, tbl.Name)
	}
	assert.Equal(t, []string{"apple", "Zebra"}, names)
}
