package markers

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPutGetDelete(t *testing.T) {
	db := openTestDB(t)

	m := Marker{ID: 7, Label: "Test 3 - 15 up", Seconds: 3495}
	require.NoError(t, db.Put(m))

	got, ok, err := db.Get(7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, m, got)

	// Put with the same id replaces.
	m.Seconds = 3500
	require.NoError(t, db.Put(m))
	got, _, _ = db.Get(7)
	assert.Equal(t, 3500.0, got.Seconds)

	require.NoError(t, db.Delete(7))
	_, ok, err = db.Get(7)
	require.NoError(t, err)
	assert.False(t, ok, "marker still present after Delete")

	// Deleting an absent marker is not an error.
	assert.NoError(t, db.Delete(99))
}

func TestGetAbsent(t *testing.T) {
	db := openTestDB(t)
	_, ok, err := db.Get(1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListOrdersByTimestamp(t *testing.T) {
	db := openTestDB(t)
	for _, m := range []Marker{
		{ID: 0, Label: "Landing", Seconds: 4823.02},
		{ID: 1, Label: "Takeoff", Seconds: 2643},
		{ID: 2, Label: "Test 1", Seconds: 2888},
	} {
		require.NoError(t, db.Put(m))
	}

	got, err := db.List()
	require.NoError(t, err)

	var labels []string
	for _, m := range got {
		labels = append(labels, m.Label)
	}
	assert.Equal(t, []string{"Takeoff", "Test 1", "Landing"}, labels)
}

func TestSeedOnlyWhenEmpty(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Seed(Defaults()))
	got, err := db.List()
	require.NoError(t, err)
	require.Len(t, got, len(Defaults()))

	// Edit one marker, then seed again: the edit must survive.
	require.NoError(t, db.Put(Marker{ID: 0, Label: "Takeoff (corrected)", Seconds: 2650}))
	require.NoError(t, db.Seed(Defaults()))

	m, ok, err := db.Get(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Takeoff (corrected)", m.Label, "reseed clobbered an operator edit")
}

func TestDefaultsSortedAndBracketed(t *testing.T) {
	d := Defaults()
	assert.True(t, sort.SliceIsSorted(d, func(i, j int) bool {
		return d[i].Seconds < d[j].Seconds
	}), "defaults not in timestamp order")
	assert.Equal(t, "Takeoff", d[0].Label)
	assert.Equal(t, "Landing", d[len(d)-1].Label)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markers.db")

	db, err := New(path)
	require.NoError(t, err)
	require.NoError(t, db.Put(Marker{ID: 3, Label: "Test 2 - 90 turn right", Seconds: 3242}))
	require.NoError(t, db.Close())

	db, err = New(path)
	require.NoError(t, err)
	defer db.Close()

	m, ok, err := db.Get(3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Test 2 - 90 turn right", m.Label)
}
