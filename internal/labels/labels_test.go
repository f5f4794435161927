package labels

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "labels.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveAndGet(t *testing.T) {
	db := newTestDB(t)

	label := &Label{
		QRKey:     "aabb",
		ProductID: 7,
		Name:      "Solar Panel",
	}
	require.NoError(t, db.Save(label))

	got, err := db.Get("aabb")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint64(7), got.ProductID)
	assert.Equal(t, "Solar Panel", got.Name)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetMissing(t *testing.T) {
	db := newTestDB(t)

	got, err := db.Get("unknown")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveReplaces(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.Save(&Label{QRKey: "aabb", ProductID: 1, Name: "Old"}))
	require.NoError(t, db.Save(&Label{QRKey: "aabb", ProductID: 1, Name: "New"}))

	got, err := db.Get("aabb")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "New", got.Name)

	count, err := db.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestListNewestFirst(t *testing.T) {
	db := newTestDB(t)

	base := time.Now().Add(-time.Hour)
	require.NoError(t, db.Save(&Label{QRKey: "01", ProductID: 1, Name: "First", CreatedAt: base}))
	require.NoError(t, db.Save(&Label{QRKey: "02", ProductID: 2, Name: "Second", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, db.Save(&Label{QRKey: "03", ProductID: 3, Name: "Third", CreatedAt: base.Add(2 * time.Minute)}))

	list, err := db.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "03", list[0].QRKey)
	assert.Equal(t, "01", list[2].QRKey)

	count, err := db.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
