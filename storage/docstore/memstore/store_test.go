package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/storage/docstore"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Done  bool   `json:"done"`
}

func TestStore_CreateGet(t *testing.T) {
	store := Open()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "docs", "d1", doc{Name: "one"}))

	// create-if-absent
	err := store.Create(ctx, "docs", "d1", doc{Name: "two"})
	assert.Equal(t, docstore.ErrExists, err)

	raw, err := store.Get(ctx, "docs", "d1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"one","count":0,"done":false}`, string(raw))

	_, err = store.Get(ctx, "docs", "nope")
	assert.Equal(t, docstore.ErrNotFound, err)
	_, err = store.Get(ctx, "nope", "d1")
	assert.Equal(t, docstore.ErrNotFound, err)
}

func TestStore_Put(t *testing.T) {
	store := Open()
	ctx := context.Background()

	// upsert: works on absent docs
	require.NoError(t, store.Put(ctx, "docs", "d1", doc{Name: "one"}))
	// and fully replaces present ones
	require.NoError(t, store.Put(ctx, "docs", "d1", doc{Name: "two", Count: 3}))

	raw, err := store.Get(ctx, "docs", "d1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"two","count":3,"done":false}`, string(raw))
}

func TestStore_Update(t *testing.T) {
	store := Open()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "docs", "d1", doc{Name: "one", Count: 1}))

	// partial merge leaves other fields alone
	require.NoError(t, store.Update(ctx, "docs", "d1", map[string]interface{}{"count": 2}))
	raw, err := store.Get(ctx, "docs", "d1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"one","count":2,"done":false}`, string(raw))

	err = store.Update(ctx, "docs", "nope", map[string]interface{}{"count": 2})
	assert.Equal(t, docstore.ErrNotFound, err)
}

func TestStore_Delete(t *testing.T) {
	store := Open()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "docs", "d1", doc{Name: "one"}))
	require.NoError(t, store.Delete(ctx, "docs", "d1"))

	_, err := store.Get(ctx, "docs", "d1")
	assert.Equal(t, docstore.ErrNotFound, err)

	// deleting an absent document converges
	assert.NoError(t, store.Delete(ctx, "docs", "d1"))
}

func TestStore_Scan(t *testing.T) {
	store := Open()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "docs", "d1", doc{Name: "one", Count: 1, Done: true}))
	require.NoError(t, store.Create(ctx, "docs", "d2", doc{Name: "one", Count: 2}))
	require.NoError(t, store.Create(ctx, "docs", "d3", doc{Name: "three", Count: 1}))

	all, err := store.Scan(ctx, "docs")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byName, err := store.Scan(ctx, "docs", docstore.Filter{Field: "name", Value: "one"})
	require.NoError(t, err)
	assert.Len(t, byName, 2)

	// filters compose; numeric and bool values match through JSON decoding
	matched, err := store.Scan(ctx, "docs",
		docstore.Filter{Field: "name", Value: "one"},
		docstore.Filter{Field: "count", Value: 1},
		docstore.Filter{Field: "done", Value: true},
	)
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.JSONEq(t, `{"name":"one","count":1,"done":true}`, string(matched[0]))

	none, err := store.Scan(ctx, "docs", docstore.Filter{Field: "name", Value: "nope"})
	require.NoError(t, err)
	assert.Empty(t, none)

	empty, err := store.Scan(ctx, "nothere")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
