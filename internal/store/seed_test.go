package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"dessert_market/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `
desserts:
  - name: Yule Log
    description: chocolate sponge roll
    price: "15.99"
    quantity: 10
  - name: Pecan Pie
    description: classic
    price: "25.99"
    quantity: 0
listings:
  - name: Gingerbread House
    starting_bid: "25.00"
`

func TestSeedIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, c.Desserts, 2)

	db, err := Open(":memory:")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, Seed(ctx, db, c))
	require.NoError(t, Seed(ctx, db, c))

	var desserts []model.Dessert
	require.NoError(t, db.Order("id").Find(&desserts).Error)
	require.Len(t, desserts, 2)
	assert.Equal(t, "15.99", desserts[0].Price.StringFixed(2))
	assert.True(t, desserts[0].IsAvailable)
	assert.False(t, desserts[1].IsAvailable)

	var listings []model.Listing
	require.NoError(t, db.Find(&listings).Error)
	require.Len(t, listings, 1)
	assert.True(t, listings[0].CurrentBid.Equal(listings[0].StartingBid))
}

func TestLoadCatalogRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("desserts: [oops"), 0o600))
	_, err := LoadCatalog(path)
	assert.Error(t, err)
}
