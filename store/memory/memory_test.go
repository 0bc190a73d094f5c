package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/costing-engine/sales"
	"github.com/warp/costing-engine/scheme"
)

func day(t *testing.T, s string) scheme.Date {
	d, err := scheme.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestStore_SalesWindow(t *testing.T) {
	store := New()
	ctx := context.Background()
	require.NoError(t, store.SaveSales(ctx, []sales.Row{
		{CreditAccount: "B", SaleDate: day(t, "2024-06-30")},
		{CreditAccount: "A", SaleDate: day(t, "2024-03-31")},
		{CreditAccount: "C", SaleDate: day(t, "2024-04-01")},
	}))

	got, err := store.Sales(ctx, scheme.Period{From: day(t, "2024-04-01"), To: day(t, "2024-06-30")})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "C", got[0].CreditAccount)
	assert.Equal(t, "B", got[1].CreditAccount)
}

func TestStore_SchemeCopiesAndMisses(t *testing.T) {
	store := New()
	ctx := context.Background()

	_, err := store.Scheme(ctx, "X")
	assert.ErrorIs(t, err, scheme.ErrSchemeMissing)

	doc := []byte(`{"a":1}`)
	require.NoError(t, store.SaveScheme(ctx, "X", doc))
	doc[0] = '!'

	raw, err := store.Scheme(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(raw))
}

func TestStore_ResetDropsEverything(t *testing.T) {
	store := New()
	ctx := context.Background()
	require.NoError(t, store.SaveScheme(ctx, "X", []byte(`{}`)))
	require.NoError(t, store.SaveMaterials(ctx, sales.MaterialMaster{"M1": {Category: "C"}}))
	require.NoError(t, store.SaveStrataGrowth(ctx, "X", map[string]float64{"A": 5}))

	require.NoError(t, store.Reset(ctx))

	_, err := store.Scheme(ctx, "X")
	assert.Error(t, err)
	master, err := store.MaterialMaster(ctx)
	require.NoError(t, err)
	assert.Empty(t, master)
	growth, err := store.StrataGrowth(ctx, "X")
	require.NoError(t, err)
	assert.Empty(t, growth)
}
