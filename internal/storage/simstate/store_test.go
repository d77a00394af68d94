package simstate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveLoad(t *testing.T) {
	t.Setenv("DCABOT_SIMULATE_STATE_DIR", t.TempDir())

	store, err := NewStore("Main Account")
	require.NoError(t, err)

	state, err := store.Load()
	require.NoError(t, err)
	require.Nil(t, state)

	require.NoError(t, store.Save(NewState(map[string]decimal.Decimal{
		"USDT": decimal.RequireFromString("950.5"),
		"BTC":  decimal.RequireFromString("0.001"),
	})))

	state, err = store.Load()
	require.NoError(t, err)
	require.NotNil(t, state)

	balances := state.Balances()
	require.True(t, balances["USDT"].Equal(decimal.RequireFromString("950.5")))
	require.True(t, balances["BTC"].Equal(decimal.RequireFromString("0.001")))
	require.Empty(t, state.Fills)

	withFills := NewState(balances)
	withFills.Fills = []Fill{{OrderID: "bo-1", Price: decimal.NewFromInt(100), Cost: decimal.NewFromInt(50)}}
	require.NoError(t, store.Save(withFills))

	state, err = store.Load()
	require.NoError(t, err)
	require.Len(t, state.Fills, 1)
	require.Equal(t, "bo-1", state.Fills[0].OrderID)
	require.True(t, state.Fills[0].Price.Equal(decimal.NewFromInt(100)))
}

func TestSanitizeScope(t *testing.T) {
	require.Equal(t, "main_account", sanitizeScope("  Main  Account "))
	require.Equal(t, "btc_usdt", sanitizeScope("BTC/USDT"))
	require.Equal(t, "", sanitizeScope("   "))
}
