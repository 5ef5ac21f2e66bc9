package manager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridsim/engine"
)

func TestSnapshotIsConsistentCopy(t *testing.T) {
	m, _ := setupManager(t, nil)
	_, err := m.StartSession(autoConfig("BTC"))
	require.NoError(t, err)

	snap, err := m.GetSession("BTC")
	require.NoError(t, err)
	assert.Equal(t, "BTC", snap.Item)
	assert.Equal(t, testWallet, snap.Wallet)
	assert.Equal(t, 4, snap.OpenOrders)
	assert.Len(t, snap.Orders, 4)
	require.NotNil(t, snap.Config)

	// The snapshot is detached from the live session
	_, _, err = m.Tick("BTC", ptr(98.5))
	require.NoError(t, err)

	assert.Equal(t, int64(0), snap.TickCount)
	assert.Empty(t, snap.Fills)
	assert.Equal(t, engine.OrderOpen, snap.Orders[0].Status)

	fresh, err := m.GetSession("BTC")
	require.NoError(t, err)
	assert.Equal(t, int64(1), fresh.TickCount)
	assert.Len(t, fresh.Fills, 1)
	assert.Equal(t, 3, fresh.OpenOrders)
}
