package orders

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestSaveAndListRecent(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(&OrderRecord{
		ClientOrderID: "c-1", Symbol: "HK.00700", Side: "BUY",
		Quantity: 300, Price: 321.5, OrderType: "market", Env: "sim",
		Status: "submitted", Confidence: 75.5, FusionType: "agreed",
		Detail: datatypes.JSON([]byte(`{"reason":"vwap 回归"}`)),
	}))
	require.NoError(t, s.Save(&OrderRecord{
		ClientOrderID: "c-2", Symbol: "HK.09988", Side: "SELL",
		Quantity: 100, Price: 80, Status: "failed", Error: "insufficient power",
	}))

	got, err := s.ListRecent("HK.00700", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "submitted", got[0].Status)
	assert.Equal(t, 300, got[0].Quantity)

	all, err := s.ListRecent("", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDuplicateClientOrderIDRejected(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(&OrderRecord{ClientOrderID: "dup", Symbol: "HK.00700", Side: "BUY"}))
	assert.Error(t, s.Save(&OrderRecord{ClientOrderID: "dup", Symbol: "HK.00700", Side: "BUY"}))
}
