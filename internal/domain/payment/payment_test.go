package payment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		amount string
		minor  int64
	}{
		{"45.00", 4500},
		{"0.01", 1},
		{"19.99", 1999},
		{"10.005", 1001},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.minor, ToMinorUnits(decimal.RequireFromString(tt.amount)))
		})
	}

	assert.Equal(t, "45.00", FromMinorUnits(4500).StringFixed(2))
	assert.Equal(t, "0.07", FromMinorUnits(7).StringFixed(2))
}

func TestEvent_OrderID(t *testing.T) {
	id, err := (&Event{OrderRef: " 42 "}).OrderID()
	require.NoError(t, err)
	require.Equal(t, int64(42), id)

	for _, ref := range []string{"", "abc", "0", "-3", "4.5"} {
		_, err := (&Event{OrderRef: ref}).OrderID()
		require.ErrorIs(t, err, ErrMissingOrderReference, ref)
	}
}

func TestEvent_Recognized(t *testing.T) {
	assert.True(t, (&Event{Type: EventPaymentSucceeded}).Recognized())
	assert.True(t, (&Event{Type: EventSessionCompleted}).Recognized())
	assert.False(t, (&Event{Type: "charge.refunded"}).Recognized())
}

func TestMethod_IsValid(t *testing.T) {
	assert.True(t, MethodBankTransfer.IsValid())
	assert.False(t, Method("card").IsValid())
	assert.False(t, Method("CRYPTO").IsValid())
}

func TestSumCompleted(t *testing.T) {
	payments := []Payment{
		{Amount: decimal.RequireFromString("10.00"), Status: StatusCompleted},
		{Amount: decimal.RequireFromString("5.00"), Status: StatusFailed},
		{Amount: decimal.RequireFromString("2.50"), Status: StatusCompleted},
	}
	assert.Equal(t, "12.50", SumCompleted(payments).StringFixed(2))
	assert.True(t, SumCompleted(nil).IsZero())
}
