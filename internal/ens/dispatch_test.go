package ens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxtrader/internal/models"
)

func TestIsControl_DisconnectReason(t *testing.T) {
	assert.True(t, IsControl([]byte(`{"Reason":"SessionLimitExceeded"}`)))
	assert.True(t, IsControl([]byte(`{"MessageType":"disconnect"}`)))
	assert.False(t, IsControl([]byte(`{"Data":[]}`)))
}

func TestClassifyActivity_OrderFillConfirmed(t *testing.T) {
	payload := []byte(`{"Data":[{"ActivityType":"Orders","OrderId":"O1","Uic":21,"Status":"FinalFill","SubStatus":"Confirmed","AveragePrice":1.1,"FilledAmount":10000,"Amount":10000}]}`)

	events, err := ClassifyActivity(payload)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventOrderFill, events[0].Type)
	assert.Equal(t, "O1", events[0].OrderID)
}

func TestClassifyActivity_PartialFillIsNotEmitted(t *testing.T) {
	payload := []byte(`{"Data":[{"ActivityType":"Orders","OrderId":"O1","Uic":21,"Status":"Fill","SubStatus":"Confirmed","FilledAmount":5000,"Amount":10000}]}`)

	events, err := ClassifyActivity(payload)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestClassifyActivity_CancelledOrder(t *testing.T) {
	payload := []byte(`{"Data":[{"ActivityType":"Orders","OrderId":"O2","Uic":21,"Status":"Cancelled"}]}`)

	events, err := ClassifyActivity(payload)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventOrderStatusChange, events[0].Type)
}

func TestClassifyActivity_PositionClosedOnZeroAmount(t *testing.T) {
	payload := []byte(`{"Data":[{"ActivityType":"Positions","PositionId":"P1","Uic":21,"Amount":0}]}`)

	events, err := ClassifyActivity(payload)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventPositionClosed, events[0].Type)
}
