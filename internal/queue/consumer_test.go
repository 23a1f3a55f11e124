package queue

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatLine(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	line := FormatLine(StorefrontEvent{Type: EventOrderPlaced, UserID: "u1", OrderID: "o1", Total: 25, OccurredAt: at})
	assert.Equal(t, "[2024-05-01T12:00:00Z] order.placed | user_id=u1 | order_id=o1 | total=25.00\n", line)
}

func TestHandleMessageAppends(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, handleMessage(dir, []byte(`{"type":"cart.changed","user_id":"u1","product_id":"p1","quantity":2,"occurred_at":"2024-05-01T12:00:00Z"}`)))
	require.NoError(t, handleMessage(dir, []byte(`{"type":"auth.signed_out","user_id":"u1","occurred_at":"2024-05-01T12:01:00Z"}`)))

	b, err := os.ReadFile(filepath.Join(dir, "events.log"))
	require.NoError(t, err)
	assert.Equal(t,
		"[2024-05-01T12:00:00Z] cart.changed | user_id=u1 | product_id=p1 | quantity=2\n"+
			"[2024-05-01T12:01:00Z] auth.signed_out | user_id=u1\n", string(b))
}

func TestHandleMessageRejectsBadPayloads(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, handleMessage(dir, []byte("{")))
	assert.Error(t, handleMessage(dir, []byte(`{"user_id":"u1"}`)))
}
