package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasknerd/internal/types"
)

func TestTracesRecentNewestFirst(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	traces := db.Traces()

	for i, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, traces.StoreTrace(ctx, types.SuggestionTrace{
			ID:             id,
			ConversationID: "c1",
			Model:          "m",
			SystemPrompt:   "sys",
			UserPrompt:     "user",
			Response:       `{"intent":"CANCEL"}`,
			DurationMs:     int64(10 * (i + 1)),
			Success:        i != 1,
			ErrorMessage:   map[bool]string{true: "boom"}[i == 1],
			Timestamp:      baseTime.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := traces.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t3", got[0].ID)
	assert.Equal(t, "t2", got[1].ID)
	assert.False(t, got[1].Success)
	assert.Equal(t, "boom", got[1].ErrorMessage)
	assert.Equal(t, int64(20), got[1].DurationMs)
	assert.True(t, got[0].Timestamp.Equal(baseTime.Add(2*time.Minute)))

	assert.Error(t, traces.StoreTrace(ctx, types.SuggestionTrace{}), "id is required")
}

func TestTracesPrune(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	traces := db.Traces()

	require.NoError(t, traces.StoreTrace(ctx, types.SuggestionTrace{ID: "old", Timestamp: baseTime.AddDate(0, 0, -40)}))
	require.NoError(t, traces.StoreTrace(ctx, types.SuggestionTrace{ID: "new", Timestamp: baseTime.AddDate(0, 0, -1)}))

	n, err := traces.Prune(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := traces.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "new", left[0].ID)

	_, err = traces.Prune(ctx, 0)
	assert.Error(t, err)
}
