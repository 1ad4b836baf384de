package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/deepgram/wayfinder/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServiceFallsBackToMemory(t *testing.T) {
	s := NewService(nil)
	assert.Equal(t, "memory", s.Backend())
}

func TestMemoryHistory(t *testing.T) {
	ctx := context.Background()
	s := NewServiceWithStore(NewMemoryStore(), "memory")

	require.NoError(t, s.Append(ctx, protocol.HistoryRecord{SessionID: "a", UserMessage: "q1", AssistantMessage: "r1"}))
	require.NoError(t, s.Append(ctx, protocol.HistoryRecord{SessionID: "a", UserMessage: "q2", AssistantMessage: "r2"}))
	require.NoError(t, s.Append(ctx, protocol.HistoryRecord{SessionID: "b", UserMessage: "other"}))

	records, err := s.List(ctx, "a")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "q1", records[0].UserMessage)
	assert.Equal(t, "q2", records[1].UserMessage)
	assert.False(t, records[0].Timestamp.IsZero())

	require.NoError(t, s.Clear(ctx, "a"))
	records, err = s.List(ctx, "a")
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)

	records, err = s.List(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestAppendKeepsTimestamp(t *testing.T) {
	ctx := context.Background()
	s := NewServiceWithStore(NewMemoryStore(), "memory")
	ts := time.Date(2025, 12, 24, 18, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(ctx, protocol.HistoryRecord{SessionID: "a", Timestamp: ts}))

	records, _ := s.List(ctx, "a")
	assert.True(t, ts.Equal(records[0].Timestamp))
}

func TestRecentIsBounded(t *testing.T) {
	ctx := context.Background()
	s := NewServiceWithStore(NewMemoryStore(), "memory")

	for i := 0; i < maxRecords+5; i++ {
		require.NoError(t, s.Append(ctx, protocol.HistoryRecord{SessionID: "a", UserMessage: fmt.Sprintf("q%d", i)}))
	}

	records, err := s.Recent(ctx, "a")
	require.NoError(t, err)
	require.Len(t, records, maxRecords)
	assert.Equal(t, "q5", records[0].UserMessage)
	assert.Equal(t, fmt.Sprintf("q%d", maxRecords+4), records[len(records)-1].UserMessage)
}

func TestMemoryStoreListReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Append(ctx, protocol.HistoryRecord{SessionID: "a", UserMessage: "orig"}))

	records, _ := store.List(ctx, "a")
	records[0].UserMessage = "changed"

	again, _ := store.List(ctx, "a")
	assert.Equal(t, "orig", again[0].UserMessage)
}
