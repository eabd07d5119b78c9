package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-es/kestrel/adapters"
)

func TestNewAdapter(t *testing.T) {
	t.Run("creates adapter with defaults", func(t *testing.T) {
		adapter := NewAdapter()

		assert.NotNil(t, adapter)
		assert.Equal(t, 0, adapter.EventCount())
		assert.Equal(t, 0, adapter.StreamCount())
	})

	t.Run("Initialize is no-op", func(t *testing.T) {
		adapter := NewAdapter()
		assert.NoError(t, adapter.Initialize(context.Background()))
	})
}

func TestMemoryAdapter_Append(t *testing.T) {
	ctx := context.Background()

	t.Run("append to new stream", func(t *testing.T) {
		adapter := NewAdapter()

		stored, err := adapter.Append(ctx, "Account-1", []adapters.EventRecord{
			{Type: "AccountOpened", Data: []byte(`{"owner":"ada"}`)},
		}, NoStream)

		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, "Account-1", stored[0].StreamID)
		assert.Equal(t, "AccountOpened", stored[0].Type)
		assert.Equal(t, int64(1), stored[0].Version)
		assert.Equal(t, uint64(1), stored[0].GlobalPosition)
		assert.NotEmpty(t, stored[0].ID)
		assert.False(t, stored[0].Timestamp.IsZero())
	})

	t.Run("keeps record id and timestamp", func(t *testing.T) {
		adapter := NewAdapter()
		at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

		stored, err := adapter.Append(ctx, "Account-1", []adapters.EventRecord{
			{ID: "evt-1", Type: "AccountOpened", Data: []byte(`{}`), Timestamp: at},
		}, NoStream)

		require.NoError(t, err)
		assert.Equal(t, "evt-1", stored[0].ID)
		assert.Equal(t, at, stored[0].Timestamp)
	})

	t.Run("uses clock for missing timestamps", func(t *testing.T) {
		at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		adapter := NewAdapter(WithClock(func() time.Time { return at }))

		stored, err := adapter.Append(ctx, "Account-1", []adapters.EventRecord{
			{Type: "AccountOpened", Data: []byte(`{}`)},
		}, NoStream)

		require.NoError(t, err)
		assert.Equal(t, at, stored[0].Timestamp)

		info, err := adapter.GetStreamInfo(ctx, "Account-1")
		require.NoError(t, err)
		assert.Equal(t, at, info.CreatedAt)
		assert.Equal(t, at, info.UpdatedAt)
	})

	t.Run("append multiple events numbers versions consecutively", func(t *testing.T) {
		adapter := NewAdapter()

		stored, err := adapter.Append(ctx, "Account-1", []adapters.EventRecord{
			{Type: "AccountOpened", Data: []byte(`{}`)},
			{Type: "Deposited", Data: []byte(`{}`)},
			{Type: "Deposited", Data: []byte(`{}`)},
		}, NoStream)

		require.NoError(t, err)
		require.Len(t, stored, 3)
		for i, e := range stored {
			assert.Equal(t, int64(i+1), e.Version)
			assert.Equal(t, uint64(i+1), e.GlobalPosition)
		}
	})

	t.Run("append to existing stream with expected version", func(t *testing.T) {
		adapter := NewAdapter()

		_, err := adapter.Append(ctx, "Account-1", []adapters.EventRecord{{Type: "AccountOpened", Data: []byte(`{}`)}}, NoStream)
		require.NoError(t, err)

		stored, err := adapter.Append(ctx, "Account-1", []adapters.EventRecord{{Type: "Deposited", Data: []byte(`{}`)}}, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stored[0].Version)
	})

	t.Run("concurrency conflict on stale version", func(t *testing.T) {
		adapter := NewAdapter()

		_, err := adapter.Append(ctx, "Account-1", []adapters.EventRecord{{Type: "AccountOpened", Data: []byte(`{}`)}}, NoStream)
		require.NoError(t, err)

		_, err = adapter.Append(ctx, "Account-1", []adapters.EventRecord{{Type: "Deposited", Data: []byte(`{}`)}}, NoStream)
		assert.ErrorIs(t, err, adapters.ErrConcurrencyConflict)

		var concErr *adapters.ConcurrencyError
		require.True(t, errors.As(err, &concErr))
		assert.Equal(t, "Account-1", concErr.StreamID)
		assert.Equal(t, int64(1), concErr.ActualVersion)
		assert.Equal(t, 1, adapter.EventCount())
	})

	t.Run("StreamExists requires the stream", func(t *testing.T) {
		adapter := NewAdapter()

		_, err := adapter.Append(ctx, "Account-1", []adapters.EventRecord{{Type: "Deposited", Data: []byte(`{}`)}}, StreamExists)
		assert.ErrorIs(t, err, adapters.ErrStreamNotFound)
	})

	t.Run("AnyVersion skips the check", func(t *testing.T) {
		adapter := NewAdapter()

		_, err := adapter.Append(ctx, "Account-1", []adapters.EventRecord{{Type: "A", Data: []byte(`{}`)}}, AnyVersion)
		require.NoError(t, err)
		_, err = adapter.Append(ctx, "Account-1", []adapters.EventRecord{{Type: "B", Data: []byte(`{}`)}}, AnyVersion)
		require.NoError(t, err)
		assert.Equal(t, 2, adapter.EventCount())
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		adapter := NewAdapter()

		_, err := adapter.Append(ctx, "", []adapters.EventRecord{{Type: "A"}}, AnyVersion)
		assert.ErrorIs(t, err, adapters.ErrEmptyStreamID)

		_, err = adapter.Append(ctx, "Account-1", nil, AnyVersion)
		assert.ErrorIs(t, err, adapters.ErrNoEvents)

		_, err = adapter.Append(ctx, "Account-1", []adapters.EventRecord{{Type: "A"}}, -5)
		assert.ErrorIs(t, err, adapters.ErrInvalidVersion)
	})

	t.Run("fails on cancelled context", func(t *testing.T) {
		adapter := NewAdapter()
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := adapter.Append(cancelled, "Account-1", []adapters.EventRecord{{Type: "A"}}, AnyVersion)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestMemoryAdapter_Load(t *testing.T) {
	ctx := context.Background()

	adapter := NewAdapter()
	_, err := adapter.Append(ctx, "Account-1", []adapters.EventRecord{
		{Type: "AccountOpened", Data: []byte(`{}`)},
		{Type: "Deposited", Data: []byte(`{}`)},
		{Type: "Withdrawn", Data: []byte(`{}`)},
	}, NoStream)
	require.NoError(t, err)

	t.Run("loads whole stream", func(t *testing.T) {
		events, err := adapter.Load(ctx, "Account-1", 0)
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, "AccountOpened", events[0].Type)
		assert.Equal(t, "Withdrawn", events[2].Type)
	})

	t.Run("loads after version", func(t *testing.T) {
		events, err := adapter.Load(ctx, "Account-1", 2)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, int64(3), events[0].Version)
	})

	t.Run("missing stream is empty", func(t *testing.T) {
		events, err := adapter.Load(ctx, "Account-404", 0)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("empty stream id", func(t *testing.T) {
		_, err := adapter.Load(ctx, "", 0)
		assert.ErrorIs(t, err, adapters.ErrEmptyStreamID)
	})
}

func TestMemoryAdapter_GetStreamInfo(t *testing.T) {
	ctx := context.Background()

	t.Run("existing stream", func(t *testing.T) {
		adapter := NewAdapter()
		_, err := adapter.Append(ctx, "Account-1", []adapters.EventRecord{
			{Type: "AccountOpened", Data: []byte(`{}`)},
			{Type: "Deposited", Data: []byte(`{}`)},
		}, NoStream)
		require.NoError(t, err)

		info, err := adapter.GetStreamInfo(ctx, "Account-1")
		require.NoError(t, err)
		assert.Equal(t, "Account-1", info.StreamID)
		assert.Equal(t, "Account", info.Category)
		assert.Equal(t, int64(2), info.Version)
		assert.Equal(t, int64(2), info.EventCount)
	})

	t.Run("missing stream", func(t *testing.T) {
		adapter := NewAdapter()

		_, err := adapter.GetStreamInfo(ctx, "Account-404")
		assert.ErrorIs(t, err, adapters.ErrStreamNotFound)
	})
}

func TestMemoryAdapter_GetLastPosition(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter()

	pos, err := adapter.GetLastPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), pos)

	_, err = adapter.Append(ctx, "Account-1", []adapters.EventRecord{{Type: "A"}, {Type: "B"}}, NoStream)
	require.NoError(t, err)
	_, err = adapter.Append(ctx, "Account-2", []adapters.EventRecord{{Type: "A"}}, NoStream)
	require.NoError(t, err)

	pos, err = adapter.GetLastPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), pos)
}

func TestMemoryAdapter_ListStreams(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	adapter := NewAdapter(WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}))

	_, err := adapter.Append(ctx, "Account-1", []adapters.EventRecord{{Type: "AccountOpened"}}, NoStream)
	require.NoError(t, err)
	_, err = adapter.Append(ctx, "Order-1", []adapters.EventRecord{{Type: "OrderPlaced"}}, NoStream)
	require.NoError(t, err)
	_, err = adapter.Append(ctx, "Account-2", []adapters.EventRecord{{Type: "AccountOpened"}, {Type: "Deposited"}}, NoStream)
	require.NoError(t, err)

	t.Run("most recent first", func(t *testing.T) {
		streams, err := adapter.ListStreams(ctx, "", 0)
		require.NoError(t, err)
		require.Len(t, streams, 3)
		assert.Equal(t, "Account-2", streams[0].StreamID)
		assert.Equal(t, "Deposited", streams[0].LastEventType)
		assert.Equal(t, int64(2), streams[0].Version)
		assert.Equal(t, "Account-1", streams[2].StreamID)
	})

	t.Run("filters by prefix", func(t *testing.T) {
		streams, err := adapter.ListStreams(ctx, "Account-", 0)
		require.NoError(t, err)
		require.Len(t, streams, 2)
		for _, s := range streams {
			assert.Equal(t, "Account", s.Category)
		}
	})

	t.Run("applies limit", func(t *testing.T) {
		streams, err := adapter.ListStreams(ctx, "", 1)
		require.NoError(t, err)
		assert.Len(t, streams, 1)
	})
}

func TestMemoryAdapter_Close(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter()
	require.NoError(t, adapter.Close())

	_, err := adapter.Append(ctx, "Account-1", []adapters.EventRecord{{Type: "A"}}, AnyVersion)
	assert.ErrorIs(t, err, adapters.ErrAdapterClosed)

	_, err = adapter.Load(ctx, "Account-1", 0)
	assert.ErrorIs(t, err, adapters.ErrAdapterClosed)

	_, err = adapter.GetStreamInfo(ctx, "Account-1")
	assert.ErrorIs(t, err, adapters.ErrAdapterClosed)

	_, err = adapter.GetLastPosition(ctx)
	assert.ErrorIs(t, err, adapters.ErrAdapterClosed)

	_, err = adapter.ListStreams(ctx, "", 0)
	assert.ErrorIs(t, err, adapters.ErrAdapterClosed)

	assert.ErrorIs(t, adapter.Ping(ctx), adapters.ErrAdapterClosed)
}

func TestMemoryAdapter_Ping(t *testing.T) {
	adapter := NewAdapter()
	assert.NoError(t, adapter.Ping(context.Background()))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, adapter.Ping(cancelled), context.Canceled)
}

func TestMemoryAdapter_Reset(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter()

	_, err := adapter.Append(ctx, "Account-1", []adapters.EventRecord{{Type: "A"}}, NoStream)
	require.NoError(t, err)

	adapter.Reset()

	assert.Equal(t, 0, adapter.EventCount())
	assert.Equal(t, 0, adapter.StreamCount())
	pos, err := adapter.GetLastPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), pos)
}

func TestMemoryAdapter_Concurrent(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			streamID := fmt.Sprintf("Account-%d", n)
			for v := 0; v < 5; v++ {
				_, err := adapter.Append(ctx, streamID, []adapters.EventRecord{{Type: "Deposited"}}, int64(v))
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100, adapter.EventCount())
	assert.Equal(t, 20, adapter.StreamCount())
}
