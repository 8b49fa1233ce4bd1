package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

func TestEventLogStore_AppendAndRecent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEventLogStore(pool)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for seq := uint64(1); seq <= 4; seq++ {
		require.NoError(t, store.Append(ctx, domain.LogEntry{
			Seq:       seq,
			Timestamp: base.Add(time.Duration(seq) * time.Second),
			Level:     domain.LevelInfo,
			Message:   fmt.Sprintf("entry %d", seq),
		}))
	}

	got, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(3), got[0].Seq)
	assert.Equal(t, uint64(4), got[1].Seq)
	assert.Equal(t, "entry 4", got[1].Message)
	assert.Equal(t, domain.LevelInfo, got[1].Level)

	err = store.Append(ctx, domain.LogEntry{Seq: 4, Timestamp: base, Level: domain.LevelWarn, Message: "again"})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}
