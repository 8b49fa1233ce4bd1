package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

func TestEventLogStore_AppendAndRecent(t *testing.T) {
	store := NewEventLogStore()
	ctx := context.Background()

	for seq := uint64(1); seq <= 5; seq++ {
		err := store.Append(ctx, domain.LogEntry{Seq: seq, Message: fmt.Sprintf("entry %d", seq)})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got, err := store.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].Seq != 3 || got[2].Seq != 5 {
		t.Errorf("expected seq 3..5 oldest first, got %d..%d", got[0].Seq, got[2].Seq)
	}

	if err := store.Append(ctx, domain.LogEntry{Seq: 2}); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	if err := store.Append(ctx, domain.LogEntry{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBalanceStore_TimeRange(t *testing.T) {
	store := NewBalanceStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		err := store.Insert(ctx, &domain.BalancePoint{
			Address:   "addr",
			Value:     decimal.NewFromInt(int64(i)),
			FetchedAt: base.Add(time.Duration(4-i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := store.GetByTimeRange(ctx, "addr", base.Add(time.Minute), base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 points (inclusive bounds), got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].FetchedAt.Before(got[i-1].FetchedAt) {
			t.Error("points not ordered by fetched_at")
		}
	}

	other, _ := store.GetByTimeRange(ctx, "other", base, base.Add(time.Hour))
	if len(other) != 0 {
		t.Errorf("expected no points for unknown address, got %d", len(other))
	}

	if err := store.Insert(ctx, &domain.BalancePoint{Address: "addr"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for zero time, got %v", err)
	}
}

func TestSeenStore_MarkSeen(t *testing.T) {
	store := NewSeenStore()
	ctx := context.Background()

	fresh, err := store.MarkSeen(ctx, "mint1")
	if err != nil || !fresh {
		t.Fatalf("first MarkSeen: fresh=%v err=%v", fresh, err)
	}
	fresh, err = store.MarkSeen(ctx, "mint1")
	if err != nil || fresh {
		t.Fatalf("second MarkSeen: fresh=%v err=%v", fresh, err)
	}
	if _, err := store.MarkSeen(ctx, ""); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSeenStore_ConcurrentMarkSeenIsFreshOnce(t *testing.T) {
	store := NewSeenStore()
	ctx := context.Background()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := store.MarkSeen(ctx, "mint"); ok {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if fresh != 1 {
		t.Errorf("expected exactly one fresh mark, got %d", fresh)
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 remembered mint, got %d", store.Len())
	}
}
