package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, 0)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertToken_InsertThenTouch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertToken(ctx, "mint1", "pumpfun", "creator1", 1000, 1000))
	require.NoError(t, s.UpsertToken(ctx, "mint1", "pumpfun", "", 1000, 2000))

	var seenCount int
	var lastSeen int64
	row := s.db.QueryRow(`SELECT seen_count, last_seen_ts FROM tokens WHERE mint = ?`, "mint1")
	require.NoError(t, row.Scan(&seenCount, &lastSeen))
	require.Equal(t, 2, seenCount)
	require.EqualValues(t, 2000, lastSeen)
}

func TestInsertEvent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.InsertEvent(ctx, EventRow{
		Ts: 1000, Signature: "sig1", Mint: "mint1", Origin: "pumpfun",
		Buyers: 5, UniqueFunders: 3, SameFunderRatio: 0.2, PriceJumps: 1, DepthEst: 0.4,
		Creator: "creator1", SnapshotJSON: "{}",
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM events WHERE mint = ?`, "mint1").Scan(&count))
	require.Equal(t, 1, count)
}

func TestBulkInsertEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rows := []EventRow{
		{Ts: 1000, Mint: "mint1", Origin: "pumpfun"},
		{Ts: 1001, Mint: "mint2", Origin: "pumpfun"},
	}
	require.NoError(t, s.BulkInsertEvents(ctx, rows))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&count))
	require.Equal(t, 2, count)
}

func TestBulkInsertEvents_EmptyIsNoop(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.BulkInsertEvents(context.Background(), nil))
}

func TestUpsertEntryRecord_InsertsNewRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.UpsertEntryRecord(ctx, EntryOrder{
		Market: "mint1", Status: "dry_run", SizeTier: "SMALL", Mint: "mint1", Origin: "pumpfun", DecidedTs: 1000,
	})
	require.NoError(t, err)

	var status, tier string
	row := s.db.QueryRow(`SELECT status, size_tier FROM orders WHERE market = ? AND type = 'unitary-entry'`, "mint1")
	require.NoError(t, row.Scan(&status, &tier))
	require.Equal(t, "dry_run", status)
	require.Equal(t, "SMALL", tier)
}

func TestUpsertEntryRecord_RejectedThenAcceptOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertEntryRecord(ctx, EntryOrder{
		Market: "mint1", Status: "rejected_soft", SizeTier: "", Mint: "mint1", Origin: "pumpfun", DecidedTs: 1000,
	}))
	require.NoError(t, s.UpsertEntryRecord(ctx, EntryOrder{
		Market: "mint1", Status: "dry_run", SizeTier: "SMALL", Mint: "mint1", Origin: "pumpfun", DecidedTs: 2000,
	}))

	var status string
	row := s.db.QueryRow(`SELECT status FROM orders WHERE market = ? AND type = 'unitary-entry'`, "mint1")
	require.NoError(t, row.Scan(&status))
	require.Equal(t, "dry_run", status)
}

func TestUpsertEntryRecord_AcceptedRowNeverDowngrades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertEntryRecord(ctx, EntryOrder{
		Market: "mint1", Status: "dry_run", SizeTier: "SMALL", Mint: "mint1", Origin: "pumpfun", DecidedTs: 1000,
	}))
	// A later "rejected" evaluation must not overwrite the accepted row.
	require.NoError(t, s.UpsertEntryRecord(ctx, EntryOrder{
		Market: "mint1", Status: "rejected_soft", SizeTier: "", Mint: "mint1", Origin: "pumpfun", DecidedTs: 2000,
	}))

	var status, tier string
	row := s.db.QueryRow(`SELECT status, size_tier FROM orders WHERE market = ? AND type = 'unitary-entry'`, "mint1")
	require.NoError(t, row.Scan(&status, &tier))
	require.Equal(t, "dry_run", status)
	require.Equal(t, "SMALL", tier)
}

func TestUpsertEntryRecord_SmallToApexUpgrade(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertEntryRecord(ctx, EntryOrder{
		Market: "mint1", Status: "dry_run", SizeTier: "SMALL", Mint: "mint1", Origin: "pumpfun", DecidedTs: 1000,
	}))
	require.NoError(t, s.UpsertEntryRecord(ctx, EntryOrder{
		Market: "mint1", Status: "dry_run", SizeTier: "APEX", Mint: "mint1", Origin: "pumpfun", DecidedTs: 2000,
	}))

	var tier string
	row := s.db.QueryRow(`SELECT size_tier FROM orders WHERE market = ? AND type = 'unitary-entry'`, "mint1")
	require.NoError(t, row.Scan(&tier))
	require.Equal(t, "APEX", tier)
}
