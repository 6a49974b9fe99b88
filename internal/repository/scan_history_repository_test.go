package repository

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestPairKey(t *testing.T) {
	low, high, err := PairKey("u-b", "u-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if low != "u-a" || high != "u-b" {
		t.Fatalf("expected ordered pair, got %q %q", low, high)
	}

	l2, h2, _ := PairKey("u-a", "u-b")
	if l2 != low || h2 != high {
		t.Fatalf("expected same key in both directions")
	}

	for _, pair := range [][2]string{{"u-a", "u-a"}, {"", "u-a"}, {"u-a", ""}} {
		if _, _, err := PairKey(pair[0], pair[1]); !errors.Is(err, ErrSelfPair) {
			t.Fatalf("PairKey(%q, %q) expected ErrSelfPair, got %v", pair[0], pair[1], err)
		}
	}
}

func TestRecordScans_DedupesAndOrdersPairs(t *testing.T) {
	db := &fakeDB{}
	repo := NewPostgresScanHistoryRepository(db)

	s1, s2 := 80, 95
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("x", 3600))
	err := repo.RecordScans(context.Background(), "m", []ScanRecord{
		{CandidateUserID: "z", Score: &s1},
		{CandidateUserID: "a", Score: nil},
		{CandidateUserID: "m"},
		{CandidateUserID: "z", Score: &s2},
	}, at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(db.execs) != 1 {
		t.Fatalf("expected one batch statement, got %d", len(db.execs))
	}

	args := db.execs[0].args
	if got := args[0].([]string); !reflect.DeepEqual(got, []string{"m", "a"}) {
		t.Fatalf("unexpected lows %v", got)
	}
	if got := args[1].([]string); !reflect.DeepEqual(got, []string{"z", "m"}) {
		t.Fatalf("unexpected highs %v", got)
	}
	if got := args[2].(time.Time); !got.Equal(at) || got.Location() != time.UTC {
		t.Fatalf("expected UTC scan time, got %v", got)
	}
	scores := args[3].([]*int)
	if len(scores) != 2 || scores[0] == nil || *scores[0] != 95 || scores[1] != nil {
		t.Fatalf("expected last score to win, got %v", scores)
	}
}

func TestRecordScans_NothingToWrite(t *testing.T) {
	db := &fakeDB{}
	repo := NewPostgresScanHistoryRepository(db)

	if err := repo.RecordScans(context.Background(), "m", nil, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.RecordScans(context.Background(), "m", []ScanRecord{{CandidateUserID: "m"}}, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(db.execs) != 0 {
		t.Fatalf("expected no statements, got %d", len(db.execs))
	}
}

func TestRecentScanChecks_ZeroCooldownSkipsQuery(t *testing.T) {
	db := &fakeDB{}
	repo := NewPostgresScanHistoryRepository(db)

	recent, err := repo.HasRecentScan(context.Background(), "a", "b", 0)
	if err != nil || recent {
		t.Fatalf("expected no recent scan, got %v %v", recent, err)
	}
	got, err := repo.RecentlyScanned(context.Background(), "a", []string{"b"}, 0)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty set, got %v %v", got, err)
	}
	if db.queries != 0 {
		t.Fatalf("expected no queries, got %d", db.queries)
	}
}

func TestHasRecentScan_UsesCutoff(t *testing.T) {
	db := &fakeDB{rows: []fakeRow{{vals: []any{true}}}}
	repo := NewPostgresScanHistoryRepository(db)

	recent, err := repo.HasRecentScan(context.Background(), "b", "a", 7*24*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !recent {
		t.Fatalf("expected recent scan")
	}
}
