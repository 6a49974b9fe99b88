package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"matchengine/internal/database"
)

var ErrSelfPair = errors.New("scan pair needs two distinct users")

// PairKey orders two user ids so (a, b) and (b, a) share one key.
func PairKey(a, b string) (low, high string, err error) {
	if a == "" || b == "" || a == b {
		return "", "", ErrSelfPair
	}
	if a < b {
		return a, b, nil
	}
	return b, a, nil
}

type ScanRecord struct {
	CandidateUserID string
	Score           *int
}

type ScanHistoryRepository interface {
	HasRecentScan(ctx context.Context, a, b string, cooldown time.Duration) (bool, error)
	RecentlyScanned(ctx context.Context, target string, candidates []string, cooldown time.Duration) (map[string]bool, error)
	RecordScan(ctx context.Context, a, b string, score *int, at time.Time) error
	RecordScans(ctx context.Context, target string, scans []ScanRecord, at time.Time) error
}

type PostgresScanHistoryRepository struct {
	db  database.DB
	now func() time.Time
}

func NewPostgresScanHistoryRepository(db database.DB) *PostgresScanHistoryRepository {
	return &PostgresScanHistoryRepository{db: db, now: time.Now}
}

func (r *PostgresScanHistoryRepository) cutoff(cooldown time.Duration) time.Time {
	return r.now().UTC().Add(-cooldown)
}

func (r *PostgresScanHistoryRepository) HasRecentScan(ctx context.Context, a, b string, cooldown time.Duration) (bool, error) {
	low, high, err := PairKey(a, b)
	if err != nil {
		return false, err
	}
	if cooldown <= 0 {
		return false, nil
	}

	var exists bool
	err = r.db.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM scanned_pairs
			WHERE user_low = $1 AND user_high = $2 AND scanned_at >= $3
		 )`,
		low, high, r.cutoff(cooldown),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check recent scan: %w", err)
	}
	return exists, nil
}

// RecentlyScanned returns the candidates whose pair with target was scanned
// within cooldown.
func (r *PostgresScanHistoryRepository) RecentlyScanned(ctx context.Context, target string, candidates []string, cooldown time.Duration) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(candidates) == 0 || cooldown <= 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT CASE WHEN user_low = $1 THEN user_high ELSE user_low END
		 FROM scanned_pairs
		 WHERE ((user_low = $1 AND user_high = ANY($2))
		     OR (user_high = $1 AND user_low = ANY($2)))
		   AND scanned_at >= $3`,
		target, candidates, r.cutoff(cooldown),
	)
	if err != nil {
		return nil, fmt.Errorf("list recent scans: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (r *PostgresScanHistoryRepository) RecordScan(ctx context.Context, a, b string, score *int, at time.Time) error {
	low, high, err := PairKey(a, b)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO scanned_pairs (user_low, user_high, scanned_at, score_at_scan)
		 VALUES ($1,$2,$3,$4)
		 ON CONFLICT (user_low, user_high) DO UPDATE SET
			scanned_at = EXCLUDED.scanned_at,
			score_at_scan = EXCLUDED.score_at_scan`,
		low, high, at.UTC(), score,
	)
	return err
}

// RecordScans upserts one scan per candidate in a single statement. Later
// entries for the same candidate win.
func (r *PostgresScanHistoryRepository) RecordScans(ctx context.Context, target string, scans []ScanRecord, at time.Time) error {
	if len(scans) == 0 {
		return nil
	}

	idx := make(map[string]int, len(scans))
	lows := make([]string, 0, len(scans))
	highs := make([]string, 0, len(scans))
	scores := make([]*int, 0, len(scans))
	for _, s := range scans {
		low, high, err := PairKey(target, s.CandidateUserID)
		if err != nil {
			continue
		}
		if i, ok := idx[s.CandidateUserID]; ok {
			scores[i] = s.Score
			continue
		}
		idx[s.CandidateUserID] = len(lows)
		lows = append(lows, low)
		highs = append(highs, high)
		scores = append(scores, s.Score)
	}
	if len(lows) == 0 {
		return nil
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO scanned_pairs (user_low, user_high, scanned_at, score_at_scan)
		 SELECT t.low, t.high, $3, t.score
		 FROM unnest($1::text[], $2::text[], $4::int[]) AS t(low, high, score)
		 ON CONFLICT (user_low, user_high) DO UPDATE SET
			scanned_at = EXCLUDED.scanned_at,
			score_at_scan = EXCLUDED.score_at_scan`,
		lows, highs, at.UTC(), scores,
	)
	if err != nil {
		return fmt.Errorf("record scans: %w", err)
	}
	return nil
}
