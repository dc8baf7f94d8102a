package reconcile

import (
	"context"
	"time"

	"github.com/WebOleg/Laravel-start-te-sub000/app/repository"
	"github.com/WebOleg/Laravel-start-te-sub000/internal/pkg/jobstate"
)

const (
	// Pending attempts older than this count as stale for operators.
	staleAge = 24 * time.Hour
	// Age before a never-reconciled pending attempt is worth flagging.
	neverReconciledAge = time.Hour
)

// OverviewStats are the operator-facing counters over attempt state.
type OverviewStats struct {
	PendingTotal     int64 `json:"pending_total"`
	PendingStale     int64 `json:"pending_stale"`
	NeverReconciled  int64 `json:"never_reconciled"`
	MaxedOutAttempts int64 `json:"maxed_out_attempts"`
	Eligible         int64 `json:"eligible"`
}

// UploadStats extends the overview for one upload batch.
type UploadStats struct {
	OverviewStats
	UploadID        uint  `json:"upload_id"`
	ReconciledToday int64 `json:"reconciled_today"`
	IsProcessing    bool  `json:"is_processing"`
}

// StatsReporter answers read-only questions about reconciliation state. It
// never mutates attempts.
type StatsReporter struct {
	attempts repository.BillingAttemptRepository
	store    *jobstate.Store
}

// NewStatsReporter creates a stats reporter.
func NewStatsReporter(attempts repository.BillingAttemptRepository, store *jobstate.Store) *StatsReporter {
	return &StatsReporter{attempts: attempts, store: store}
}

// Overview returns the global counters.
func (s *StatsReporter) Overview(ctx context.Context) (*OverviewStats, error) {
	return s.collect(nil)
}

// ForUpload returns the counters scoped to one upload plus today's
// reconciliation activity and whether that upload's own bulk job is
// running.
func (s *StatsReporter) ForUpload(ctx context.Context, uploadID uint) (*UploadStats, error) {
	overview, err := s.collect(&uploadID)
	if err != nil {
		return nil, err
	}

	reconciledToday, err := s.attempts.CountReconciledSince(startOfDay(time.Now()), &uploadID)
	if err != nil {
		return nil, err
	}

	out := &UploadStats{
		OverviewStats:   *overview,
		UploadID:        uploadID,
		ReconciledToday: reconciledToday,
	}
	if s.store != nil {
		snap, err := s.store.Status(ctx, jobstate.JobKindBulkReconcile, &uploadID)
		if err != nil {
			return nil, err
		}
		out.IsProcessing = snap.IsProcessing
	}
	return out, nil
}

// startOfDay is midnight in t's own location. Truncate on a duration works
// in UTC and would roll the day over at the wrong hour elsewhere.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func (s *StatsReporter) collect(uploadID *uint) (*OverviewStats, error) {
	pending, err := s.attempts.CountPending(uploadID)
	if err != nil {
		return nil, err
	}
	stale, err := s.attempts.CountPendingStale(staleAge, uploadID)
	if err != nil {
		return nil, err
	}
	never, err := s.attempts.CountNeverReconciled(neverReconciledAge, uploadID)
	if err != nil {
		return nil, err
	}
	maxed, err := s.attempts.CountMaxedOut(uploadID)
	if err != nil {
		return nil, err
	}

	return &OverviewStats{
		PendingTotal:     pending,
		PendingStale:     stale,
		NeverReconciled:  never,
		MaxedOutAttempts: maxed,
		Eligible:         pending - maxed,
	}, nil
}
