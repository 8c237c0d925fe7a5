package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Campaign run lifecycle states persisted alongside the in-memory tracker.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

type CampaignRun struct {
	RunID       string          `db:"run_id"`
	UserID      uuid.UUID       `db:"user_id"`
	Status      string          `db:"status"`
	Input       json.RawMessage `db:"input"`
	Result      json.RawMessage `db:"result"`
	CreatedAt   time.Time       `db:"created_at"`
	CompletedAt sql.NullTime    `db:"completed_at"`
}

const sqlCreateCampaignRun = `
INSERT INTO campaign_runs (run_id, user_id, status, input)
VALUES ($1, $2, $3, $4)
RETURNING run_id, user_id, status, input, result, created_at, completed_at
`

func (s *Store) CreateCampaignRun(ctx context.Context, runID string, userID uuid.UUID, input json.RawMessage) (CampaignRun, error) {
	var run CampaignRun
	err := s.db.GetContext(ctx, &run, sqlCreateCampaignRun, runID, userID, RunStatusRunning, input)
	if err != nil {
		s.logger.Error(ctx, "failed to create campaign run", err)
		return CampaignRun{}, fmt.Errorf("failed to create campaign run: %w", err)
	}
	return run, nil
}

const sqlFinishCampaignRun = `
UPDATE campaign_runs
SET status = $2,
    result = $3,
    completed_at = NOW()
WHERE run_id = $1
RETURNING run_id, user_id, status, input, result, created_at, completed_at
`

// FinishCampaignRun records the terminal status of a run. Result may be nil
// for failed or cancelled runs.
func (s *Store) FinishCampaignRun(ctx context.Context, runID string, status string, result json.RawMessage) (CampaignRun, error) {
	var run CampaignRun
	err := s.db.GetContext(ctx, &run, sqlFinishCampaignRun, runID, status, result)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CampaignRun{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to finish campaign run", err)
		return CampaignRun{}, fmt.Errorf("failed to finish campaign run: %w", err)
	}
	return run, nil
}

const sqlGetCampaignRun = `
SELECT
    run_id,
    user_id,
    status,
    input,
    result,
    created_at,
    completed_at
FROM campaign_runs
WHERE run_id = $1 AND user_id = $2
`

func (s *Store) GetCampaignRun(ctx context.Context, runID string, userID uuid.UUID) (CampaignRun, error) {
	var run CampaignRun
	err := s.db.GetContext(ctx, &run, sqlGetCampaignRun, runID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CampaignRun{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get campaign run", err)
		return CampaignRun{}, fmt.Errorf("failed to get campaign run: %w", err)
	}
	return run, nil
}

const sqlListCampaignRuns = `
SELECT
    run_id,
    user_id,
    status,
    input,
    result,
    created_at,
    completed_at
FROM campaign_runs
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`

func (s *Store) ListCampaignRuns(ctx context.Context, userID uuid.UUID, limit int) ([]CampaignRun, error) {
	runs := []CampaignRun{}
	err := s.db.SelectContext(ctx, &runs, sqlListCampaignRuns, userID, limit)
	if err != nil {
		s.logger.Error(ctx, "failed to list campaign runs", err)
		return nil, fmt.Errorf("failed to list campaign runs: %w", err)
	}
	return runs, nil
}
