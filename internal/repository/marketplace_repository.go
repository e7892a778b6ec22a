package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/apperror"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/models"
)

// MarketplaceRepository stores users, tasks and bids in Postgres.
type MarketplaceRepository struct {
	db *sql.DB
}

func NewMarketplaceRepository(db *sql.DB) *MarketplaceRepository {
	return &MarketplaceRepository{db: db}
}

func (r *MarketplaceRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(64) PRIMARY KEY,
			payout_account_id VARCHAR(255) NOT NULL DEFAULT '',
			payouts_enabled BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL,
			assigned_to VARCHAR(64) NOT NULL DEFAULT '',
			payment_intent_id VARCHAR(255) NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS bids (
			id VARCHAR(64) PRIMARY KEY,
			task_id VARCHAR(64) NOT NULL REFERENCES tasks(id),
			freelancer_id VARCHAR(64) NOT NULL,
			amount NUMERIC(14,2) NOT NULL,
			status VARCHAR(20) NOT NULL,
			payment_intent_id VARCHAR(255) NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bids_task ON bids(task_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bids_one_accepted ON bids(task_id) WHERE status = 'ACCEPTED'`,
		`CREATE INDEX IF NOT EXISTS idx_users_payout_account ON users(payout_account_id)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func (r *MarketplaceRepository) GetBid(ctx context.Context, bidID string) (*models.Bid, error) {
	var b models.Bid
	err := r.db.QueryRowContext(ctx, `
		SELECT id, task_id, freelancer_id, amount, status, payment_intent_id, created_at, updated_at
		FROM bids WHERE id = $1
	`, bidID).Scan(&b.ID, &b.TaskID, &b.FreelancerID, &b.Amount, &b.Status, &b.PaymentIntentID, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("bid %s not found", bidID)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *MarketplaceRepository) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	var t models.Task
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, status, assigned_to, payment_intent_id, created_at, updated_at
		FROM tasks WHERE id = $1
	`, taskID).Scan(&t.ID, &t.PosterID, &t.Title, &t.Status, &t.AssignedTo, &t.PaymentIntentID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("task %s not found", taskID)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *MarketplaceRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, payout_account_id, payouts_enabled FROM users WHERE id = $1
	`, userID).Scan(&u.ID, &u.PayoutAccountID, &u.PayoutsEnabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user %s not found", userID)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *MarketplaceRepository) AcceptBid(ctx context.Context, bidID string, from models.BidStatus, intentID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var taskID, freelancerID string
	err = tx.QueryRowContext(ctx, `
		UPDATE bids SET status = $1, payment_intent_id = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
		RETURNING task_id, freelancer_id
	`, models.BidAccepted, intentID, bidID, from).Scan(&taskID, &freelancerID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.Conflict("bid already processed")
	}
	if isUniqueViolation(err) {
		return apperror.Conflict("task already has an accepted bid")
	}
	if err != nil {
		return err
	}

	if err := assignTask(ctx, tx, taskID, freelancerID, intentID); err != nil {
		return err
	}
	if err := rejectSiblings(ctx, tx, taskID, bidID); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *MarketplaceRepository) ReassertAcceptance(ctx context.Context, bidID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var taskID, freelancerID, intentID string
	err = tx.QueryRowContext(ctx, `
		SELECT task_id, freelancer_id, payment_intent_id FROM bids
		WHERE id = $1 AND status = $2
		FOR UPDATE
	`, bidID, models.BidAccepted).Scan(&taskID, &freelancerID, &intentID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.Conflict("bid %s is no longer accepted", bidID)
	}
	if err != nil {
		return err
	}

	if err := assignTask(ctx, tx, taskID, freelancerID, intentID); err != nil {
		return err
	}
	if err := rejectSiblings(ctx, tx, taskID, bidID); err != nil {
		return err
	}

	return tx.Commit()
}

// assignTask is a no-op for a task already carrying the same assignment.
func assignTask(ctx context.Context, tx *sql.Tx, taskID, freelancerID, intentID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE tasks SET status = $1, assigned_to = $2, payment_intent_id = $3, updated_at = NOW()
		WHERE id = $4 AND NOT (status = $1 AND assigned_to = $2 AND payment_intent_id = $3)
	`, models.TaskInProgress, freelancerID, intentID, taskID)
	return err
}

func rejectSiblings(ctx context.Context, tx *sql.Tx, taskID, bidID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE bids SET status = $1, updated_at = NOW()
		WHERE task_id = $2 AND id <> $3 AND status = ANY($4)
	`, models.BidRejected, taskID, bidID, pq.Array([]string{string(models.BidPending), string(models.BidPaymentPending)}))
	return err
}

func (r *MarketplaceRepository) CloseAssignment(ctx context.Context, bidID string, bidFrom []models.BidStatus, bidStatus models.BidStatus, taskStatus models.TaskStatus) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var taskID, freelancerID, intentID string
	err = tx.QueryRowContext(ctx, `
		UPDATE bids SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = ANY($3)
		RETURNING task_id, freelancer_id, payment_intent_id
	`, bidStatus, bidID, pq.Array(bidStatusStrings(bidFrom))).Scan(&taskID, &freelancerID, &intentID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	clearAssignment := taskStatus == models.TaskOpen
	_, err = tx.ExecContext(ctx, `
		UPDATE tasks
		SET status = $1,
			assigned_to = CASE WHEN $2 THEN '' ELSE assigned_to END,
			payment_intent_id = CASE WHEN $2 THEN '' ELSE payment_intent_id END,
			updated_at = NOW()
		WHERE id = $3 AND assigned_to = $4 AND payment_intent_id = $5 AND status = $6
	`, taskStatus, clearAssignment, taskID, freelancerID, intentID, models.TaskInProgress)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

func (r *MarketplaceRepository) ResetBidToPending(ctx context.Context, bidID, intentID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bids SET status = $1, payment_intent_id = '', updated_at = NOW()
		WHERE id = $2 AND payment_intent_id = $3
	`, models.BidPending, bidID, intentID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

func (r *MarketplaceRepository) RevertTaskAssignment(ctx context.Context, taskID, freelancerID, intentID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET status = $1, assigned_to = '', payment_intent_id = '', updated_at = NOW()
		WHERE id = $2 AND status = $3 AND assigned_to = $4 AND payment_intent_id = $5
	`, models.TaskOpen, taskID, models.TaskInProgress, freelancerID, intentID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

func (r *MarketplaceRepository) SetPayoutStatus(ctx context.Context, payoutAccountID string, enabled bool) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET payouts_enabled = $1 WHERE payout_account_id = $2
	`, enabled, payoutAccountID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

func bidStatusStrings(statuses []models.BidStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
