package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/apperror"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/models"
)

const uniqueViolation = "23505"

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payments (
			id VARCHAR(64) PRIMARY KEY,
			task_id VARCHAR(64) NOT NULL,
			bid_id VARCHAR(64) NOT NULL,
			poster_id VARCHAR(64) NOT NULL,
			freelancer_id VARCHAR(64) NOT NULL,
			amount NUMERIC(14,2) NOT NULL,
			platform_fee NUMERIC(14,2) NOT NULL,
			freelancer_amount NUMERIC(14,2) NOT NULL,
			currency VARCHAR(8) NOT NULL,
			processor_intent_id VARCHAR(255) NOT NULL,
			processor_transfer_id VARCHAR(255) NOT NULL DEFAULT '',
			processor_refund_id VARCHAR(255) NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL,
			previous_status VARCHAR(20) NOT NULL DEFAULT '',
			refund_reason TEXT NOT NULL DEFAULT '',
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			CHECK (platform_fee + freelancer_amount = amount)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_active_bid ON payments(bid_id) WHERE status IN ('PENDING', 'HELD')`,
		`CREATE INDEX IF NOT EXISTS idx_payments_intent ON payments(processor_intent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status_created ON payments(status, created_at)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

const paymentColumns = `id, task_id, bid_id, poster_id, freelancer_id, amount, platform_fee, freelancer_amount,
	currency, processor_intent_id, processor_transfer_id, processor_refund_id, status, previous_status,
	refund_reason, metadata, created_at, updated_at`

func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO payments (id, task_id, bid_id, poster_id, freelancer_id, amount, platform_fee,
			freelancer_amount, currency, processor_intent_id, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, p.ID, p.TaskID, p.BidID, p.PosterID, p.FreelancerID, p.Amount, p.PlatformFee,
		p.FreelancerAmount, p.Currency, p.ProcessorIntentID, p.Status, meta, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return apperror.Conflict("payment already exists for bid %s", p.BidID)
	}
	return err
}

func (r *PaymentRepository) GetByID(ctx context.Context, paymentID string) (*models.Payment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, paymentID)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("payment %s not found", paymentID)
	}
	return p, err
}

func (r *PaymentRepository) ListByIntentID(ctx context.Context, intentID string) ([]*models.Payment, error) {
	return r.query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE processor_intent_id = $1 ORDER BY created_at`, intentID)
}

func (r *PaymentRepository) FindActiveByBidID(ctx context.Context, bidID string) (*models.Payment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE bid_id = $1 AND status = ANY($2)
		LIMIT 1
	`, bidID, pq.Array(statusStrings(models.ActivePaymentStatuses)))
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *PaymentRepository) TransitionStatus(ctx context.Context, paymentID string, from []models.PaymentStatus, to models.PaymentStatus, patch models.PaymentPatch) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $1,
			previous_status = status,
			processor_transfer_id = COALESCE(NULLIF($2, ''), processor_transfer_id),
			processor_refund_id = COALESCE(NULLIF($3, ''), processor_refund_id),
			refund_reason = COALESCE(NULLIF($4, ''), refund_reason),
			updated_at = NOW()
		WHERE id = $5 AND status = ANY($6)
	`, to, patch.ProcessorTransferID, patch.ProcessorRefundID, patch.RefundReason, paymentID, pq.Array(statusStrings(from)))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *PaymentRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*models.Payment, error) {
	return r.query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
		LIMIT $3
	`, models.PaymentPending, createdBefore, limit)
}

func (r *PaymentRepository) query(ctx context.Context, query string, args ...any) ([]*models.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var (
		p        models.Payment
		metadata []byte
	)
	err := row.Scan(&p.ID, &p.TaskID, &p.BidID, &p.PosterID, &p.FreelancerID, &p.Amount, &p.PlatformFee,
		&p.FreelancerAmount, &p.Currency, &p.ProcessorIntentID, &p.ProcessorTransferID, &p.ProcessorRefundID,
		&p.Status, &p.PreviousStatus, &p.RefundReason, &metadata, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("decode payment metadata: %w", err)
		}
	}
	return &p, nil
}

func statusStrings(statuses []models.PaymentStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
