package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSink writes records into audit_logs.
type PGSink struct {
	pool *pgxpool.Pool
}

// NewPGSink returns a PGSink.
func NewPGSink(pool *pgxpool.Pool) *PGSink {
	return &PGSink{pool: pool}
}

// Write persists the record. A zero OccurredAt is stamped by the database.
func (s *PGSink) Write(ctx context.Context, rec Record) error {
	if s == nil || s.pool == nil {
		return errors.New("audit: pg sink not initialised")
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	var at *time.Time
	if !rec.OccurredAt.IsZero() {
		at = &rec.OccurredAt
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO audit_logs (id, function_code, action, description, observation, client_ip, actor_id, success, occurred_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, COALESCE($9, NOW()))
ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.FunctionCode, rec.Action, rec.Description, rec.Observation, rec.ClientIP, rec.ActorID, rec.Success, at)
	return err
}

// LogSink emits records as structured log lines.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Write(_ context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("audit",
		slog.String("id", rec.ID),
		slog.String("function", rec.FunctionCode),
		slog.String("action", rec.Action),
		slog.String("description", rec.Description),
		slog.String("observation", rec.Observation),
		slog.String("ip", rec.ClientIP),
		slog.String("actor", rec.ActorID),
		slog.Bool("success", rec.Success),
		slog.Time("occurred_at", rec.OccurredAt))
	return nil
}
