package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/security-console/internal/audit"
	jobmetrics "github.com/odyssey-erp/security-console/internal/jobs"
)

const (
	// QueueAudit carries audit records to the sink.
	QueueAudit = "audit"
	// TaskAuditRecord writes one audit record.
	TaskAuditRecord = "audit:record"
)

// NewAuditRecordTask builds the task persisting rec. The record id doubles as
// the task id so a record is never queued twice.
func NewAuditRecordTask(rec audit.Record) (*asynq.Task, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, body,
		asynq.Queue(QueueAudit),
		asynq.TaskID(rec.ID),
		asynq.MaxRetry(10),
	), nil
}

// AuditRecordJob writes queued audit records to a sink.
type AuditRecordJob struct {
	sink    audit.Sink
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewAuditRecordJob constructs the job handler.
func NewAuditRecordJob(sink audit.Sink, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditRecordJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditRecordJob{sink: sink, logger: logger, metrics: metrics}
}

// Handle processes TaskAuditRecord tasks. Malformed payloads are not retried;
// sink failures are.
func (j *AuditRecordJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track(TaskAuditRecord)
	var rec audit.Record
	if err := json.Unmarshal(t.Payload(), &rec); err != nil {
		j.logger.Error("decode audit task", slog.Any("error", err))
		return tracker.End(fmt.Errorf("jobs: decode audit record: %v: %w", err, asynq.SkipRetry))
	}
	if err := rec.Validate(); err != nil {
		j.logger.Error("invalid audit record", slog.String("id", rec.ID), slog.Any("error", err))
		return tracker.End(fmt.Errorf("jobs: %v: %w", err, asynq.SkipRetry))
	}
	if err := j.sink.Write(ctx, rec); err != nil {
		j.logger.Warn("write audit record", slog.String("id", rec.ID), slog.Any("error", err))
		return tracker.End(fmt.Errorf("jobs: write audit record %s: %w", rec.ID, err))
	}
	return tracker.End(nil)
}
