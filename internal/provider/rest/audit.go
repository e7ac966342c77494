package rest

import (
	"context"
	"net/http"

	"github.com/odyssey-erp/security-console/internal/audit"
)

// ListAudits returns the full audit trail.
func (c *Client) ListAudits(ctx context.Context) ([]audit.Record, error) {
	var records []audit.Record
	err := c.do(ctx, http.MethodGet, "/api/audit", nil, &records, http.StatusOK)
	return records, err
}

// AuditSink posts records to the backend's audit endpoint.
type AuditSink struct {
	Client *Client
}

func (s AuditSink) Write(ctx context.Context, rec audit.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	return s.Client.do(ctx, http.MethodPost, "/api/audit", rec, nil, http.StatusCreated, http.StatusOK)
}
