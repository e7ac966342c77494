package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads audit_logs.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository returns a PGRepository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const selectRecords = `SELECT id, function_code, action, description, COALESCE(observation, ''), COALESCE(client_ip, ''), COALESCE(actor_id, ''), success, occurred_at FROM audit_logs`

// Window returns up to limit records starting at offset.
func (r *PGRepository) Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]Record, error) {
	where, args := filterClause(filters)
	args = append(args, limit, offset)
	query := fmt.Sprintf("%s%s ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d", selectRecords, where, len(args)-1, len(args))
	return r.query(ctx, query, args...)
}

// All returns every matching record.
func (r *PGRepository) All(ctx context.Context, filters TimelineFilters) ([]Record, error) {
	where, args := filterClause(filters)
	return r.query(ctx, selectRecords+where+" ORDER BY occurred_at DESC, id DESC", args...)
}

func (r *PGRepository) query(ctx context.Context, sql string, args ...any) ([]Record, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var rec Record
		err := row.Scan(&rec.ID, &rec.FunctionCode, &rec.Action, &rec.Description, &rec.Observation, &rec.ClientIP, &rec.ActorID, &rec.Success, &rec.OccurredAt)
		return rec, err
	})
}

func filterClause(f TimelineFilters) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at < $%d", f.To)
	}
	if v := strings.TrimSpace(f.Actor); v != "" {
		add("actor_id = $%d", v)
	}
	if v := strings.TrimSpace(f.Function); v != "" {
		add("function_code = $%d", v)
	}
	if v := strings.TrimSpace(f.Action); v != "" {
		add("action ILIKE '%%' || $%d || '%%'", v)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// LoaderRepository filters and pages records fetched in one call, for
// backends that only expose the full trail.
type LoaderRepository struct {
	Load func(ctx context.Context) ([]Record, error)
}

func (r LoaderRepository) Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]Record, error) {
	rows, err := r.All(ctx, filters)
	if err != nil {
		return nil, err
	}
	if offset >= len(rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end], nil
}

func (r LoaderRepository) All(ctx context.Context, filters TimelineFilters) ([]Record, error) {
	if r.Load == nil {
		return nil, nil
	}
	all, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(all))
	for _, rec := range all {
		if matches(rec, filters) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	return out, nil
}

func matches(rec Record, f TimelineFilters) bool {
	if !f.From.IsZero() && rec.OccurredAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !rec.OccurredAt.Before(f.To) {
		return false
	}
	if v := strings.TrimSpace(f.Actor); v != "" && rec.ActorID != v {
		return false
	}
	if v := strings.TrimSpace(f.Function); v != "" && rec.FunctionCode != v {
		return false
	}
	if v := strings.TrimSpace(f.Action); v != "" && !strings.Contains(strings.ToLower(rec.Action), strings.ToLower(v)) {
		return false
	}
	return true
}
