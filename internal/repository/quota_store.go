package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/citasalud/agenda/internal/model"
	"github.com/citasalud/agenda/internal/scheduling"
)

const dateLayout = "2006-01-02"

// DeleteDayQuotas removes the window's entire plan.  Re-planning
// always starts from a clean slate.
func (t *storeTx) DeleteDayQuotas(ctx context.Context, windowID uint64) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM availability_distribution WHERE availability_id = ?`, windowID)
	if err != nil {
		return 0, fmt.Errorf("delete day quotas for availability %d: %w", windowID, err)
	}
	return res.RowsAffected()
}

// CountQuotasWithProgress counts plan rows that already have
// assignments, so the planner can warn before discarding them.
func (t *storeTx) CountQuotasWithProgress(ctx context.Context, windowID uint64) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM availability_distribution WHERE availability_id = ? AND assigned > 0`,
		windowID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count assigned quotas for availability %d: %w", windowID, err)
	}
	return n, nil
}

// InsertDayQuotas bulk-inserts a fresh plan in a single statement.
func (t *storeTx) InsertDayQuotas(ctx context.Context, rows []model.DayQuota) error {
	if len(rows) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO availability_distribution (availability_id, day_date, quota, assigned) VALUES `)
	args := make([]interface{}, 0, len(rows)*4)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?)")
		args = append(args, r.AvailabilityID, r.Date.Format(dateLayout), r.Quota, r.Assigned)
	}
	if _, err := t.tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert day quotas: %w", err)
	}
	return nil
}

func scanQuotaRows(rows rowScanner) ([]model.DayQuota, error) {
	var out []model.DayQuota
	for rows.Next() {
		var q model.DayQuota
		if err := rows.Scan(&q.ID, &q.AvailabilityID, &q.Date, &q.Quota, &q.Assigned); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// rowScanner is the subset of *sql.Rows the scan helpers need.
type rowScanner interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// PastSurplusForUpdate locks and returns quota rows dated before the
// given day that still carry unassigned quota, oldest first.
func (t *storeTx) PastSurplusForUpdate(ctx context.Context, windowID uint64, before time.Time) ([]model.DayQuota, error) {
	const q = `SELECT id, availability_id, day_date, quota, assigned
	           FROM availability_distribution
	           WHERE availability_id = ? AND day_date < ? AND quota - assigned > 0
	           ORDER BY day_date ASC
	           FOR UPDATE`
	rows, err := t.tx.QueryContext(ctx, q, windowID, before.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("load past surplus for availability %d: %w", windowID, err)
	}
	defer rows.Close()
	return scanQuotaRows(rows)
}

// QuotasInRangeForUpdate locks and returns the window's quota rows
// with from <= date <= to, in date order.
func (t *storeTx) QuotasInRangeForUpdate(ctx context.Context, windowID uint64, from, to time.Time) ([]model.DayQuota, error) {
	const q = `SELECT id, availability_id, day_date, quota, assigned
	           FROM availability_distribution
	           WHERE availability_id = ? AND day_date >= ? AND day_date <= ?
	           ORDER BY day_date ASC
	           FOR UPDATE`
	rows, err := t.tx.QueryContext(ctx, q, windowID, from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("load quota range for availability %d: %w", windowID, err)
	}
	defer rows.Close()
	return scanQuotaRows(rows)
}

// AddQuota grows a quota row; used only by redistribution.
func (t *storeTx) AddQuota(ctx context.Context, quotaID uint64, delta int) error {
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE availability_distribution SET quota = quota + ? WHERE id = ?`, delta, quotaID); err != nil {
		return fmt.Errorf("add quota to row %d: %w", quotaID, err)
	}
	return nil
}

// CollapseQuota discards a past row's surplus, keeping the historical
// assigned count.
func (t *storeTx) CollapseQuota(ctx context.Context, quotaID uint64) error {
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE availability_distribution SET quota = assigned WHERE id = ?`, quotaID); err != nil {
		return fmt.Errorf("collapse quota row %d: %w", quotaID, err)
	}
	return nil
}

// IncrementAssigned consumes one unit of a quota row.  The guard in
// the WHERE clause keeps assigned <= quota even if the caller's view
// of the row was stale.
func (t *storeTx) IncrementAssigned(ctx context.Context, quotaID uint64) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE availability_distribution SET assigned = assigned + 1 WHERE id = ? AND assigned < quota`,
		quotaID)
	if err != nil {
		return fmt.Errorf("increment assigned on row %d: %w", quotaID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("quota row %d has no remaining quota: %w", quotaID, scheduling.ErrConflict)
	}
	return nil
}

// DayQuotas returns the window's plan in date order, for listings.
func (s *Store) DayQuotas(ctx context.Context, windowID uint64) ([]model.DayQuota, error) {
	const q = `SELECT id, availability_id, day_date, quota, assigned
	           FROM availability_distribution
	           WHERE availability_id = ?
	           ORDER BY day_date ASC`
	rows, err := s.db.QueryContext(ctx, q, windowID)
	if err != nil {
		return nil, fmt.Errorf("list day quotas for availability %d: %w", windowID, err)
	}
	defer rows.Close()
	return scanQuotaRows(rows)
}
