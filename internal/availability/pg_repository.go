package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/therapy-booking/internal/interval"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) LoadSettings(ctx context.Context, hostID uuid.UUID) (Settings, error) {
	var (
		step     int
		tz       string
		clampEnd bool
	)
	err := r.pool.QueryRow(ctx, `
		SELECT slot_interval_minutes, timezone, enforce_range_end
		FROM availability_settings
		WHERE host_id = $1
	`, hostID).Scan(&step, &tz, &clampEnd)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Settings{}, ErrProviderNotFound
		}
		return Settings{}, fmt.Errorf("load availability settings: %w", err)
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Settings{}, fmt.Errorf("provider %s timezone %q: %w", hostID, tz, err)
	}

	return Settings{SlotIntervalMinutes: step, Location: loc, EnforceRangeEnd: clampEnd}, nil
}

func (r *PgRepository) LoadRules(ctx context.Context, hostID uuid.UUID, window interval.TimeRange) (Rules, error) {
	var rules Rules

	recurring, err := r.loadRecurring(ctx, hostID)
	if err != nil {
		return Rules{}, err
	}
	rules.Recurring = recurring

	overrides, err := r.loadOverrides(ctx, hostID, window)
	if err != nil {
		return Rules{}, err
	}
	rules.Overrides = overrides

	blocked, err := r.loadBlocked(ctx, hostID, window)
	if err != nil {
		return Rules{}, err
	}
	rules.Blocked = blocked

	return rules, nil
}

func (r *PgRepository) loadRecurring(ctx context.Context, hostID uuid.UUID) ([]RecurringRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, start_minute, end_minute
		FROM recurring_rules
		WHERE host_id = $1
		ORDER BY weekday, start_minute
	`, hostID)
	if err != nil {
		return nil, fmt.Errorf("load recurring rules: %w", err)
	}
	defer rows.Close()

	byDay := make(map[time.Weekday]*RecurringRule)
	var order []time.Weekday
	for rows.Next() {
		var day, start, end int
		if err := rows.Scan(&day, &start, &end); err != nil {
			return nil, err
		}
		wd := time.Weekday(day)
		rule, ok := byDay[wd]
		if !ok {
			rule = &RecurringRule{Weekday: wd}
			byDay[wd] = rule
			order = append(order, wd)
		}
		rule.Ranges = append(rule.Ranges, DailyRange{
			Start: WallClockFromMinutes(start),
			End:   WallClockFromMinutes(end),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]RecurringRule, 0, len(order))
	for _, wd := range order {
		out = append(out, *byDay[wd])
	}
	return out, nil
}

func (r *PgRepository) loadOverrides(ctx context.Context, hostID uuid.UUID, window interval.TimeRange) ([]DateOverride, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT override_date, start_time, end_time
		FROM date_overrides
		WHERE host_id = $1
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY override_date, start_time
	`, hostID, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("load date overrides: %w", err)
	}
	defer rows.Close()

	var out []DateOverride
	for rows.Next() {
		var (
			day        time.Time
			start, end time.Time
		)
		if err := rows.Scan(&day, &start, &end); err != nil {
			return nil, err
		}
		tr := interval.TimeRange{Start: start, End: end}
		if n := len(out); n > 0 && out[n-1].Date.Equal(day) {
			out[n-1].Ranges = append(out[n-1].Ranges, tr)
			continue
		}
		out = append(out, DateOverride{Date: day, Ranges: []interval.TimeRange{tr}})
	}
	return out, rows.Err()
}

func (r *PgRepository) loadBlocked(ctx context.Context, hostID uuid.UUID, window interval.TimeRange) ([]interval.TimeRange, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM blocked_ranges
		WHERE host_id = $1
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`, hostID, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("load blocked ranges: %w", err)
	}
	defer rows.Close()

	var out []interval.TimeRange
	for rows.Next() {
		var tr interval.TimeRange
		if err := rows.Scan(&tr.Start, &tr.End); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}
