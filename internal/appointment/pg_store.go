package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/therapy-booking/internal/interval"
)

const uniqueViolation = "23505"

const appointmentColumns = `
	id, host_id, host_attended, participants, session_type_id, start_time, end_time, status,
	payment_method, payment_status, payment_expires_at, payment_amount, payment_customer_id, payment_method_id,
	cancel_reason, cancel_text, created_at, updated_at`

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a            Appointment
		reason, text *string
	)

	err := row.Scan(
		&a.ID,
		&a.HostID,
		&a.HostAttended,
		&a.Participants,
		&a.SessionTypeID,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&a.Payment.Method,
		&a.Payment.Status,
		&a.Payment.ExpiresAt,
		&a.Payment.Amount,
		&a.Payment.CustomerID,
		&a.Payment.PaymentMethodID,
		&reason,
		&text,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if reason != nil {
		a.Cancellation = &Cancellation{Reason: CancellationReason(*reason)}
		if text != nil {
			a.Cancellation.CustomText = *text
		}
	}
	return &a, nil
}

func cancelColumns(a *Appointment) (reason, text *string) {
	if a.Cancellation == nil {
		return nil, nil
	}
	r := string(a.Cancellation.Reason)
	reason = &r
	if a.Cancellation.CustomText != "" {
		t := a.Cancellation.CustomText
		text = &t
	}
	return reason, text
}

func bucketColumn(b Bucket) (string, error) {
	switch b {
	case BucketTemporarilyReserved:
		return "temporarily_reserved", nil
	case BucketBooked:
		return "booked", nil
	}
	return "", fmt.Errorf("unknown calendar bucket %q", b)
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("calendar bucket id %q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// Reader

func (s *PgStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (s *PgStore) GetCalendarDay(ctx context.Context, userID uuid.UUID, day time.Time) (*CalendarDay, error) {
	cd := &CalendarDay{UserID: userID, Day: day, TemporarilyReserved: []uuid.UUID{}, Booked: []uuid.UUID{}}

	var held, booked []string
	err := s.pool.QueryRow(ctx, `
		SELECT temporarily_reserved::text[], booked::text[]
		FROM calendar_days
		WHERE user_id = $1 AND day = $2
	`, userID, day).Scan(&held, &booked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cd, nil
		}
		return nil, fmt.Errorf("load calendar day: %w", err)
	}

	if cd.TemporarilyReserved, err = parseIDs(held); err != nil {
		return nil, err
	}
	if cd.Booked, err = parseIDs(booked); err != nil {
		return nil, err
	}
	return cd, nil
}

func (s *PgStore) ActiveHostRanges(ctx context.Context, hostID uuid.UUID, window interval.TimeRange) ([]interval.TimeRange, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM appointments
		WHERE host_id = $1
		  AND status IN ('temporarily-reserved', 'confirmed')
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`, hostID, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("load active host appointments: %w", err)
	}
	defer rows.Close()

	var out []interval.TimeRange
	for rows.Next() {
		var r interval.TimeRange
		if err := rows.Scan(&r.Start, &r.End); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// WithTx runs fn inside a read-committed transaction. Row locks taken by
// LockAppointment and the per-host advisory lock provide the isolation the
// coordinator relies on.
func (s *PgStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockHost(ctx context.Context, hostID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, hostID)
	if err != nil {
		return fmt.Errorf("lock host: %w", err)
	}
	return nil
}

func (t *pgTx) LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
	return scanAppointment(row)
}

func (t *pgTx) HasActiveOverlap(ctx context.Context, hostID uuid.UUID, r interval.TimeRange) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE host_id = $1
			  AND status IN ('temporarily-reserved', 'confirmed')
			  AND start_time < $3
			  AND end_time > $2
		)
	`, hostID, r.Start, r.End).Scan(&exists)
	return exists, err
}

func (t *pgTx) InsertAppointment(ctx context.Context, a *Appointment) error {
	reason, text := cancelColumns(a)
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		a.ID, a.HostID, a.HostAttended, a.Participants, a.SessionTypeID, a.StartTime, a.EndTime, a.Status,
		a.Payment.Method, a.Payment.Status, a.Payment.ExpiresAt, a.Payment.Amount, a.Payment.CustomerID, a.Payment.PaymentMethodID,
		reason, text, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrSlotUnavailable
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateAppointment(ctx context.Context, a *Appointment) error {
	reason, text := cancelColumns(a)
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET host_attended = $2,
		    participants = $3,
		    status = $4,
		    payment_method = $5,
		    payment_status = $6,
		    payment_expires_at = $7,
		    payment_customer_id = $8,
		    payment_method_id = $9,
		    cancel_reason = $10,
		    cancel_text = $11,
		    updated_at = $12
		WHERE id = $1
	`,
		a.ID, a.HostAttended, a.Participants, a.Status,
		a.Payment.Method, a.Payment.Status, a.Payment.ExpiresAt, a.Payment.CustomerID, a.Payment.PaymentMethodID,
		reason, text, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (t *pgTx) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (t *pgTx) AddToBucket(ctx context.Context, userID uuid.UUID, day time.Time, b Bucket, id uuid.UUID) error {
	col, err := bucketColumn(b)
	if err != nil {
		return err
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO calendar_days (user_id, day)
		VALUES ($1, $2)
		ON CONFLICT (user_id, day) DO NOTHING
	`, userID, day)
	if err != nil {
		return fmt.Errorf("ensure calendar day: %w", err)
	}

	_, err = t.tx.Exec(ctx, fmt.Sprintf(`
		UPDATE calendar_days
		SET %[1]s = array_append(%[1]s, $3::uuid)
		WHERE user_id = $1 AND day = $2
		  AND NOT ($3::uuid = ANY(%[1]s))
	`, col), userID, day, id)
	if err != nil {
		return fmt.Errorf("append to %s: %w", col, err)
	}
	return nil
}

func (t *pgTx) RemoveFromBucket(ctx context.Context, userID uuid.UUID, day time.Time, b Bucket, id uuid.UUID) error {
	col, err := bucketColumn(b)
	if err != nil {
		return err
	}

	_, err = t.tx.Exec(ctx, fmt.Sprintf(`
		UPDATE calendar_days
		SET %[1]s = array_remove(%[1]s, $3::uuid)
		WHERE user_id = $1 AND day = $2
	`, col), userID, day, id)
	if err != nil {
		return fmt.Errorf("remove from %s: %w", col, err)
	}

	_, err = t.tx.Exec(ctx, `
		DELETE FROM calendar_days
		WHERE user_id = $1 AND day = $2
		  AND cardinality(temporarily_reserved) = 0
		  AND cardinality(booked) = 0
	`, userID, day)
	if err != nil {
		return fmt.Errorf("prune calendar day: %w", err)
	}
	return nil
}
