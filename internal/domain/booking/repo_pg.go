package booking

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hospital/booking/internal/domain/availability"
	"github.com/hospital/booking/internal/platform/db"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// =========== Challenge Store ===========

type challengeStorePG struct{ pool *pgxpool.Pool }

func NewChallengeStorePG(pool *pgxpool.Pool) ChallengeStore { return &challengeStorePG{pool: pool} }

func (r *challengeStorePG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *challengeStorePG) Create(ctx context.Context, c *Challenge) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		_, err := r.conn(ctx).Exec(ctx, `
			UPDATE otp_challenges SET superseded_at = $2
			WHERE phone_number = $1 AND NOT is_verified AND superseded_at IS NULL`,
			c.Phone, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("supersede challenges: %w", err)
		}
		query, args, err := psql.Insert("otp_challenges").
			Columns("id", "phone_number", "otp_code", "created_at", "expires_at").
			Values(c.ID, c.Phone, c.Code, c.CreatedAt, c.ExpiresAt).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert challenge: %w", err)
		}
		if _, err := r.conn(ctx).Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert challenge: %w", err)
		}
		return nil
	})
}

// liveChallengeSQL locks the newest live row for a phone. A concurrent
// verifier blocks on the lock and then re-evaluates the predicate, so a row
// consumed or retired meanwhile is not returned twice.
const liveChallengeSQL = `
SELECT id, phone_number, otp_code, created_at, expires_at, attempts
FROM otp_challenges
WHERE phone_number = $1 AND NOT is_verified AND superseded_at IS NULL AND expires_at > $2
ORDER BY created_at DESC
LIMIT 1
FOR UPDATE`

func (r *challengeStorePG) Verify(ctx context.Context, phone, code string, now time.Time) (*Challenge, error) {
	var (
		c      Challenge
		missed bool
	)
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		err := r.conn(ctx).QueryRow(ctx, liveChallengeSQL, phone, now).
			Scan(&c.ID, &c.Phone, &c.Code, &c.CreatedAt, &c.ExpiresAt, &c.Attempts)
		if db.IsNotFound(err) {
			return ErrNoActiveChallenge
		}
		if err != nil {
			return fmt.Errorf("load challenge: %w", err)
		}

		if !c.Matches(code) {
			c.miss(now)
			if _, err := r.conn(ctx).Exec(ctx,
				`UPDATE otp_challenges SET attempts = $2, superseded_at = $3 WHERE id = $1`,
				c.ID, c.Attempts, c.SupersededAt); err != nil {
				return fmt.Errorf("record otp miss: %w", err)
			}
			// Commit the miss; the caller still sees a rejection.
			missed = true
			return nil
		}

		if _, err := r.conn(ctx).Exec(ctx,
			`UPDATE otp_challenges SET is_verified = TRUE, verified_at = $2 WHERE id = $1`,
			c.ID, now); err != nil {
			return fmt.Errorf("mark challenge verified: %w", err)
		}
		c.Verified = true
		c.VerifiedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if missed {
		return nil, ErrNoActiveChallenge
	}
	return &c, nil
}

func (r *challengeStorePG) Invalidate(ctx context.Context, c *Challenge, now time.Time) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE otp_challenges SET superseded_at = $2 WHERE id = $1 AND superseded_at IS NULL`, c.ID, now)
	if err != nil {
		return fmt.Errorf("invalidate challenge: %w", err)
	}
	return nil
}

func (r *challengeStorePG) Purge(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM otp_challenges WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge challenges: %w", err)
	}
	return tag.RowsAffected(), nil
}

// =========== Appointment Store ===========

type appointmentStorePG struct{ pool *pgxpool.Pool }

func NewAppointmentStorePG(pool *pgxpool.Pool) AppointmentStore {
	return &appointmentStorePG{pool: pool}
}

func (r *appointmentStorePG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

var appointmentCols = []string{
	"a.id", "a.patient_id", "a.doctor_id", "d.name", "a.patient_name", "a.patient_phone",
	"a.appointment_date::text", "to_char(a.appointment_time, 'HH24:MI')",
	"a.email", "a.age", "a.gender", "a.reason", "a.status", "a.created_at",
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a     Appointment
		clock string
	)
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.DoctorName, &a.PatientName, &a.Phone,
		&a.Date, &clock, &a.Email, &a.Age, &a.Gender, &a.Reason, &a.Status, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if a.Time, err = availability.ParseTimeOfDay(clock); err != nil {
		return nil, err
	}
	return &a, nil
}

// Book serialises bookings per doctor with a row lock, re-applies the
// availability rules and relies on the partial unique index for double
// bookings that slip past the lock.
func (r *appointmentStorePG) Book(ctx context.Context, req *BookRequest) (*Appointment, error) {
	var appt *Appointment
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		var (
			name   string
			days   []string
			active bool
		)
		err := r.conn(ctx).QueryRow(ctx,
			`SELECT name, available_days, active FROM doctors WHERE id = $1 FOR UPDATE`, req.DoctorID).
			Scan(&name, &days, &active)
		if db.IsNotFound(err) {
			return ErrDoctorNotFound
		}
		if err != nil {
			return fmt.Errorf("lock doctor: %w", err)
		}
		if !active || !availability.WorksOn(days, req.Date) {
			return fmt.Errorf("%w: doctor does not consult on %s", ErrSlotUnavailable, req.Date.Weekday())
		}
		if _, ok := availability.WindowOf(req.Date.Weekday(), req.Time); !ok {
			return fmt.Errorf("%w: %s is outside consulting hours", ErrSlotUnavailable, req.Time)
		}

		exceptions, err := r.exceptionsFor(ctx, req)
		if err != nil {
			return err
		}
		if availability.Blocked(exceptions, req.Date, req.Time) {
			return fmt.Errorf("%w: doctor unavailable at %s", ErrSlotUnavailable, req.Time)
		}

		var seq int64
		if err := r.conn(ctx).QueryRow(ctx, `SELECT nextval('patient_id_seq')`).Scan(&seq); err != nil {
			return fmt.Errorf("next patient id: %w", err)
		}

		appt = &Appointment{
			PatientID:   PatientID(req.Date, seq),
			DoctorID:    req.DoctorID,
			DoctorName:  name,
			PatientName: req.PatientName,
			Phone:       req.Phone,
			Date:        req.DateString(),
			Time:        req.Time,
			Email:       req.Email,
			Age:         req.Age,
			Gender:      req.Gender,
			Reason:      req.Reason,
			Status:      StatusBooked,
		}
		query, args, err := psql.Insert("appointments").
			Columns("patient_id", "doctor_id", "patient_name", "patient_phone",
				"appointment_date", "appointment_time", "email", "age", "gender", "reason", "status").
			Values(appt.PatientID, appt.DoctorID, appt.PatientName, appt.Phone,
				sq.Expr("?::date", appt.Date), sq.Expr("?::time", appt.Time.String()),
				appt.Email, appt.Age, appt.Gender, appt.Reason, appt.Status).
			Suffix("RETURNING id, created_at").
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert appointment: %w", err)
		}
		err = r.conn(ctx).QueryRow(ctx, query, args...).Scan(&appt.ID, &appt.CreatedAt)
		switch {
		case db.IsCode(err, db.CodeUniqueViolation):
			return fmt.Errorf("%w: slot already booked", ErrSlotUnavailable)
		case db.IsCode(err, db.CodeForeignKeyViolation):
			return ErrDoctorNotFound
		case err != nil:
			return fmt.Errorf("insert appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appt, nil
}

func (r *appointmentStorePG) exceptionsFor(ctx context.Context, req *BookRequest) ([]availability.Exception, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI')
		FROM doctor_exceptions WHERE doctor_id = $1 AND exception_date = $2::date`,
		req.DoctorID, req.DateString())
	if err != nil {
		return nil, fmt.Errorf("query exceptions: %w", err)
	}
	defer rows.Close()
	var out []availability.Exception
	for rows.Next() {
		var start, end string
		if err := rows.Scan(&start, &end); err != nil {
			return nil, err
		}
		e := availability.Exception{Date: req.Date}
		if e.Start, err = availability.ParseTimeOfDay(start); err != nil {
			return nil, err
		}
		if e.End, err = availability.ParseTimeOfDay(end); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *appointmentStorePG) GetByPatientID(ctx context.Context, patientID string) (*Appointment, error) {
	query, args, err := psql.Select(appointmentCols...).
		From("appointments a").Join("doctors d ON d.id = a.doctor_id").
		Where(sq.Eq{"a.patient_id": patientID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select appointment: %w", err)
	}
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, query, args...))
	if db.IsNotFound(err) {
		return nil, ErrNotFound
	}
	return a, err
}
