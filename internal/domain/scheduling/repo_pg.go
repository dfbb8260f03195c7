package scheduling

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hospital/booking/internal/domain/availability"
	"github.com/hospital/booking/internal/platform/db"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository { return &doctorRepoPG{pool: pool} }

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const doctorCols = `id, name, specialty, available_days, active`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	if err := row.Scan(&d.ID, &d.Name, &d.Specialty, &d.AvailableDays, &d.Active); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctors WHERE id = $1`, id))
	if db.IsNotFound(err) {
		return nil, ErrDoctorNotFound
	}
	return d, err
}

func (r *doctorRepoPG) List(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctors WHERE active`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count doctors: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+doctorCols+` FROM doctors WHERE active ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list doctors: %w", err)
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

// =========== Exception Repository ===========

type exceptionRepoPG struct{ pool *pgxpool.Pool }

func NewExceptionRepoPG(pool *pgxpool.Pool) ExceptionRepository { return &exceptionRepoPG{pool: pool} }

func (r *exceptionRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

var exceptionCols = []string{
	"id", "doctor_id", "exception_date::text",
	"to_char(start_time, 'HH24:MI')", "to_char(end_time, 'HH24:MI')",
	"reason", "created_at",
}

func scanException(row pgx.Row) (*DoctorException, error) {
	var (
		e          DoctorException
		start, end string
	)
	if err := row.Scan(&e.ID, &e.DoctorID, &e.Date, &start, &end, &e.Reason, &e.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if e.StartTime, err = availability.ParseTimeOfDay(start); err != nil {
		return nil, err
	}
	if e.EndTime, err = availability.ParseTimeOfDay(end); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *exceptionRepoPG) Create(ctx context.Context, e *DoctorException) error {
	e.ID = uuid.New()
	query, args, err := psql.Insert("doctor_exceptions").
		Columns("id", "doctor_id", "exception_date", "start_time", "end_time", "reason").
		Values(e.ID, e.DoctorID, sq.Expr("?::date", e.Date), sq.Expr("?::time", e.StartTime.String()),
			sq.Expr("?::time", e.EndTime.String()), e.Reason).
		Suffix("RETURNING created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert exception: %w", err)
	}
	if err := r.conn(ctx).QueryRow(ctx, query, args...).Scan(&e.CreatedAt); err != nil {
		if db.IsCode(err, db.CodeForeignKeyViolation) {
			return ErrDoctorNotFound
		}
		if db.IsCode(err, db.CodeCheckViolation) {
			return fmt.Errorf("%w: start_time must be before end_time", ErrValidation)
		}
		return fmt.Errorf("insert exception: %w", err)
	}
	return nil
}

func (r *exceptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*DoctorException, error) {
	query, args, err := psql.Select(exceptionCols...).From("doctor_exceptions").
		Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select exception: %w", err)
	}
	e, err := scanException(r.conn(ctx).QueryRow(ctx, query, args...))
	if db.IsNotFound(err) {
		return nil, ErrExceptionNotFound
	}
	return e, err
}

func (r *exceptionRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor_exceptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete exception: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExceptionNotFound
	}
	return nil
}

func exceptionWhere(f ExceptionFilter) sq.And {
	where := sq.And{}
	if f.DoctorID != nil {
		where = append(where, sq.Eq{"doctor_id": *f.DoctorID})
	}
	if f.From != nil {
		where = append(where, sq.Expr("exception_date >= ?::date", *f.From))
	}
	if f.To != nil {
		where = append(where, sq.Expr("exception_date <= ?::date", *f.To))
	}
	return where
}

func (r *exceptionRepoPG) List(ctx context.Context, f ExceptionFilter, limit, offset int) ([]*DoctorException, int, error) {
	where := exceptionWhere(f)

	countQuery, countArgs, err := psql.Select("COUNT(*)").From("doctor_exceptions").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count exceptions: %w", err)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count exceptions: %w", err)
	}

	query, args, err := psql.Select(exceptionCols...).From("doctor_exceptions").Where(where).
		OrderBy("exception_date ASC", "start_time ASC").
		Limit(uint64(limit)).Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list exceptions: %w", err)
	}
	items, err := r.query(ctx, query, args...)
	return items, total, err
}

func (r *exceptionRepoPG) ForDate(ctx context.Context, doctorID uuid.UUID, date string) ([]*DoctorException, error) {
	query, args, err := psql.Select(exceptionCols...).From("doctor_exceptions").
		Where(exceptionWhere(ExceptionFilter{DoctorID: &doctorID, From: &date, To: &date})).
		OrderBy("start_time ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build exceptions for date: %w", err)
	}
	return r.query(ctx, query, args...)
}

func (r *exceptionRepoPG) query(ctx context.Context, query string, args ...interface{}) ([]*DoctorException, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query exceptions: %w", err)
	}
	defer rows.Close()
	var items []*DoctorException
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

// =========== Slot State Repository ===========

type slotStateRepoPG struct{ pool *pgxpool.Pool }

// NewSlotStateRepoPG reads booked appointments as unavailable slot states.
func NewSlotStateRepoPG(pool *pgxpool.Pool) SlotStateRepository { return &slotStateRepoPG{pool: pool} }

func (r *slotStateRepoPG) GetAvailableSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]availability.SlotState, error) {
	query, args, err := psql.Select("to_char(appointment_time, 'HH24:MI')").From("appointments").
		Where(sq.Eq{"doctor_id": doctorID, "status": "booked"}).
		Where(sq.Expr("appointment_date = ?::date", date)).
		OrderBy("appointment_time ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build slot states: %w", err)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query slot states: %w", err)
	}
	defer rows.Close()
	var states []availability.SlotState
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, err
		}
		t, err := availability.ParseTimeOfDay(label)
		if err != nil {
			return nil, err
		}
		states = append(states, availability.SlotState{Time: t, IsAvailable: false})
	}
	return states, rows.Err()
}
