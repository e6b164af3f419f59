package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ponto.service/internal/core/model"
	"ponto.service/internal/core/protocol"
)

// PunchRepository is the concrete implementation for a PostgreSQL database.
type PunchRepository struct {
	DB *sql.DB
	// Location turns stored instants into calendar months.
	Location *time.Location
}

// NewPunchRepository create new instance
func NewPunchRepository(db *sql.DB, loc *time.Location) *PunchRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &PunchRepository{DB: db, Location: loc}
}

func tagEmployee(ctx context.Context, employeeID string) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("app.employeeId", employeeID))
}

// GetEmployee returns nil when the employee does not exist.
func (r *PunchRepository) GetEmployee(ctx context.Context, id string) (*model.Employee, error) {
	tagEmployee(ctx, id)

	e := &model.Employee{}
	query := `SELECT id, name, cpf, email FROM employees WHERE id = $1`
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&e.ID, &e.Name, &e.CPF, &e.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// GetUnit returns nil when the unit does not exist.
func (r *PunchRepository) GetUnit(ctx context.Context, id string) (*model.Unit, error) {
	var lat, lng, radius sql.NullFloat64
	u := &model.Unit{}

	query := `SELECT id, name, latitude, longitude, allowed_radius_meters FROM units WHERE id = $1`
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Name, &lat, &lng, &radius)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	u.Latitude = nullableFloat(lat)
	u.Longitude = nullableFloat(lng)
	u.AllowedRadiusMeters = nullableFloat(radius)
	return u, nil
}

// CreatePunch inserts the punch with both async jobs pending.
func (r *PunchRepository) CreatePunch(ctx context.Context, p *model.Punch) (int64, error) {
	tagEmployee(ctx, p.EmployeeID)

	var id int64
	query := `INSERT INTO punches (employee_id, unit_id, punch_type, punched_at, latitude, longitude,
	              accuracy_meters, selfie_ref, device_id, protocol,
	              payroll_status, payroll_retry_count, receipt_status, receipt_retry_count)
	          VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, $11, 0) RETURNING id`

	err := r.DB.QueryRowContext(ctx, query,
		p.EmployeeID, p.UnitID, p.Type, p.Timestamp.UTC(), p.Latitude, p.Longitude,
		p.AccuracyMeters, p.SelfieRef, p.DeviceID, p.Protocol, model.StatusPending,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

const punchColumns = `id, employee_id, COALESCE(unit_id, ''), punch_type, punched_at, latitude, longitude,
	accuracy_meters, selfie_ref, device_id, protocol,
	payroll_status, payroll_retry_count, receipt_status, receipt_retry_count`

type scanner interface {
	Scan(dest ...any) error
}

func scanPunch(s scanner) (*model.Punch, error) {
	var accuracy sql.NullFloat64
	p := &model.Punch{}
	err := s.Scan(&p.ID, &p.EmployeeID, &p.UnitID, &p.Type, &p.Timestamp, &p.Latitude, &p.Longitude,
		&accuracy, &p.SelfieRef, &p.DeviceID, &p.Protocol,
		&p.PayrollStatus, &p.PayrollRetryCount, &p.ReceiptStatus, &p.ReceiptRetryCount)
	if err != nil {
		return nil, err
	}
	p.AccuracyMeters = nullableFloat(accuracy)
	p.Timestamp = p.Timestamp.UTC()
	return p, nil
}

// GetPunch fetches a complete punches record by its ID.
func (r *PunchRepository) GetPunch(ctx context.Context, id int64) (*model.Punch, error) {
	query := `SELECT ` + punchColumns + ` FROM punches WHERE id = $1`
	p, err := scanPunch(r.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrPunchNotFound, id)
	}
	return p, err
}

func (r *PunchRepository) HasPunch(ctx context.Context, employeeID string, punchType model.PunchType, from, to time.Time) (bool, error) {
	tagEmployee(ctx, employeeID)

	var exists bool
	query := `SELECT EXISTS (
	              SELECT 1 FROM punches
	              WHERE employee_id = $1 AND punch_type = $2 AND punched_at >= $3 AND punched_at < $4)`
	err := r.DB.QueryRowContext(ctx, query, employeeID, punchType, from.UTC(), to.UTC()).Scan(&exists)
	return exists, err
}

func (r *PunchRepository) ListPunches(ctx context.Context, employeeID, unitID string, from, to time.Time) ([]model.Punch, error) {
	tagEmployee(ctx, employeeID)

	query := `SELECT ` + punchColumns + ` FROM punches
	          WHERE employee_id = $1 AND ($2 = '' OR unit_id = $2) AND punched_at >= $3 AND punched_at < $4
	          ORDER BY punched_at`

	rows, err := r.DB.QueryContext(ctx, query, employeeID, unitID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var punches []model.Punch
	for rows.Next() {
		p, err := scanPunch(rows)
		if err != nil {
			return nil, err
		}
		punches = append(punches, *p)
	}
	return punches, rows.Err()
}

// UpdatePayrollStatus updates the status and retry count for the payroll export job.
func (r *PunchRepository) UpdatePayrollStatus(ctx context.Context, id int64, status model.ProcessingStatus, retryCount int) error {
	query := `UPDATE punches
	          SET payroll_status = $1,
	              payroll_retry_count = $2
	          WHERE id = $3`
	_, err := r.DB.ExecContext(ctx, query, status, retryCount, id)
	return err
}

// UpdateReceiptStatus updates the status and retry count for the receipt e-mail job.
func (r *PunchRepository) UpdateReceiptStatus(ctx context.Context, id int64, status model.ProcessingStatus, retryCount int) error {
	query := `UPDATE punches SET receipt_status = $1, receipt_retry_count = $2 WHERE id = $3`
	_, err := r.DB.ExecContext(ctx, query, status, retryCount, id)
	return err
}

// SaveProtocolMapping stores hash -> tuple. Re-saving the same hash is a no-op.
func (r *PunchRepository) SaveProtocolMapping(ctx context.Context, hash string, t protocol.Tuple) error {
	query := `INSERT INTO protocol_tokens (hash, employee_id, unit_id, year_month)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (hash) DO NOTHING`
	_, err := r.DB.ExecContext(ctx, query, hash, t.EmployeeID, t.UnitID, t.YearMonth)
	return err
}

func (r *PunchRepository) FindProtocolMapping(ctx context.Context, hash string) (*protocol.Tuple, error) {
	t := &protocol.Tuple{}
	query := `SELECT employee_id, unit_id, year_month FROM protocol_tokens WHERE hash = $1`
	err := r.DB.QueryRowContext(ctx, query, hash).Scan(&t.EmployeeID, &t.UnitID, &t.YearMonth)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// FindTupleByPunchProtocol derives the tuple from a punch stamped with the hash.
func (r *PunchRepository) FindTupleByPunchProtocol(ctx context.Context, hash string) (*protocol.Tuple, error) {
	var punchedAt time.Time
	t := &protocol.Tuple{}

	query := `SELECT employee_id, COALESCE(unit_id, ''), punched_at FROM punches
	          WHERE protocol LIKE '%' || $1 || '%'
	          ORDER BY punched_at DESC
	          LIMIT 1`
	err := r.DB.QueryRowContext(ctx, query, hash).Scan(&t.EmployeeID, &t.UnitID, &punchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	t.YearMonth = punchedAt.In(r.Location).Format("2006-01")
	return t, nil
}

// ActivePairs lists the most recently active pairs first.
func (r *PunchRepository) ActivePairs(ctx context.Context, since time.Time, limit int) ([]protocol.Pair, error) {
	query := `SELECT employee_id, COALESCE(unit_id, '') AS unit
	          FROM punches
	          WHERE punched_at >= $1
	          GROUP BY employee_id, COALESCE(unit_id, '')
	          ORDER BY MAX(punched_at) DESC
	          LIMIT $2`

	rows, err := r.DB.QueryContext(ctx, query, since.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []protocol.Pair
	for rows.Next() {
		var p protocol.Pair
		if err := rows.Scan(&p.EmployeeID, &p.UnitID); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

func (r *PunchRepository) EmployeeIDs(ctx context.Context, limit int) ([]string, error) {
	return r.ids(ctx, `SELECT id FROM employees ORDER BY id LIMIT $1`, limit)
}

func (r *PunchRepository) UnitIDs(ctx context.Context, limit int) ([]string, error) {
	return r.ids(ctx, `SELECT id FROM units ORDER BY id LIMIT $1`, limit)
}

func (r *PunchRepository) ids(ctx context.Context, query string, limit int) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
