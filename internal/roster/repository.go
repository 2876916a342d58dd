package roster

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dajobrague/au-call-system-sub004/internal/phone"
)

type db interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository reads and writes provider, employee, patient and template rows.
// Every query is provider-scoped; callers never see another tenant's data.
type Repository struct {
	db db
}

// NewRepository creates a repository backed by pgx.
func NewRepository(db db) *Repository {
	if db == nil {
		panic("roster: db required")
	}
	return &Repository{db: db}
}

const providerColumns = `id, name, phone_number, timezone, transfer_number, ivr_greeting,
		on_call_start, on_call_end, outbound_enabled, outbound_wait_minutes,
		outbound_max_rounds, outbound_message_template, wave_sms_template,
		wave2_delay_minutes, wave3_delay_minutes, admin_email`

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(
		&p.ID, &p.Name, &p.PhoneNumber, &p.Timezone, &p.TransferNumber, &p.IVRGreeting,
		&p.OnCallStart, &p.OnCallEnd, &p.Outbound.Enabled, &p.Outbound.WaitMinutes,
		&p.Outbound.MaxRounds, &p.Outbound.MessageTemplate, &p.WaveSMSTemplate,
		&p.Wave2DelayMinutes, &p.Wave3DelayMinutes, &p.AdminEmail,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProvider fetches a provider by id.
func (r *Repository) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.db.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = $1`, id)
	p, err := scanProvider(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, backendErr("get provider", err)
	}
	return p, nil
}

// GetProviderByNumber resolves the provider that owns the dialled phone number.
func (r *Repository) GetProviderByNumber(ctx context.Context, number string) (*Provider, error) {
	normalized, err := phone.Normalize(number)
	if err != nil {
		return nil, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE phone_number = $1`, normalized)
	p, scanErr := scanProvider(row)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, backendErr("get provider by number", scanErr)
	}
	return p, nil
}

const employeeColumns = `id, provider_id, display_name, phone, alt_phone, pin, active, outbound_opt_in`

func scanEmployee(row pgx.Row) (*Employee, error) {
	var e Employee
	err := row.Scan(&e.ID, &e.ProviderID, &e.DisplayName, &e.Phone, &e.AltPhone, &e.PIN, &e.Active, &e.OutboundOptIn)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// FindEmployeeByPhone matches an active employee by caller id within the provider.
// The primary number is checked first, then the alternate.
func (r *Repository) FindEmployeeByPhone(ctx context.Context, providerID uuid.UUID, callerPhone string) (*Employee, error) {
	normalized, err := phone.Normalize(callerPhone)
	if err != nil {
		return nil, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `
		SELECT `+employeeColumns+`
		FROM employees
		WHERE provider_id = $1 AND active AND (phone = $2 OR alt_phone = $2)
		ORDER BY (phone = $2) DESC
		LIMIT 1`,
		providerID, normalized)
	e, scanErr := scanEmployee(row)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, backendErr("find employee by phone", scanErr)
	}
	return e, nil
}

// FindEmployeeByPin matches an active employee by their 4-digit PIN within the
// provider. PINs are unique per provider, but older data may violate that; in
// that case the first active match is returned and ambiguous is true.
func (r *Repository) FindEmployeeByPin(ctx context.Context, providerID uuid.UUID, pin string) (emp *Employee, ambiguous bool, err error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+employeeColumns+`
		FROM employees
		WHERE provider_id = $1 AND active AND pin = $2
		ORDER BY created_at
		LIMIT 2`,
		providerID, pin)
	if err != nil {
		return nil, false, backendErr("find employee by pin", err)
	}
	defer rows.Close()

	var matches []*Employee
	for rows.Next() {
		var e Employee
		if scanErr := rows.Scan(&e.ID, &e.ProviderID, &e.DisplayName, &e.Phone, &e.AltPhone, &e.PIN, &e.Active, &e.OutboundOptIn); scanErr != nil {
			return nil, false, backendErr("scan employee", scanErr)
		}
		matches = append(matches, &e)
	}
	if rows.Err() != nil {
		return nil, false, backendErr("find employee by pin", rows.Err())
	}
	if len(matches) == 0 {
		return nil, false, ErrNotFound
	}
	return matches[0], len(matches) > 1, nil
}

// ListProvidersForPhone returns every provider with an active employee record
// matching the caller's number. Used to drive the provider-select menu when
// one person works for more than one provider.
func (r *Repository) ListProvidersForPhone(ctx context.Context, callerPhone string) ([]Provider, error) {
	normalized, err := phone.Normalize(callerPhone)
	if err != nil {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+providerColumns+`
		FROM providers p
		WHERE EXISTS (
			SELECT 1 FROM employees e
			WHERE e.provider_id = p.id AND e.active AND (e.phone = $1 OR e.alt_phone = $1)
		)
		ORDER BY p.name`,
		normalized)
	if err != nil {
		return nil, backendErr("list providers for phone", err)
	}
	defer rows.Close()

	var providers []Provider
	for rows.Next() {
		var p Provider
		if scanErr := rows.Scan(
			&p.ID, &p.Name, &p.PhoneNumber, &p.Timezone, &p.TransferNumber, &p.IVRGreeting,
			&p.OnCallStart, &p.OnCallEnd, &p.Outbound.Enabled, &p.Outbound.WaitMinutes,
			&p.Outbound.MaxRounds, &p.Outbound.MessageTemplate, &p.WaveSMSTemplate,
			&p.Wave2DelayMinutes, &p.Wave3DelayMinutes, &p.AdminEmail,
		); scanErr != nil {
			return nil, backendErr("scan provider", scanErr)
		}
		providers = append(providers, p)
	}
	if rows.Err() != nil {
		return nil, backendErr("list providers for phone", rows.Err())
	}
	return providers, nil
}

// GetEmployee fetches an employee by id within the provider.
func (r *Repository) GetEmployee(ctx context.Context, providerID, employeeID uuid.UUID) (*Employee, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+employeeColumns+`
		FROM employees
		WHERE provider_id = $1 AND id = $2`,
		providerID, employeeID)
	e, err := scanEmployee(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, backendErr("get employee", err)
	}
	return e, nil
}

// FindShiftTemplate looks up a template by spoken job code, case-insensitively.
func (r *Repository) FindShiftTemplate(ctx context.Context, providerID uuid.UUID, jobCode string) (*ShiftTemplate, error) {
	code := strings.ToUpper(strings.TrimSpace(jobCode))
	if code == "" {
		return nil, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `
		SELECT id, provider_id, patient_id, default_employee_id, job_code, day_start, day_end
		FROM shift_templates
		WHERE provider_id = $1 AND UPPER(job_code) = $2`,
		providerID, code)
	var t ShiftTemplate
	err := row.Scan(&t.ID, &t.ProviderID, &t.PatientID, &t.DefaultEmployeeID, &t.JobCode, &t.DayStart, &t.DayEnd)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, backendErr("find shift template", err)
	}
	return &t, nil
}

// GetPatient fetches a patient with their ordered staff pool.
func (r *Repository) GetPatient(ctx context.Context, providerID, patientID uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, provider_id, display_name, phone, COALESCE(suburb, ''), dob
		FROM patients
		WHERE provider_id = $1 AND id = $2`,
		providerID, patientID)
	var p Patient
	if err := row.Scan(&p.ID, &p.ProviderID, &p.DisplayName, &p.Phone, &p.Suburb, &p.DOB); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, backendErr("get patient", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT employee_id
		FROM patient_staff_pool
		WHERE patient_id = $1
		ORDER BY position`,
		patientID)
	if err != nil {
		return nil, backendErr("get staff pool", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, backendErr("scan staff pool", scanErr)
		}
		p.StaffPool = append(p.StaffPool, id)
	}
	if rows.Err() != nil {
		return nil, backendErr("get staff pool", rows.Err())
	}
	return &p, nil
}

// ListEmployeesByID hydrates a staff-pool snapshot in the given order. Unknown
// ids are skipped rather than failing the whole pool.
func (r *Repository) ListEmployeesByID(ctx context.Context, providerID uuid.UUID, ids []uuid.UUID) ([]Employee, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+employeeColumns+`
		FROM employees
		WHERE provider_id = $1 AND id = ANY($2)`,
		providerID, ids)
	if err != nil {
		return nil, backendErr("list employees", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]Employee, len(ids))
	for rows.Next() {
		var e Employee
		if scanErr := rows.Scan(&e.ID, &e.ProviderID, &e.DisplayName, &e.Phone, &e.AltPhone, &e.PIN, &e.Active, &e.OutboundOptIn); scanErr != nil {
			return nil, backendErr("scan employee", scanErr)
		}
		byID[e.ID] = e
	}
	if rows.Err() != nil {
		return nil, backendErr("list employees", rows.Err())
	}

	ordered := make([]Employee, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			ordered = append(ordered, e)
		}
	}
	return ordered, nil
}

// ListEmployeesByPhone matches active employees by phone across all
// providers. Inbound SMS carries no provider context, so the reply webhook
// resolves every identity the number could belong to.
func (r *Repository) ListEmployeesByPhone(ctx context.Context, rawPhone string) ([]Employee, error) {
	normalized, err := phone.Normalize(rawPhone)
	if err != nil {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+employeeColumns+`
		FROM employees
		WHERE active AND (phone = $1 OR alt_phone = $1)`,
		normalized)
	if err != nil {
		return nil, backendErr("list employees by phone", err)
	}
	defer rows.Close()

	var employees []Employee
	for rows.Next() {
		var e Employee
		if scanErr := rows.Scan(&e.ID, &e.ProviderID, &e.DisplayName, &e.Phone, &e.AltPhone, &e.PIN, &e.Active, &e.OutboundOptIn); scanErr != nil {
			return nil, backendErr("scan employee", scanErr)
		}
		employees = append(employees, e)
	}
	if rows.Err() != nil {
		return nil, backendErr("list employees by phone", rows.Err())
	}
	return employees, nil
}

// SetEmployeeOptOut records an employee's outbound-contact preference,
// typically after an SMS STOP reply.
func (r *Repository) SetEmployeeOptOut(ctx context.Context, employeeID uuid.UUID, optIn bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE employees SET outbound_opt_in = $2 WHERE id = $1`,
		employeeID, optIn)
	if err != nil {
		return backendErr("set employee opt out", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func backendErr(op string, err error) error {
	return fmt.Errorf("roster: %s: %w", op, errors.Join(ErrBackendUnavailable, err))
}
