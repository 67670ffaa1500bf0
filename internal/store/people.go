package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/medledger/medledger/internal/fault"
	"github.com/medledger/medledger/internal/model"
)

// RegisterDoctor creates a user row with the DOCTOR role and its doctor
// profile in one transaction. The caller supplies ids and timestamps.
func (s *Store) RegisterDoctor(ctx context.Context, u model.User, d model.Doctor) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("register doctor: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := insertUser(ctx, tx, u); err != nil {
		return fmt.Errorf("register doctor: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO doctors (id, user_id, specialization, license, hospital, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		d.ID,
		d.UserID,
		d.Specialization,
		d.License,
		d.Hospital,
		formatTime(d.CreatedAt),
		formatTime(d.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("register doctor: insert profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("register doctor: commit: %w", err)
	}
	return nil
}

// RegisterPatient creates a user row with the PATIENT role and its patient
// profile in one transaction. The ledger address may be empty at this point;
// it must be set before any record can be committed for the patient.
func (s *Store) RegisterPatient(ctx context.Context, u model.User, p model.Patient) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("register patient: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertUser(ctx, tx, u); err != nil {
		return fmt.Errorf("register patient: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO patients (id, user_id, ledger_address, date_of_birth, blood_type, allergies, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID,
		p.UserID,
		nullable(p.LedgerAddress),
		p.DateOfBirth,
		p.BloodType,
		p.Allergies,
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("register patient: insert profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("register patient: commit: %w", err)
	}
	return nil
}

func insertUser(ctx context.Context, tx *sql.Tx, u model.User) error {
	if !model.ValidRoles[u.Role] {
		return fault.Validation("invalid role %q", u.Role)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, email, name, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		u.ID,
		u.Email,
		u.Name,
		string(u.Role),
		formatTime(u.CreatedAt),
		formatTime(u.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (model.User, error) {
	var (
		u                    model.User
		role                 string
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, role, created_at, updated_at
		FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.Email, &u.Name, &role, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fault.NotFound("user", id)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user: %w", err)
	}

	u.Role = model.Role(role)
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.User{}, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// GetDoctor retrieves a doctor profile by id.
func (s *Store) GetDoctor(ctx context.Context, id string) (model.Doctor, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, specialization, license, hospital, created_at, updated_at
		FROM doctors WHERE id = ?
	`, id)
	return scanDoctor(row, id)
}

func scanDoctor(row *sql.Row, id string) (model.Doctor, error) {
	var (
		d                    model.Doctor
		createdAt, updatedAt string
	)
	err := row.Scan(&d.ID, &d.UserID, &d.Specialization, &d.License, &d.Hospital, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Doctor{}, fault.NotFound("doctor", id)
	}
	if err != nil {
		return model.Doctor{}, fmt.Errorf("get doctor: %w", err)
	}

	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Doctor{}, err
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.Doctor{}, err
	}
	return d, nil
}

// GetPatient retrieves a patient profile by id.
// An unset ledger address comes back as the empty string.
func (s *Store) GetPatient(ctx context.Context, id string) (model.Patient, error) {
	var (
		p                    model.Patient
		addr                 sql.NullString
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, ledger_address, date_of_birth, blood_type, allergies, created_at, updated_at
		FROM patients WHERE id = ?
	`, id).Scan(&p.ID, &p.UserID, &addr, &p.DateOfBirth, &p.BloodType, &p.Allergies, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Patient{}, fault.NotFound("patient", id)
	}
	if err != nil {
		return model.Patient{}, fmt.Errorf("get patient: %w", err)
	}

	p.LedgerAddress = addr.String
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Patient{}, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.Patient{}, err
	}
	return p, nil
}

// SetPatientLedgerAddress links a ledger account to a patient.
func (s *Store) SetPatientLedgerAddress(ctx context.Context, patientID, address string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE patients SET ledger_address = ?, updated_at = ? WHERE id = ?
	`, address, formatTime(now), patientID)
	if err != nil {
		return fmt.Errorf("set ledger address: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set ledger address: rows affected: %w", err)
	}
	if affected == 0 {
		return fault.NotFound("patient", patientID)
	}
	return nil
}

// nullable maps the empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
