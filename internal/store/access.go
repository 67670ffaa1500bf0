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

// ErrAlreadyResolved is returned when a status transition targets a request
// or record that already left PENDING. Terminal states never transition.
var ErrAlreadyResolved = errors.New("status already terminal")

// CreateAccessRequest inserts a new access request.
// The referenced doctor and patient must exist; a missing reference is
// reported as a not-found fault before anything is written.
func (s *Store) CreateAccessRequest(ctx context.Context, ar model.AccessRequest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create access request: begin tx: %w", err)
	}
	defer tx.Rollback()

	if ok, err := exists(ctx, tx, "doctors", ar.DoctorID); err != nil {
		return fmt.Errorf("create access request: %w", err)
	} else if !ok {
		return fault.NotFound("doctor", ar.DoctorID)
	}
	if ok, err := exists(ctx, tx, "patients", ar.PatientID); err != nil {
		return fmt.Errorf("create access request: %w", err)
	} else if !ok {
		return fault.NotFound("patient", ar.PatientID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO access_requests (id, doctor_id, patient_id, status, reason, message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ar.ID,
		ar.DoctorID,
		ar.PatientID,
		string(ar.Status),
		ar.Reason,
		ar.Message,
		formatTime(ar.CreatedAt),
		formatTime(ar.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create access request: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create access request: commit: %w", err)
	}
	return nil
}

// GetAccessRequest retrieves an access request by id.
func (s *Store) GetAccessRequest(ctx context.Context, id string) (model.AccessRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, doctor_id, patient_id, status, reason, message, created_at, updated_at
		FROM access_requests WHERE id = ?
	`, id)

	ar, err := scanAccessRequest(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AccessRequest{}, fault.NotFound("access request", id)
	}
	if err != nil {
		return model.AccessRequest{}, fmt.Errorf("get access request: %w", err)
	}
	return ar, nil
}

// ResolveAccessRequest moves a request from PENDING to the given terminal
// status in a single write. The WHERE clause matches only PENDING rows, so
// a request can never be resolved twice: a second attempt affects zero rows
// and returns ErrAlreadyResolved.
func (s *Store) ResolveAccessRequest(ctx context.Context, id string, status model.AccessStatus, now time.Time) error {
	if status != model.AccessApproved && status != model.AccessDenied {
		return fault.Validation("decision must be APPROVED or DENIED, got %q", status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE access_requests SET status = ?, updated_at = ?
		WHERE id = ? AND status = 'PENDING'
	`, string(status), formatTime(now), id)
	if err != nil {
		return fmt.Errorf("resolve access request: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve access request: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("resolve access request %s: %w", id, ErrAlreadyResolved)
	}
	return nil
}

// HasApprovedAccess reports whether at least one APPROVED access request
// exists for the (doctor, patient) pair. Evaluated fresh on every call -
// grants can be added or denied between calls, so nothing is cached.
func (s *Store) HasApprovedAccess(ctx context.Context, doctorID, patientID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM access_requests
		WHERE doctor_id = ? AND patient_id = ? AND status = 'APPROVED'
	`, doctorID, patientID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check approved access: %w", err)
	}
	return count > 0, nil
}

// ListAccessRequestsByDoctor returns all requests a doctor has made,
// oldest first. Returns an empty slice (not nil) when there are none.
func (s *Store) ListAccessRequestsByDoctor(ctx context.Context, doctorID string) ([]model.AccessRequest, error) {
	return s.listAccessRequests(ctx, `
		SELECT id, doctor_id, patient_id, status, reason, message, created_at, updated_at
		FROM access_requests
		WHERE doctor_id = ?
		ORDER BY created_at ASC, id ASC
	`, doctorID)
}

// ListPendingAccessRequestsByPatient returns the requests a patient still
// has to decide on, oldest first.
func (s *Store) ListPendingAccessRequestsByPatient(ctx context.Context, patientID string) ([]model.AccessRequest, error) {
	return s.listAccessRequests(ctx, `
		SELECT id, doctor_id, patient_id, status, reason, message, created_at, updated_at
		FROM access_requests
		WHERE patient_id = ? AND status = 'PENDING'
		ORDER BY created_at ASC, id ASC
	`, patientID)
}

func (s *Store) listAccessRequests(ctx context.Context, query string, args ...any) ([]model.AccessRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query access requests: %w", err)
	}
	defer rows.Close()

	requests := []model.AccessRequest{}
	for rows.Next() {
		ar, err := scanAccessRequest(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan access request: %w", err)
		}
		requests = append(requests, ar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access requests: %w", err)
	}
	return requests, nil
}

// ListApprovedPatients returns the patients a doctor holds a grant for,
// deduplicated across multiple approved requests.
func (s *Store) ListApprovedPatients(ctx context.Context, doctorID string) ([]model.Patient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT p.id, p.user_id, p.ledger_address, p.date_of_birth, p.blood_type, p.allergies, p.created_at, p.updated_at
		FROM patients p
		JOIN access_requests ar ON ar.patient_id = p.id
		WHERE ar.doctor_id = ? AND ar.status = 'APPROVED'
		ORDER BY p.created_at ASC, p.id ASC
	`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("query approved patients: %w", err)
	}
	defer rows.Close()

	patients := []model.Patient{}
	for rows.Next() {
		var (
			p                    model.Patient
			addr                 sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&p.ID, &p.UserID, &addr, &p.DateOfBirth, &p.BloodType, &p.Allergies, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		p.LedgerAddress = addr.String
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approved patients: %w", err)
	}
	return patients, nil
}

// scanAccessRequest reads one access request row via the given scan func,
// shared between QueryRow and Rows iteration.
func scanAccessRequest(scan func(dest ...any) error) (model.AccessRequest, error) {
	var (
		ar                   model.AccessRequest
		status               string
		createdAt, updatedAt string
	)
	if err := scan(&ar.ID, &ar.DoctorID, &ar.PatientID, &status, &ar.Reason, &ar.Message, &createdAt, &updatedAt); err != nil {
		return model.AccessRequest{}, err
	}

	ar.Status = model.AccessStatus(status)
	var err error
	if ar.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.AccessRequest{}, err
	}
	if ar.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.AccessRequest{}, err
	}
	return ar, nil
}
