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

// CreateRecord inserts a record row. This write is the durability boundary
// of the commit pipeline: once it succeeds the record is visible to readers
// in PENDING state even if the process dies before the ledger anchor lands.
//
// The record must arrive with SyncStatus PENDING and no blockchain
// transaction - later states are only reachable through MarkRecordSynced
// and MarkRecordFailed. The referenced doctor and patient must exist.
func (s *Store) CreateRecord(ctx context.Context, r model.Record) error {
	if r.SyncStatus != model.SyncPending {
		return fault.Validation("new record must have sync status PENDING, got %q", r.SyncStatus)
	}
	if r.BlockchainTx != "" {
		return fault.Validation("new record must not carry a blockchain transaction")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create record: begin tx: %w", err)
	}
	defer tx.Rollback()

	if ok, err := exists(ctx, tx, "doctors", r.DoctorID); err != nil {
		return fmt.Errorf("create record: %w", err)
	} else if !ok {
		return fault.NotFound("doctor", r.DoctorID)
	}
	if ok, err := exists(ctx, tx, "patients", r.PatientID); err != nil {
		return fmt.Errorf("create record: %w", err)
	} else if !ok {
		return fault.NotFound("patient", r.PatientID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records
		(id, title, cid, blockchain_tx, sync_status, diagnosis, treatment, medications, notes, patient_id, doctor_id, created_at, updated_at)
		VALUES (?, ?, ?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.Title,
		r.CID,
		string(r.SyncStatus),
		r.Diagnosis,
		r.Treatment,
		r.Medications,
		r.Notes,
		r.PatientID,
		r.DoctorID,
		formatTime(r.CreatedAt),
		formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create record: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create record: commit: %w", err)
	}
	return nil
}

// GetRecord retrieves a record by id.
// An absent blockchain transaction comes back as the empty string.
func (s *Store) GetRecord(ctx context.Context, id string) (model.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, cid, blockchain_tx, sync_status, diagnosis, treatment, medications, notes, patient_id, doctor_id, created_at, updated_at
		FROM records WHERE id = ?
	`, id)

	r, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, fault.NotFound("record", id)
	}
	if err != nil {
		return model.Record{}, fmt.Errorf("get record: %w", err)
	}
	return r, nil
}

// MarkRecordSynced finalizes a record: sets the blockchain transaction and
// moves PENDING → SYNCED in one write. The WHERE clause matches only
// PENDING rows; a record whose status already reached a terminal state
// stays untouched and the call returns ErrAlreadyResolved.
func (s *Store) MarkRecordSynced(ctx context.Context, id, txHash string, now time.Time) error {
	if txHash == "" {
		return fault.Validation("blockchain transaction hash must not be empty")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE records SET sync_status = 'SYNCED', blockchain_tx = ?, updated_at = ?
		WHERE id = ? AND sync_status = 'PENDING'
	`, txHash, formatTime(now), id)
	if err != nil {
		return fmt.Errorf("mark record synced: %w", err)
	}
	return checkTransition(res, id)
}

// MarkRecordFailed moves a record PENDING → FAILED after a ledger anchor
// failure. The cid stays intact - the pinned content remains valid and the
// row is the durable evidence of the partial failure.
func (s *Store) MarkRecordFailed(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE records SET sync_status = 'FAILED', updated_at = ?
		WHERE id = ? AND sync_status = 'PENDING'
	`, formatTime(now), id)
	if err != nil {
		return fmt.Errorf("mark record failed: %w", err)
	}
	return checkTransition(res, id)
}

func checkTransition(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record transition: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("record %s: %w", id, ErrAlreadyResolved)
	}
	return nil
}

// ListRecordsByPatient returns all records for a patient, oldest first.
// Returns an empty slice (not nil) when there are none.
func (s *Store) ListRecordsByPatient(ctx context.Context, patientID string) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, cid, blockchain_tx, sync_status, diagnosis, treatment, medications, notes, patient_id, doctor_id, created_at, updated_at
		FROM records
		WHERE patient_id = ?
		ORDER BY created_at ASC, id ASC
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []model.Record{}
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func scanRecord(scan func(dest ...any) error) (model.Record, error) {
	var (
		r                    model.Record
		blockchainTx         sql.NullString
		syncStatus           string
		createdAt, updatedAt string
	)
	err := scan(
		&r.ID, &r.Title, &r.CID, &blockchainTx, &syncStatus,
		&r.Diagnosis, &r.Treatment, &r.Medications, &r.Notes,
		&r.PatientID, &r.DoctorID, &createdAt, &updatedAt,
	)
	if err != nil {
		return model.Record{}, err
	}

	r.BlockchainTx = blockchainTx.String
	r.SyncStatus = model.SyncStatus(syncStatus)
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Record{}, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.Record{}, err
	}
	return r, nil
}
