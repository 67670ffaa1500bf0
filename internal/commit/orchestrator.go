// Package commit drives the record-commitment pipeline.
//
// One commit is one sequential pass over three backends that share no
// transaction: the pinning service, the record store and the ledger. The
// pipeline orders its steps so every partial failure leaves a consistent,
// explainable state behind - see Orchestrator.CommitRecord.
package commit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/medledger/medledger/internal/access"
	"github.com/medledger/medledger/internal/fault"
	"github.com/medledger/medledger/internal/ledger"
	"github.com/medledger/medledger/internal/model"
	"github.com/medledger/medledger/internal/pin"
	"github.com/medledger/medledger/internal/store"
)

// Input carries one record to commit.
type Input struct {
	PatientID   string
	Title       string
	Diagnosis   string
	Treatment   string
	Medications string
	Notes       string
}

func (in Input) validate() error {
	if in.PatientID == "" {
		return fault.Validation("patient id is required")
	}
	if in.Title == "" {
		return fault.Validation("title is required")
	}
	return nil
}

// Orchestrator coordinates the access gate, the pinner, the store and the
// ledger anchor for record commits.
//
// All collaborators are injected; nothing here reaches for globals, so
// tests swap in fakes and operators swap in real clients.
type Orchestrator struct {
	gate   *access.Gate
	store  *store.Store
	pinner pin.Pinner
	anchor ledger.Anchor

	pinStep    PinPolicy
	anchorStep AnchorPolicy

	ids model.IDGenerator
	now func() time.Time
	log *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithIDGenerator overrides the id generator, mainly for tests.
func WithIDGenerator(g model.IDGenerator) Option {
	return func(o *Orchestrator) { o.ids = g }
}

// WithNow overrides the clock, mainly for tests. The time it returns
// becomes both the record's creation timestamp and part of the pinned
// payload, so fixing it makes content identifiers reproducible.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger overrides the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// New creates an Orchestrator over the given collaborators.
func New(gate *access.Gate, s *store.Store, pinner pin.Pinner, anchor ledger.Anchor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gate:       gate,
		store:      s,
		pinner:     pinner,
		anchor:     anchor,
		pinStep:    PinOnce,
		anchorStep: AnchorOnce,
		ids:        model.UUIDv7Generator{},
		now:        time.Now,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CommitRecord runs the full commit sequence for one record:
//
//  1. Capability check - the caller must hold the doctor capability and an
//     APPROVED grant for the patient, checked fresh. On failure nothing is
//     pinned, persisted or anchored: an unauthorized writer must never
//     cause content to exist under their name.
//  2. Pin - the canonical payload goes to the pinning service. On failure
//     the operation aborts with nothing persisted; a stored record must
//     never reference unpinned content.
//  3. Persist intent - the record row is written with status PENDING. This
//     is the durability boundary: from here the record is visible to
//     readers and will end up SYNCED or FAILED. A crash before step 5
//     leaves it permanently PENDING - an accepted gap, there is no
//     background detection for it.
//  4. Anchor - the ledger transaction, blocking until one confirmation.
//     On failure the record is marked FAILED (cid intact, no transaction)
//     and the ledger fault carries the record id.
//  5. Finalize - the record is marked SYNCED with its transaction hash.
//
// Each external call happens exactly once per invocation; retry policy, if
// any, lives in the injected step policies. The grant is not re-checked
// after step 1, so a revocation racing an in-flight commit does not stop
// it - an accepted window in this design.
//
// Note there is no deduplication key across records: retrying after a
// FAILED outcome pins the same content to the same cid but creates a new,
// independent record row.
func (o *Orchestrator) CommitRecord(ctx context.Context, caller model.Capability, in Input) (model.Record, error) {
	doctor, ok := caller.(model.DoctorCapability)
	if !ok {
		return model.Record{}, fault.Authorization("committing a record requires the doctor capability")
	}
	if err := in.validate(); err != nil {
		return model.Record{}, err
	}

	// Step 1: capability check, evaluated fresh.
	granted, err := o.gate.HasApprovedGrant(ctx, doctor.DoctorID, in.PatientID)
	if err != nil {
		return model.Record{}, fmt.Errorf("commit record: %w", err)
	}
	if !granted {
		return model.Record{}, fault.Authorization("doctor %s has no approved grant for patient %s", doctor.DoctorID, in.PatientID)
	}

	// The anchor needs the patient's ledger account; resolving it before
	// the pin avoids pinning content the pipeline cannot anchor.
	patient, err := o.store.GetPatient(ctx, in.PatientID)
	if err != nil {
		return model.Record{}, fmt.Errorf("commit record: %w", err)
	}
	if patient.LedgerAddress == "" {
		return model.Record{}, fault.Validation("patient %s has no ledger address", in.PatientID)
	}

	now := o.now()
	content := model.RecordContent{
		Title:       in.Title,
		Diagnosis:   in.Diagnosis,
		Treatment:   in.Treatment,
		Medications: in.Medications,
		Notes:       in.Notes,
		PatientID:   in.PatientID,
		DoctorID:    doctor.DoctorID,
		CreatedAt:   now.Unix(),
	}

	// Step 2: pin.
	cid, err := o.pinStep(ctx, o.pinner, content.Canonical())
	if err != nil {
		return model.Record{}, fault.Pinning(err)
	}
	o.log.Debug("content pinned", "cid", cid, "patient_id", in.PatientID)

	// Step 3: persist intent.
	rec := model.Record{
		ID:          o.ids.NewID(),
		Title:       in.Title,
		CID:         cid,
		SyncStatus:  model.SyncPending,
		Diagnosis:   in.Diagnosis,
		Treatment:   in.Treatment,
		Medications: in.Medications,
		Notes:       in.Notes,
		PatientID:   in.PatientID,
		DoctorID:    doctor.DoctorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.store.CreateRecord(ctx, rec); err != nil {
		return model.Record{}, fmt.Errorf("commit record: %w", err)
	}

	// Step 4: anchor.
	txHash, err := o.anchorStep(ctx, o.anchor, patient.LedgerAddress, cid)
	if err != nil {
		o.log.Warn("ledger anchor failed, marking record FAILED",
			"record_id", rec.ID, "cid", cid, "error", err)
		if markErr := o.store.MarkRecordFailed(ctx, rec.ID, o.now()); markErr != nil {
			// The row stays PENDING; surface both failures.
			return model.Record{}, fmt.Errorf("mark record %s failed after anchor error: %v: %w", rec.ID, markErr, fault.Ledger(err, rec.ID))
		}
		return model.Record{}, fault.Ledger(err, rec.ID)
	}

	// Step 5: finalize.
	if err := o.store.MarkRecordSynced(ctx, rec.ID, txHash, o.now()); err != nil {
		return model.Record{}, fmt.Errorf("commit record: finalize: %w", err)
	}
	o.log.Info("record committed", "record_id", rec.ID, "cid", cid, "tx", txHash)

	return o.store.GetRecord(ctx, rec.ID)
}

// RecordsForPatient returns the records of the calling patient, or of any
// patient when the caller is a doctor holding a grant for them.
func (o *Orchestrator) RecordsForPatient(ctx context.Context, caller model.Capability, patientID string) ([]model.Record, error) {
	switch c := caller.(type) {
	case model.PatientCapability:
		if c.PatientID != patientID {
			return nil, fault.Authorization("patient %s cannot read records of patient %s", c.PatientID, patientID)
		}
	case model.DoctorCapability:
		granted, err := o.gate.HasApprovedGrant(ctx, c.DoctorID, patientID)
		if err != nil {
			return nil, fmt.Errorf("list records: %w", err)
		}
		if !granted {
			return nil, fault.Authorization("doctor %s has no approved grant for patient %s", c.DoctorID, patientID)
		}
	case model.AdminCapability:
		// Admins read everything.
	default:
		return nil, fault.Authorization("unknown capability %T", caller)
	}

	return o.store.ListRecordsByPatient(ctx, patientID)
}
