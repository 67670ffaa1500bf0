// Package access implements the grant state machine between doctors and
// patients.
//
// A doctor asks for write access, the patient decides, and the resulting
// APPROVED request is the sole basis for every gated write. The lifecycle
// is strictly PENDING → APPROVED | DENIED; terminal requests never reopen,
// a doctor who wants access again files a new request.
package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/medledger/medledger/internal/fault"
	"github.com/medledger/medledger/internal/model"
	"github.com/medledger/medledger/internal/store"
)

// Gate derives and mutates capability grants between doctors and patients.
type Gate struct {
	store *store.Store
	ids   model.IDGenerator
	now   func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithIDGenerator overrides the id generator, mainly for tests.
func WithIDGenerator(g model.IDGenerator) Option {
	return func(gate *Gate) { gate.ids = g }
}

// WithNow overrides the clock, mainly for tests.
func WithNow(now func() time.Time) Option {
	return func(gate *Gate) { gate.now = now }
}

// NewGate creates a Gate over the given store.
func NewGate(s *store.Store, opts ...Option) *Gate {
	g := &Gate{
		store: s,
		ids:   model.UUIDv7Generator{},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RequestAccess files a new PENDING access request from the calling doctor
// to the patient. Existing requests for the pair are untouched - in
// particular, a new request never reopens or replaces a denied one.
func (g *Gate) RequestAccess(ctx context.Context, caller model.Capability, patientID, reason, message string) (model.AccessRequest, error) {
	doctor, ok := caller.(model.DoctorCapability)
	if !ok {
		return model.AccessRequest{}, fault.Authorization("requesting access requires the doctor capability")
	}
	if patientID == "" {
		return model.AccessRequest{}, fault.Validation("patient id is required")
	}
	if reason == "" {
		return model.AccessRequest{}, fault.Validation("reason is required")
	}

	now := g.now()
	ar := model.AccessRequest{
		ID:        g.ids.NewID(),
		DoctorID:  doctor.DoctorID,
		PatientID: patientID,
		Status:    model.AccessPending,
		Reason:    reason,
		Message:   message,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := g.store.CreateAccessRequest(ctx, ar); err != nil {
		return model.AccessRequest{}, fmt.Errorf("request access: %w", err)
	}
	return ar, nil
}

// ResolveAccess lets the owning patient approve or deny a request.
//
// Only the patient the request names may decide it; anyone else gets an
// authorization fault and the status is left untouched. The transition is
// a single write with no intermediate state, and it happens at most once -
// a request that already left PENDING yields a validation fault.
func (g *Gate) ResolveAccess(ctx context.Context, caller model.Capability, requestID string, decision model.AccessStatus) (model.AccessRequest, error) {
	patient, ok := caller.(model.PatientCapability)
	if !ok {
		return model.AccessRequest{}, fault.Authorization("resolving an access request requires the patient capability")
	}
	if decision != model.AccessApproved && decision != model.AccessDenied {
		return model.AccessRequest{}, fault.Validation("decision must be APPROVED or DENIED, got %q", decision)
	}

	ar, err := g.store.GetAccessRequest(ctx, requestID)
	if err != nil {
		return model.AccessRequest{}, fmt.Errorf("resolve access: %w", err)
	}
	if ar.PatientID != patient.PatientID {
		return model.AccessRequest{}, fault.Authorization("access request %s does not belong to patient %s", requestID, patient.PatientID)
	}

	err = g.store.ResolveAccessRequest(ctx, requestID, decision, g.now())
	if errors.Is(err, store.ErrAlreadyResolved) {
		return model.AccessRequest{}, fault.Validation("access request %s is already resolved to %s", requestID, ar.Status)
	}
	if err != nil {
		return model.AccessRequest{}, fmt.Errorf("resolve access: %w", err)
	}

	return g.store.GetAccessRequest(ctx, requestID)
}

// HasApprovedGrant reports whether any APPROVED access request exists for
// the (doctor, patient) pair.
//
// Evaluated fresh on every call, immediately before each gated write -
// grants can be added or denied between calls, so caching here would let a
// stale answer authorize a write. One approved request suffices; later
// PENDING or DENIED requests for the pair do not revoke it.
func (g *Gate) HasApprovedGrant(ctx context.Context, doctorID, patientID string) (bool, error) {
	return g.store.HasApprovedAccess(ctx, doctorID, patientID)
}

// RequestsForDoctor returns all requests the calling doctor has filed.
func (g *Gate) RequestsForDoctor(ctx context.Context, caller model.Capability) ([]model.AccessRequest, error) {
	doctor, ok := caller.(model.DoctorCapability)
	if !ok {
		return nil, fault.Authorization("listing own requests requires the doctor capability")
	}
	return g.store.ListAccessRequestsByDoctor(ctx, doctor.DoctorID)
}

// PendingForPatient returns the requests awaiting the calling patient's
// decision.
func (g *Gate) PendingForPatient(ctx context.Context, caller model.Capability) ([]model.AccessRequest, error) {
	patient, ok := caller.(model.PatientCapability)
	if !ok {
		return nil, fault.Authorization("listing pending requests requires the patient capability")
	}
	return g.store.ListPendingAccessRequestsByPatient(ctx, patient.PatientID)
}

// ApprovedPatients returns the patients the calling doctor holds a grant
// for.
func (g *Gate) ApprovedPatients(ctx context.Context, caller model.Capability) ([]model.Patient, error) {
	doctor, ok := caller.(model.DoctorCapability)
	if !ok {
		return nil, fault.Authorization("listing approved patients requires the doctor capability")
	}
	return g.store.ListApprovedPatients(ctx, doctor.DoctorID)
}
