package access

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medledger/medledger/internal/fault"
	"github.com/medledger/medledger/internal/model"
	"github.com/medledger/medledger/internal/store"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	gate    *Gate
	store   *store.Store
	doctor  model.Doctor
	patient model.Patient
}

func newFixture(t *testing.T, ids ...string) *fixture {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "medledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	doctor := model.Doctor{ID: "doc-1", UserID: "user-doc-1", CreatedAt: testTime, UpdatedAt: testTime}
	require.NoError(t, s.RegisterDoctor(ctx,
		model.User{ID: "user-doc-1", Email: "d@example.org", Name: "Dr. D", Role: model.RoleDoctor, CreatedAt: testTime, UpdatedAt: testTime},
		doctor,
	))

	patient := model.Patient{ID: "pat-1", UserID: "user-pat-1", LedgerAddress: "0xaa", CreatedAt: testTime, UpdatedAt: testTime}
	require.NoError(t, s.RegisterPatient(ctx,
		model.User{ID: "user-pat-1", Email: "p@example.org", Name: "P", Role: model.RolePatient, CreatedAt: testTime, UpdatedAt: testTime},
		patient,
	))

	gate := NewGate(s,
		WithIDGenerator(model.NewFixedIDGenerator(ids...)),
		WithNow(func() time.Time { return testTime }),
	)
	return &fixture{gate: gate, store: s, doctor: doctor, patient: patient}
}

func TestRequestAccess_CreatesPending(t *testing.T) {
	f := newFixture(t, "ar-1")

	ar, err := f.gate.RequestAccess(context.Background(),
		model.DoctorCapability{DoctorID: f.doctor.ID}, f.patient.ID, "consult", "please")
	require.NoError(t, err)

	assert.Equal(t, "ar-1", ar.ID)
	assert.Equal(t, model.AccessPending, ar.Status)
	assert.Equal(t, "consult", ar.Reason)

	stored, err := f.store.GetAccessRequest(context.Background(), "ar-1")
	require.NoError(t, err)
	assert.Equal(t, model.AccessPending, stored.Status)
}

func TestRequestAccess_RequiresDoctorCapability(t *testing.T) {
	f := newFixture(t)

	for _, caller := range []model.Capability{
		model.PatientCapability{PatientID: f.patient.ID},
		model.AdminCapability{},
	} {
		_, err := f.gate.RequestAccess(context.Background(), caller, f.patient.ID, "consult", "")
		assert.True(t, fault.IsAuthorization(err), "caller %T should be rejected, got %v", caller, err)
	}
}

func TestRequestAccess_RequiresReason(t *testing.T) {
	f := newFixture(t)

	_, err := f.gate.RequestAccess(context.Background(),
		model.DoctorCapability{DoctorID: f.doctor.ID}, f.patient.ID, "", "")
	assert.True(t, fault.IsValidation(err), "got %v", err)
}

func TestResolveAccess_Approve(t *testing.T) {
	f := newFixture(t, "ar-1")
	ctx := context.Background()

	_, err := f.gate.RequestAccess(ctx, model.DoctorCapability{DoctorID: f.doctor.ID}, f.patient.ID, "consult", "")
	require.NoError(t, err)

	ar, err := f.gate.ResolveAccess(ctx, model.PatientCapability{PatientID: f.patient.ID}, "ar-1", model.AccessApproved)
	require.NoError(t, err)
	assert.Equal(t, model.AccessApproved, ar.Status)

	ok, err := f.gate.HasApprovedGrant(ctx, f.doctor.ID, f.patient.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolveAccess_WrongPatientLeavesStatusUnchanged(t *testing.T) {
	f := newFixture(t, "ar-1")
	ctx := context.Background()

	_, err := f.gate.RequestAccess(ctx, model.DoctorCapability{DoctorID: f.doctor.ID}, f.patient.ID, "consult", "")
	require.NoError(t, err)

	_, err = f.gate.ResolveAccess(ctx, model.PatientCapability{PatientID: "someone-else"}, "ar-1", model.AccessApproved)
	require.True(t, fault.IsAuthorization(err), "got %v", err)

	stored, err := f.store.GetAccessRequest(ctx, "ar-1")
	require.NoError(t, err)
	assert.Equal(t, model.AccessPending, stored.Status, "status must be untouched after rejected resolve")
}

func TestResolveAccess_TerminalIsFinal(t *testing.T) {
	f := newFixture(t, "ar-1")
	ctx := context.Background()
	patientCap := model.PatientCapability{PatientID: f.patient.ID}

	_, err := f.gate.RequestAccess(ctx, model.DoctorCapability{DoctorID: f.doctor.ID}, f.patient.ID, "consult", "")
	require.NoError(t, err)
	_, err = f.gate.ResolveAccess(ctx, patientCap, "ar-1", model.AccessDenied)
	require.NoError(t, err)

	_, err = f.gate.ResolveAccess(ctx, patientCap, "ar-1", model.AccessApproved)
	assert.True(t, fault.IsValidation(err), "resolving a terminal request should fail, got %v", err)

	stored, err := f.store.GetAccessRequest(ctx, "ar-1")
	require.NoError(t, err)
	assert.Equal(t, model.AccessDenied, stored.Status)
}

func TestResolveAccess_InvalidDecision(t *testing.T) {
	f := newFixture(t)

	_, err := f.gate.ResolveAccess(context.Background(),
		model.PatientCapability{PatientID: f.patient.ID}, "ar-1", model.AccessPending)
	assert.True(t, fault.IsValidation(err), "got %v", err)
}

func TestResolveAccess_MissingRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.gate.ResolveAccess(context.Background(),
		model.PatientCapability{PatientID: f.patient.ID}, "ghost", model.AccessApproved)
	assert.True(t, fault.IsNotFound(err), "got %v", err)
}

func TestHasApprovedGrant_SurvivesLaterRequests(t *testing.T) {
	f := newFixture(t, "ar-1", "ar-2", "ar-3")
	ctx := context.Background()
	doctorCap := model.DoctorCapability{DoctorID: f.doctor.ID}
	patientCap := model.PatientCapability{PatientID: f.patient.ID}

	ok, err := f.gate.HasApprovedGrant(ctx, f.doctor.ID, f.patient.ID)
	require.NoError(t, err)
	assert.False(t, ok, "no grant before any request")

	_, err = f.gate.RequestAccess(ctx, doctorCap, f.patient.ID, "consult", "")
	require.NoError(t, err)
	_, err = f.gate.ResolveAccess(ctx, patientCap, "ar-1", model.AccessApproved)
	require.NoError(t, err)

	// A later pending and a later denied request do not revoke the grant.
	_, err = f.gate.RequestAccess(ctx, doctorCap, f.patient.ID, "follow-up", "")
	require.NoError(t, err)
	_, err = f.gate.RequestAccess(ctx, doctorCap, f.patient.ID, "second opinion", "")
	require.NoError(t, err)
	_, err = f.gate.ResolveAccess(ctx, patientCap, "ar-3", model.AccessDenied)
	require.NoError(t, err)

	ok, err = f.gate.HasApprovedGrant(ctx, f.doctor.ID, f.patient.ID)
	require.NoError(t, err)
	assert.True(t, ok, "grant must survive later PENDING and DENIED requests")
}

func TestListing_CapabilityChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.gate.RequestsForDoctor(ctx, model.PatientCapability{PatientID: f.patient.ID})
	assert.True(t, fault.IsAuthorization(err))

	_, err = f.gate.PendingForPatient(ctx, model.DoctorCapability{DoctorID: f.doctor.ID})
	assert.True(t, fault.IsAuthorization(err))

	_, err = f.gate.ApprovedPatients(ctx, model.AdminCapability{})
	assert.True(t, fault.IsAuthorization(err))
}
