package commit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medledger/medledger/internal/access"
	"github.com/medledger/medledger/internal/fault"
	"github.com/medledger/medledger/internal/ledger"
	"github.com/medledger/medledger/internal/model"
	"github.com/medledger/medledger/internal/pin"
	"github.com/medledger/medledger/internal/store"
	"github.com/medledger/medledger/internal/testutil"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	orch    *Orchestrator
	gate    *access.Gate
	store   *store.Store
	pinner  *testutil.FakePinner
	anchor  *testutil.FakeAnchor
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

	patient := model.Patient{
		ID: "pat-1", UserID: "user-pat-1",
		LedgerAddress: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		CreatedAt:     testTime, UpdatedAt: testTime,
	}
	require.NoError(t, s.RegisterPatient(ctx,
		model.User{ID: "user-pat-1", Email: "p@example.org", Name: "P", Role: model.RolePatient, CreatedAt: testTime, UpdatedAt: testTime},
		patient,
	))

	fixedClock := func() time.Time { return testTime }
	gate := NewTestGate(t, s, fixedClock)

	pinner := &testutil.FakePinner{}
	anchor := &testutil.FakeAnchor{Timestamp: testTime.Unix()}

	orch := New(gate, s, pinner, anchor,
		WithIDGenerator(model.NewFixedIDGenerator(ids...)),
		WithNow(fixedClock),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	return &fixture{
		orch: orch, gate: gate, store: s,
		pinner: pinner, anchor: anchor,
		doctor: doctor, patient: patient,
	}
}

// NewTestGate builds a gate whose generated request ids do not collide
// with the record ids handed to the orchestrator.
func NewTestGate(t *testing.T, s *store.Store, now func() time.Time) *access.Gate {
	t.Helper()
	return access.NewGate(s,
		access.WithIDGenerator(model.NewFixedIDGenerator("ar-1", "ar-2", "ar-3")),
		access.WithNow(now),
	)
}

func (f *fixture) grantAccess(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	ar, err := f.gate.RequestAccess(ctx, model.DoctorCapability{DoctorID: f.doctor.ID}, f.patient.ID, "consult", "")
	require.NoError(t, err)
	_, err = f.gate.ResolveAccess(ctx, model.PatientCapability{PatientID: f.patient.ID}, ar.ID, model.AccessApproved)
	require.NoError(t, err)
}

func sampleInput(patientID string) Input {
	return Input{
		PatientID:   patientID,
		Title:       "Annual check-up",
		Diagnosis:   "Mild hypertension",
		Treatment:   "Lifestyle changes",
		Medications: "Lisinopril 10mg",
		Notes:       "Follow up in 3 months",
	}
}

func TestCommitRecord_Success(t *testing.T) {
	f := newFixture(t, "rec-1")
	f.grantAccess(t)

	rec, err := f.orch.CommitRecord(context.Background(),
		model.DoctorCapability{DoctorID: f.doctor.ID}, sampleInput(f.patient.ID))
	require.NoError(t, err)

	assert.Equal(t, "rec-1", rec.ID)
	assert.Equal(t, model.SyncSynced, rec.SyncStatus)
	assert.NotEmpty(t, rec.CID)
	assert.NotEmpty(t, rec.BlockchainTx, "a SYNCED record carries its transaction hash")
	assert.Equal(t, f.doctor.ID, rec.DoctorID)

	assert.Equal(t, 1, f.pinner.Calls())
	assert.Equal(t, 1, f.anchor.Calls())

	entries := f.anchor.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, f.patient.LedgerAddress, entries[0].Patient)
	assert.Equal(t, rec.CID, entries[0].CID)
}

func TestCommitRecord_NoGrant(t *testing.T) {
	f := newFixture(t, "rec-1")

	_, err := f.orch.CommitRecord(context.Background(),
		model.DoctorCapability{DoctorID: f.doctor.ID}, sampleInput(f.patient.ID))
	require.True(t, fault.IsAuthorization(err), "got %v", err)

	assert.Zero(t, f.pinner.Calls(), "no pin without a grant")
	assert.Zero(t, f.anchor.Calls(), "no anchor without a grant")

	recs, err := f.store.ListRecordsByPatient(context.Background(), f.patient.ID)
	require.NoError(t, err)
	assert.Empty(t, recs, "no record row without a grant")
}

func TestCommitRecord_DeniedGrant(t *testing.T) {
	f := newFixture(t, "rec-1")
	ctx := context.Background()

	ar, err := f.gate.RequestAccess(ctx, model.DoctorCapability{DoctorID: f.doctor.ID}, f.patient.ID, "consult", "")
	require.NoError(t, err)
	_, err = f.gate.ResolveAccess(ctx, model.PatientCapability{PatientID: f.patient.ID}, ar.ID, model.AccessDenied)
	require.NoError(t, err)

	_, err = f.orch.CommitRecord(ctx, model.DoctorCapability{DoctorID: f.doctor.ID}, sampleInput(f.patient.ID))
	assert.True(t, fault.IsAuthorization(err), "got %v", err)
	assert.Zero(t, f.pinner.Calls())
}

func TestCommitRecord_RequiresDoctorCapability(t *testing.T) {
	f := newFixture(t, "rec-1")

	for _, caller := range []model.Capability{
		model.PatientCapability{PatientID: f.patient.ID},
		model.AdminCapability{},
	} {
		_, err := f.orch.CommitRecord(context.Background(), caller, sampleInput(f.patient.ID))
		assert.True(t, fault.IsAuthorization(err), "caller %T should be rejected, got %v", caller, err)
	}
	assert.Zero(t, f.pinner.Calls())
}

func TestCommitRecord_PinFailurePersistsNothing(t *testing.T) {
	f := newFixture(t, "rec-1")
	f.grantAccess(t)
	f.pinner.Err = errors.New("pinata is down")

	_, err := f.orch.CommitRecord(context.Background(),
		model.DoctorCapability{DoctorID: f.doctor.ID}, sampleInput(f.patient.ID))
	require.True(t, fault.IsPinning(err), "got %v", err)
	assert.True(t, fault.IsExternal(err))

	assert.Equal(t, 1, f.pinner.Calls(), "pin attempted exactly once")
	assert.Zero(t, f.anchor.Calls(), "no anchor after a failed pin")

	recs, err := f.store.ListRecordsByPatient(context.Background(), f.patient.ID)
	require.NoError(t, err)
	assert.Empty(t, recs, "no record row after a failed pin")
}

func TestCommitRecord_AnchorFailureMarksFailed(t *testing.T) {
	f := newFixture(t, "rec-1")
	f.grantAccess(t)
	f.anchor.Err = errors.New("node unreachable")

	_, err := f.orch.CommitRecord(context.Background(),
		model.DoctorCapability{DoctorID: f.doctor.ID}, sampleInput(f.patient.ID))
	require.True(t, fault.IsLedger(err), "got %v", err)

	var flt *fault.Fault
	require.ErrorAs(t, err, &flt)
	assert.Equal(t, "rec-1", flt.Details["record_id"], "ledger fault names the stranded record")

	rec, err := f.store.GetRecord(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, model.SyncFailed, rec.SyncStatus)
	assert.NotEmpty(t, rec.CID, "a FAILED record keeps its content identifier")
	assert.Empty(t, rec.BlockchainTx, "a FAILED record has no transaction hash")

	assert.Equal(t, 1, f.pinner.Calls())
	assert.Equal(t, 1, f.anchor.Calls(), "anchor attempted exactly once")
}

func TestCommitRecord_RetryAfterFailureCreatesNewRecord(t *testing.T) {
	f := newFixture(t, "rec-1", "rec-2")
	f.grantAccess(t)
	ctx := context.Background()
	doctorCap := model.DoctorCapability{DoctorID: f.doctor.ID}

	f.anchor.Err = errors.New("node unreachable")
	_, err := f.orch.CommitRecord(ctx, doctorCap, sampleInput(f.patient.ID))
	require.True(t, fault.IsLedger(err))

	f.anchor.Err = nil
	rec, err := f.orch.CommitRecord(ctx, doctorCap, sampleInput(f.patient.ID))
	require.NoError(t, err)
	assert.Equal(t, "rec-2", rec.ID)
	assert.Equal(t, model.SyncSynced, rec.SyncStatus)

	recs, err := f.store.ListRecordsByPatient(ctx, f.patient.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2, "the failed row stays alongside the retried one")

	failed, err := f.store.GetRecord(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, model.SyncFailed, failed.SyncStatus)
	assert.Equal(t, rec.CID, failed.CID, "same content, same identifier")
}

func TestCommitRecord_DeterministicContentID(t *testing.T) {
	f := newFixture(t, "rec-1", "rec-2")
	f.grantAccess(t)
	ctx := context.Background()
	doctorCap := model.DoctorCapability{DoctorID: f.doctor.ID}

	first, err := f.orch.CommitRecord(ctx, doctorCap, sampleInput(f.patient.ID))
	require.NoError(t, err)
	second, err := f.orch.CommitRecord(ctx, doctorCap, sampleInput(f.patient.ID))
	require.NoError(t, err)

	assert.Equal(t, first.CID, second.CID, "identical content under a fixed clock pins to one identifier")

	payloads := f.pinner.Payloads()
	require.Len(t, payloads, 2)
	assert.Equal(t, payloads[0], payloads[1])
}

func TestCommitRecord_MissingLedgerAddress(t *testing.T) {
	f := newFixture(t, "rec-1")
	ctx := context.Background()

	bare := model.Patient{ID: "pat-2", UserID: "user-pat-2", CreatedAt: testTime, UpdatedAt: testTime}
	require.NoError(t, f.store.RegisterPatient(ctx,
		model.User{ID: "user-pat-2", Email: "p2@example.org", Name: "P2", Role: model.RolePatient, CreatedAt: testTime, UpdatedAt: testTime},
		bare,
	))
	ar, err := f.gate.RequestAccess(ctx, model.DoctorCapability{DoctorID: f.doctor.ID}, bare.ID, "consult", "")
	require.NoError(t, err)
	_, err = f.gate.ResolveAccess(ctx, model.PatientCapability{PatientID: bare.ID}, ar.ID, model.AccessApproved)
	require.NoError(t, err)

	_, err = f.orch.CommitRecord(ctx, model.DoctorCapability{DoctorID: f.doctor.ID}, sampleInput(bare.ID))
	require.True(t, fault.IsValidation(err), "got %v", err)
	assert.Zero(t, f.pinner.Calls(), "nothing pinned for an unanchorable patient")
}

func TestCommitRecord_ValidatesInput(t *testing.T) {
	f := newFixture(t, "rec-1")
	f.grantAccess(t)
	doctorCap := model.DoctorCapability{DoctorID: f.doctor.ID}

	_, err := f.orch.CommitRecord(context.Background(), doctorCap, Input{Title: "no patient"})
	assert.True(t, fault.IsValidation(err), "got %v", err)

	_, err = f.orch.CommitRecord(context.Background(), doctorCap, Input{PatientID: f.patient.ID})
	assert.True(t, fault.IsValidation(err), "got %v", err)
}

func TestCommitRecord_CustomPolicies(t *testing.T) {
	f := newFixture(t)
	f.grantAccess(t)

	var pinCalls, anchorCalls int
	orch := New(f.gate, f.store, f.pinner, f.anchor,
		WithIDGenerator(model.NewFixedIDGenerator("rec-1")),
		WithNow(func() time.Time { return testTime }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithPinPolicy(func(ctx context.Context, p pin.Pinner, payload []byte) (string, error) {
			pinCalls++
			return p.PinJSON(ctx, payload)
		}),
		WithAnchorPolicy(func(ctx context.Context, a ledger.Anchor, address, cid string) (string, error) {
			anchorCalls++
			return a.CreateRecord(ctx, address, cid)
		}),
	)

	rec, err := orch.CommitRecord(context.Background(),
		model.DoctorCapability{DoctorID: f.doctor.ID}, sampleInput(f.patient.ID))
	require.NoError(t, err)
	assert.Equal(t, model.SyncSynced, rec.SyncStatus)
	assert.Equal(t, 1, pinCalls)
	assert.Equal(t, 1, anchorCalls)
}

func TestRecordsForPatient(t *testing.T) {
	f := newFixture(t, "rec-1")
	f.grantAccess(t)
	ctx := context.Background()
	doctorCap := model.DoctorCapability{DoctorID: f.doctor.ID}

	_, err := f.orch.CommitRecord(ctx, doctorCap, sampleInput(f.patient.ID))
	require.NoError(t, err)

	recs, err := f.orch.RecordsForPatient(ctx, model.PatientCapability{PatientID: f.patient.ID}, f.patient.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	recs, err = f.orch.RecordsForPatient(ctx, doctorCap, f.patient.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	_, err = f.orch.RecordsForPatient(ctx, model.PatientCapability{PatientID: "other"}, f.patient.ID)
	assert.True(t, fault.IsAuthorization(err))

	_, err = f.orch.RecordsForPatient(ctx, model.DoctorCapability{DoctorID: "stranger"}, f.patient.ID)
	assert.True(t, fault.IsAuthorization(err))

	recs, err = f.orch.RecordsForPatient(ctx, model.AdminCapability{}, f.patient.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
