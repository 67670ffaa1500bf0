package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/medledger/medledger/internal/model"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "medledger.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedDoctor registers a doctor with deterministic ids derived from suffix.
func seedDoctor(t *testing.T, s *Store, suffix string) model.Doctor {
	t.Helper()

	u := model.User{
		ID:        "user-doc-" + suffix,
		Email:     "doctor-" + suffix + "@example.org",
		Name:      "Dr. " + suffix,
		Role:      model.RoleDoctor,
		CreatedAt: testTime,
		UpdatedAt: testTime,
	}
	d := model.Doctor{
		ID:             "doc-" + suffix,
		UserID:         u.ID,
		Specialization: "cardiology",
		License:        "LIC-" + suffix,
		Hospital:       "General Hospital",
		CreatedAt:      testTime,
		UpdatedAt:      testTime,
	}
	if err := s.RegisterDoctor(context.Background(), u, d); err != nil {
		t.Fatalf("RegisterDoctor(%s) failed: %v", suffix, err)
	}
	return d
}

// seedPatient registers a patient with a ledger address already linked.
func seedPatient(t *testing.T, s *Store, suffix string) model.Patient {
	t.Helper()

	u := model.User{
		ID:        "user-pat-" + suffix,
		Email:     "patient-" + suffix + "@example.org",
		Name:      "Patient " + suffix,
		Role:      model.RolePatient,
		CreatedAt: testTime,
		UpdatedAt: testTime,
	}
	p := model.Patient{
		ID:            "pat-" + suffix,
		UserID:        u.ID,
		LedgerAddress: "0x00000000000000000000000000000000000000" + suffix,
		BloodType:     "O+",
		CreatedAt:     testTime,
		UpdatedAt:     testTime,
	}
	if err := s.RegisterPatient(context.Background(), u, p); err != nil {
		t.Fatalf("RegisterPatient(%s) failed: %v", suffix, err)
	}
	return p
}

func seedAccessRequest(t *testing.T, s *Store, id, doctorID, patientID string, status model.AccessStatus) model.AccessRequest {
	t.Helper()

	ar := model.AccessRequest{
		ID:        id,
		DoctorID:  doctorID,
		PatientID: patientID,
		Status:    model.AccessPending,
		Reason:    "consult",
		CreatedAt: testTime,
		UpdatedAt: testTime,
	}
	if err := s.CreateAccessRequest(context.Background(), ar); err != nil {
		t.Fatalf("CreateAccessRequest(%s) failed: %v", id, err)
	}
	if status != model.AccessPending {
		if err := s.ResolveAccessRequest(context.Background(), id, status, testTime); err != nil {
			t.Fatalf("ResolveAccessRequest(%s) failed: %v", id, err)
		}
		ar.Status = status
	}
	return ar
}
