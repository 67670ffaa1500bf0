// Package model defines the entities of the record-commitment pipeline and
// the canonical payload encoding used for content addressing.
package model

import "time"

// Role gates which capability a user may present. A user's role is set
// exactly once during onboarding and never changes afterwards.
type Role string

const (
	RoleUnassigned Role = "UNASSIGNED"
	RoleDoctor     Role = "DOCTOR"
	RolePatient    Role = "PATIENT"
	RoleAdmin      Role = "ADMIN"
)

// ValidRoles defines the allowed role values.
var ValidRoles = map[Role]bool{
	RoleUnassigned: true,
	RoleDoctor:     true,
	RolePatient:    true,
	RoleAdmin:      true,
}

// AccessStatus is the lifecycle state of an AccessRequest.
//
// The only legal transitions are PENDING→APPROVED and PENDING→DENIED.
// APPROVED and DENIED are terminal: re-requesting access creates a new
// AccessRequest, it never reopens an old one.
type AccessStatus string

const (
	AccessPending  AccessStatus = "PENDING"
	AccessApproved AccessStatus = "APPROVED"
	AccessDenied   AccessStatus = "DENIED"
)

// SyncStatus records how far a Record's commit pipeline progressed.
//
// A record is created PENDING and transitions at most once, to exactly one
// of SYNCED or FAILED. Both are terminal: there is no automatic re-anchor.
type SyncStatus string

const (
	SyncPending SyncStatus = "PENDING"
	SyncSynced  SyncStatus = "SYNCED"
	SyncFailed  SyncStatus = "FAILED"
)

// User is an identity with a role. Authentication happens outside this
// module; users exist here only so doctors and patients have an owner.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Doctor is the practitioner profile, 1:1 with a User.
type Doctor struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Specialization string    `json:"specialization"`
	License        string    `json:"license"`
	Hospital       string    `json:"hospital"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Patient is the patient profile, 1:1 with a User.
//
// LedgerAddress is the patient's account address on the ledger. It is empty
// until set and required before any record can be anchored for the patient.
type Patient struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	LedgerAddress string    `json:"ledger_address,omitempty"`
	DateOfBirth   string    `json:"date_of_birth,omitempty"`
	BloodType     string    `json:"blood_type,omitempty"`
	Allergies     string    `json:"allergies,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AccessRequest is a doctor's request to write records for a patient.
// An APPROVED request is a grant; grants are never revoked by later
// PENDING or DENIED requests for the same pair.
type AccessRequest struct {
	ID        string       `json:"id"`
	DoctorID  string       `json:"doctor_id"`
	PatientID string       `json:"patient_id"`
	Status    AccessStatus `json:"status"`
	Reason    string       `json:"reason"`
	Message   string       `json:"message,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Record is a clinical record committed through the pipeline.
//
// CID is set at creation and never changes; a FAILED record still references
// valid pinned content. BlockchainTx is set only on the transition to SYNCED
// and is empty otherwise.
type Record struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	CID          string     `json:"cid"`
	BlockchainTx string     `json:"blockchain_tx,omitempty"`
	SyncStatus   SyncStatus `json:"sync_status"`
	Diagnosis    string     `json:"diagnosis,omitempty"`
	Treatment    string     `json:"treatment,omitempty"`
	Medications  string     `json:"medications,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	PatientID    string     `json:"patient_id"`
	DoctorID     string     `json:"doctor_id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
