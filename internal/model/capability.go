package model

// Capability is the closed set of caller identities an entry point accepts.
//
// Each operation declares which variant it requires and rejects the others
// with an authorization fault. This replaces role-string comparison at call
// sites: the compiler sees every variant, and a caller cannot present a
// doctor identity while holding only a patient profile.
//
// The interface is sealed - only the three variants below implement it.
type Capability interface {
	capability()
}

// DoctorCapability identifies a caller acting as a doctor.
type DoctorCapability struct {
	DoctorID string
}

// PatientCapability identifies a caller acting as a patient.
type PatientCapability struct {
	PatientID string
}

// AdminCapability identifies an administrative caller.
type AdminCapability struct{}

func (DoctorCapability) capability()  {}
func (PatientCapability) capability() {}
func (AdminCapability) capability()   {}
