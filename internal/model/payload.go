package model

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// RecordContent is the payload handed to the content pinner.
//
// It carries the clinical fields plus the patient/doctor identities and the
// creation timestamp. Canonical encoding is deterministic: the same content
// always yields the same bytes, so the pinning service returns the same
// content identifier. Note the flip side: nothing deduplicates Record rows
// that share a cid - resubmitting identical content after a failure creates
// an independent row pointing at the same pinned payload.
type RecordContent struct {
	Title       string
	Diagnosis   string
	Treatment   string
	Medications string
	Notes       string
	PatientID   string
	DoctorID    string
	CreatedAt   int64 // unix seconds
}

// Canonical encodes the content as canonical JSON:
// keys in fixed sorted order, strings NFC-normalized, no HTML escaping,
// only control characters, backslash and quote escaped.
func (c RecordContent) Canonical() []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeCanonicalString(&buf, "created_at")
	fmt.Fprintf(&buf, ":%d", c.CreatedAt)
	writeField(&buf, "diagnosis", c.Diagnosis)
	writeField(&buf, "doctor_id", c.DoctorID)
	writeField(&buf, "medications", c.Medications)
	writeField(&buf, "notes", c.Notes)
	writeField(&buf, "patient_id", c.PatientID)
	writeField(&buf, "title", c.Title)
	writeField(&buf, "treatment", c.Treatment)
	buf.WriteByte('}')
	return buf.Bytes()
}

func writeField(buf *bytes.Buffer, key, value string) {
	buf.WriteByte(',')
	writeCanonicalString(buf, key)
	buf.WriteByte(':')
	writeCanonicalString(buf, value)
}

// writeCanonicalString writes s as a canonical JSON string.
//
// The string is NFC-normalized at the serialization boundary so visually
// identical input composed differently hashes identically. Unlike
// encoding/json, <, >, & and U+2028/U+2029 are written literally; only
// the characters JSON requires escaping for are escaped.
func writeCanonicalString(buf *bytes.Buffer, s string) {
	s = norm.NFC.String(s)

	buf.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == '"':
			buf.WriteString(`\"`)
		case r == '\\':
			buf.WriteString(`\\`)
		case r == '\b':
			buf.WriteString(`\b`)
		case r == '\f':
			buf.WriteString(`\f`)
		case r == '\n':
			buf.WriteString(`\n`)
		case r == '\r':
			buf.WriteString(`\r`)
		case r == '\t':
			buf.WriteString(`\t`)
		case r < 0x20:
			fmt.Fprintf(buf, `\u%04x`, r)
		default:
			buf.WriteString(s[i : i+size])
		}
		i += size
	}
	buf.WriteByte('"')
}
