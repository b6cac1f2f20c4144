package types

import "time"

// Credential is one enrolled tag identifier and its check-in state.
// The id is stored exactly as scanned, never reformatted.
type Credential struct {
	ID         string    `json:"credential_id"`
	Active     bool      `json:"active"`
	EnrolledAt time.Time `json:"enrolled_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ScanResult is the terminal outcome of one scan, as recorded in the
// audit log. The numeric values are part of the stored format.
type ScanResult int

const (
	ResultDeactivated ScanResult = 0 // known tag toggled off
	ResultActivated   ScanResult = 1 // known tag toggled on, or new tag enrolled
	ResultRejected    ScanResult = 2 // unknown tag denied at the enrollment ceiling
)

func (r ScanResult) String() string {
	switch r {
	case ResultDeactivated:
		return "deactivated"
	case ResultActivated:
		return "activated"
	case ResultRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// AuditRecord is one immutable audit-log entry per processed scan.
type AuditRecord struct {
	ID           int64      `json:"audit_id"`
	CredentialID string     `json:"credential_id"`
	Result       ScanResult `json:"result"`
	LoggedAt     time.Time  `json:"logged_at"`
}
