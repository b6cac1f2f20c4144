package notify

import (
	"encoding/json"
	"time"

	"github.com/taggate-io/taggate/server/internal/taggate/types"
)

// Event kinds pushed to observers.
const (
	EventCredentialStateChanged = "credential-state-changed"
	EventCredentialEnrolled     = "credential-enrolled"
	EventAuditAppended          = "audit-appended"
)

// Envelope wraps every pushed event.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type stateChangedPayload struct {
	CredentialID string `json:"credential_id"`
	Active       bool   `json:"active"`
}

type enrolledPayload struct {
	Credential types.Credential `json:"credential"`
}

type auditAppendedPayload struct {
	Record types.AuditRecord `json:"record"`
}

// The Hub implements service.Notifier. Marshal failures cannot occur for
// these payload types, so errors are ignored.

func (h *Hub) CredentialStateChanged(id string, active bool) {
	h.push(EventCredentialStateChanged, stateChangedPayload{CredentialID: id, Active: active})
}

func (h *Hub) CredentialEnrolled(cred types.Credential) {
	h.push(EventCredentialEnrolled, enrolledPayload{Credential: cred})
}

func (h *Hub) AuditAppended(rec types.AuditRecord) {
	h.push(EventAuditAppended, auditAppendedPayload{Record: rec})
}

func (h *Hub) push(eventType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Printf("marshal %s payload: %v", eventType, err)
		return
	}
	env := Envelope{
		Type:      eventType,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Printf("marshal %s envelope: %v", eventType, err)
		return
	}
	h.broadcast(data)
}
