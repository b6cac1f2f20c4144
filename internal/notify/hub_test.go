package notify_test

import (
	"encoding/json"
	"io"
	"log"
	"testing"
	"time"

	"github.com/taggate-io/taggate/server/internal/notify"
	"github.com/taggate-io/taggate/server/internal/taggate/types"
)

func newTestHub() *notify.Hub {
	return notify.NewHub(log.New(io.Discard, "", 0))
}

func recvEnvelope(t *testing.T, c *notify.Client) notify.Envelope {
	t.Helper()
	select {
	case raw := <-c.Send:
		var env notify.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return notify.Envelope{}
	}
}

func TestHub_StateChanged_ReachesAllClients(t *testing.T) {
	h := newTestHub()
	c1 := h.NewClient()
	c2 := h.NewClient()
	defer h.Unregister(c1)
	defer h.Unregister(c2)

	h.CredentialStateChanged("A1", true)

	for _, c := range []*notify.Client{c1, c2} {
		env := recvEnvelope(t, c)
		if env.Type != notify.EventCredentialStateChanged {
			t.Errorf("expected type %q, got %q", notify.EventCredentialStateChanged, env.Type)
		}
		var payload struct {
			CredentialID string `json:"credential_id"`
			Active       bool   `json:"active"`
		}
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if payload.CredentialID != "A1" || !payload.Active {
			t.Errorf("unexpected payload: %+v", payload)
		}
		if env.CreatedAt.IsZero() {
			t.Error("expected created_at to be set")
		}
	}
}

func TestHub_Enrolled_CarriesCredential(t *testing.T) {
	h := newTestHub()
	c := h.NewClient()
	defer h.Unregister(c)

	h.CredentialEnrolled(types.Credential{ID: "A1", Active: true})

	env := recvEnvelope(t, c)
	if env.Type != notify.EventCredentialEnrolled {
		t.Fatalf("expected type %q, got %q", notify.EventCredentialEnrolled, env.Type)
	}
	var payload struct {
		Credential types.Credential `json:"credential"`
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Credential.ID != "A1" || !payload.Credential.Active {
		t.Errorf("unexpected credential: %+v", payload.Credential)
	}
}

func TestHub_AuditAppended_CarriesRecord(t *testing.T) {
	h := newTestHub()
	c := h.NewClient()
	defer h.Unregister(c)

	h.AuditAppended(types.AuditRecord{ID: 7, CredentialID: "D4", Result: types.ResultRejected})

	env := recvEnvelope(t, c)
	if env.Type != notify.EventAuditAppended {
		t.Fatalf("expected type %q, got %q", notify.EventAuditAppended, env.Type)
	}
	var payload struct {
		Record types.AuditRecord `json:"record"`
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Record.ID != 7 || payload.Record.Result != types.ResultRejected {
		t.Errorf("unexpected record: %+v", payload.Record)
	}
}

func TestHub_SlowClient_DropsInsteadOfBlocking(t *testing.T) {
	h := newTestHub()
	c := h.NewClient()
	defer h.Unregister(c)

	// Overfill the client's buffer; the broadcast must not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 64; i++ {
			h.CredentialStateChanged("A1", i%2 == 0)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
}

func TestHub_Unregister_ClosesSendChannel(t *testing.T) {
	h := newTestHub()
	c := h.NewClient()

	if h.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", h.ClientCount())
	}

	h.Unregister(c)
	h.Unregister(c) // second unregister is a no-op

	if h.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", h.ClientCount())
	}
	if _, ok := <-c.Send; ok {
		t.Error("expected send channel closed after unregister")
	}

	// Broadcasting with no clients must be harmless.
	h.CredentialStateChanged("A1", true)
}
