package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/taggate-io/taggate/server/internal/taggate/store"
	"github.com/taggate-io/taggate/server/internal/taggate/types"
)

// Decision signals published to the scanner hardware. Exactly one is
// emitted per processed scan.
const (
	SignalGrant = "1"
	SignalDeny  = "0"
)

var ErrInvalidTagID = errors.New("tag id is required")

// DecisionPublisher sends the single-character decision signal back on the
// result channel.
type DecisionPublisher interface {
	PublishDecision(ctx context.Context, signal string) error
}

// Notifier pushes state changes to live observers. All methods are
// best-effort; failures must not affect the decision path.
type Notifier interface {
	CredentialStateChanged(id string, active bool)
	CredentialEnrolled(cred types.Credential)
	AuditAppended(rec types.AuditRecord)
}

// Decision is the terminal outcome of one scan.
type Decision struct {
	TagID    string
	Signal   string           // "1" or "0", always set
	Result   types.ScanResult // meaningful only when StoreErr is nil
	Active   bool             // credential state after the scan
	Enrolled bool             // a new credential was created

	Credential types.Credential  // set when Enrolled
	Audit      types.AuditRecord // set when Audited
	Audited    bool

	// StoreErr is set when a store failure forced the safe-default deny.
	// The scan's intended effect is permanently lost; physical scans are
	// not re-playable.
	StoreErr error
}

type CoordinatorConfig struct {
	// MaxEnrolled is the enrollment ceiling. Defaults to 3.
	MaxEnrolled int

	// IdleTimeout is the inactivity auto-lock delay. 0 disables it.
	IdleTimeout time.Duration
}

// Coordinator turns a raw scan event into a persisted decision, an
// outbound signal and a broadcast notification. A single mutex serializes
// every read-decide-write sequence, so overlapping scans of the same tag
// cannot both observe the same prior state and the ceiling check-then-insert
// cannot over-enroll. The idle lockdown competes for the same mutex.
type Coordinator struct {
	mu       sync.Mutex
	creds    store.CredentialStore
	audit    store.AuditStore
	signals  DecisionPublisher
	notifier Notifier
	monitor  *InactivityMonitor

	maxEnrolled int
	logger      *log.Logger
}

func NewCoordinator(
	cfg CoordinatorConfig,
	creds store.CredentialStore,
	audit store.AuditStore,
	signals DecisionPublisher,
	notifier Notifier,
	logger *log.Logger,
) *Coordinator {
	if cfg.MaxEnrolled <= 0 {
		cfg.MaxEnrolled = 3
	}

	c := &Coordinator{
		creds:       creds,
		audit:       audit,
		signals:     signals,
		notifier:    notifier,
		maxEnrolled: cfg.MaxEnrolled,
		logger:      logger,
	}
	c.monitor = NewInactivityMonitor(cfg.IdleTimeout, c.lockdown, logger)
	return c
}

// HandleScan processes one scan event. For every non-empty tag id it
// rearms the inactivity deadline, applies the decision algorithm and emits
// exactly one decision signal, store failures included.
func (c *Coordinator) HandleScan(ctx context.Context, tagID string) (Decision, error) {
	tagID = strings.TrimSpace(tagID)
	if tagID == "" {
		return Decision{}, ErrInvalidTagID
	}

	// Every scan pushes the auto-lock deadline forward, regardless of
	// the decision outcome. Never skipped.
	c.monitor.Touch()

	c.mu.Lock()
	d := c.decide(ctx, tagID)
	c.mu.Unlock()

	if err := c.signals.PublishDecision(ctx, d.Signal); err != nil {
		// The local decision is final and durable; the hardware just
		// missed this signal.
		c.logger.Printf("publish decision for %s: %v", tagID, err)
	}

	c.notifyDecision(d)
	return d, nil
}

// decide runs the decision algorithm under the coordinator mutex.
func (c *Coordinator) decide(ctx context.Context, tagID string) Decision {
	d := Decision{TagID: tagID, Signal: SignalDeny}

	cred, err := c.creds.FindByID(ctx, tagID)
	switch {
	case err == nil:
		// Known credential: toggle on every scan.
		newActive := !cred.Active
		if err := c.creds.UpsertActive(ctx, tagID, newActive); err != nil {
			c.logger.Printf("toggle %s: %v", tagID, err)
			d.StoreErr = err
			return d
		}
		d.Active = newActive
		if newActive {
			d.Signal = SignalGrant
			d.Result = types.ResultActivated
		} else {
			d.Result = types.ResultDeactivated
		}

	case errors.Is(err, store.ErrNotFound):
		n, err := c.creds.CountEnrolled(ctx)
		if err != nil {
			c.logger.Printf("count enrolled: %v", err)
			d.StoreErr = err
			return d
		}
		if n < c.maxEnrolled {
			if err := c.creds.UpsertActive(ctx, tagID, true); err != nil {
				c.logger.Printf("enroll %s: %v", tagID, err)
				d.StoreErr = err
				return d
			}
			d.Signal = SignalGrant
			d.Result = types.ResultActivated
			d.Active = true
			d.Enrolled = true
			if full, err := c.creds.FindByID(ctx, tagID); err == nil {
				d.Credential = full
			} else {
				d.Credential = types.Credential{ID: tagID, Active: true}
			}
		} else {
			// Ceiling reached: no credential is created and the id is
			// not remembered, so every repeat scan re-audits as rejected.
			d.Result = types.ResultRejected
		}

	default:
		c.logger.Printf("lookup %s: %v", tagID, err)
		d.StoreErr = err
		return d
	}

	// Audit append is off the critical decision path: a failure here is
	// logged but does not change the already-made decision.
	rec, err := c.audit.Append(ctx, types.AuditRecord{
		CredentialID: tagID,
		Result:       d.Result,
	})
	if err != nil {
		c.logger.Printf("audit %s: %v", tagID, err)
	} else {
		d.Audit = rec
		d.Audited = true
	}

	return d
}

// ToggleCredential flips a known credential's active state on behalf of a
// dashboard operator. It runs under the same mutex as the scan path and
// appends an audit row, but it is not a scan: no decision signal goes out
// to the hardware and the inactivity deadline is untouched. Unknown ids
// are store.ErrNotFound, never an enrollment.
func (c *Coordinator) ToggleCredential(ctx context.Context, id string) (Decision, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Decision{}, ErrInvalidTagID
	}

	c.mu.Lock()
	d, err := c.toggle(ctx, id)
	c.mu.Unlock()
	if err != nil {
		return Decision{}, err
	}

	c.notifyDecision(d)
	return d, nil
}

func (c *Coordinator) toggle(ctx context.Context, id string) (Decision, error) {
	cred, err := c.creds.FindByID(ctx, id)
	if err != nil {
		return Decision{}, err
	}

	newActive := !cred.Active
	if err := c.creds.UpsertActive(ctx, id, newActive); err != nil {
		c.logger.Printf("toggle %s: %v", id, err)
		return Decision{}, err
	}

	d := Decision{TagID: id, Active: newActive}
	if newActive {
		d.Signal = SignalGrant
		d.Result = types.ResultActivated
	} else {
		d.Signal = SignalDeny
		d.Result = types.ResultDeactivated
	}
	if full, err := c.creds.FindByID(ctx, id); err == nil {
		d.Credential = full
	} else {
		d.Credential = types.Credential{ID: id, Active: newActive}
	}

	rec, err := c.audit.Append(ctx, types.AuditRecord{
		CredentialID: id,
		Result:       d.Result,
	})
	if err != nil {
		c.logger.Printf("audit %s: %v", id, err)
	} else {
		d.Audit = rec
		d.Audited = true
	}

	return d, nil
}

func (c *Coordinator) notifyDecision(d Decision) {
	if c.notifier == nil || d.StoreErr != nil {
		return
	}
	if d.Enrolled {
		c.notifier.CredentialEnrolled(d.Credential)
	}
	if d.Result != types.ResultRejected {
		c.notifier.CredentialStateChanged(d.TagID, d.Active)
	}
	if d.Audited {
		c.notifier.AuditAppended(d.Audit)
	}
}

// lockdown forces every credential inactive after sustained silence. It is
// a bulk, silent correction: no per-credential audit rows, no decision
// signals, no push events. The dashboard's polling fallback reconciles.
func (c *Coordinator) lockdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.creds.DeactivateAll(ctx)
	if err != nil {
		c.logger.Printf("idle lockdown: %v", err)
		return
	}
	c.logger.Printf("idle lockdown: deactivated %d credentials", n)
}

// Credentials returns the current credential list for the polling API.
func (c *Coordinator) Credentials(ctx context.Context) ([]types.Credential, error) {
	return c.creds.ListAll(ctx)
}

// RecentAudit returns up to n audit records, newest first.
func (c *Coordinator) RecentAudit(ctx context.Context, n int) ([]types.AuditRecord, error) {
	return c.audit.ListRecent(ctx, n)
}

// Monitor exposes the inactivity monitor for wiring and tests.
func (c *Coordinator) Monitor() *InactivityMonitor { return c.monitor }

// Close cancels any armed inactivity deadline and waits for an in-flight
// lockdown to finish, so the stores may be torn down afterwards.
func (c *Coordinator) Close() {
	c.monitor.Stop()
}
