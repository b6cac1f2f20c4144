package service_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/taggate-io/taggate/server/internal/taggate/service"
)

func TestInactivityMonitor_IdleUntilFirstTouch(t *testing.T) {
	m := service.NewInactivityMonitor(time.Hour, func() {}, silentLogger())
	defer m.Stop()

	if m.Armed() {
		t.Error("expected monitor idle before the first touch")
	}
	m.Touch()
	if !m.Armed() {
		t.Error("expected monitor armed after a touch")
	}
}

func TestInactivityMonitor_FiresOnceAfterSilence(t *testing.T) {
	var fired atomic.Int32
	m := service.NewInactivityMonitor(30*time.Millisecond, func() { fired.Add(1) }, silentLogger())
	defer m.Stop()

	m.Touch()
	time.Sleep(200 * time.Millisecond)

	if got := fired.Load(); got != 1 {
		t.Errorf("expected exactly 1 firing, got %d", got)
	}
	if m.Armed() {
		t.Error("expected monitor idle again after firing")
	}
}

func TestInactivityMonitor_RearmPreventsFire(t *testing.T) {
	var fired atomic.Int32
	m := service.NewInactivityMonitor(80*time.Millisecond, func() { fired.Add(1) }, silentLogger())
	defer m.Stop()

	// Touch at intervals well under the deadline; no firing may happen.
	for i := 0; i < 6; i++ {
		m.Touch()
		time.Sleep(20 * time.Millisecond)
	}
	if got := fired.Load(); got != 0 {
		t.Fatalf("expected no firing while active, got %d", got)
	}

	// Then go silent: exactly one firing.
	time.Sleep(300 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("expected 1 firing after silence, got %d", got)
	}
}

func TestInactivityMonitor_StopPreventsFire(t *testing.T) {
	var fired atomic.Int32
	m := service.NewInactivityMonitor(30*time.Millisecond, func() { fired.Add(1) }, silentLogger())

	m.Touch()
	m.Stop()
	m.Stop() // idempotent

	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Errorf("expected no firing after stop, got %d", got)
	}
}

func TestInactivityMonitor_StopWaitsForInFlightFire(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	m := service.NewInactivityMonitor(10*time.Millisecond, func() {
		close(started)
		<-release
		finished.Store(true)
	}, silentLogger())

	m.Touch()
	<-started

	// Stop must block while the expiry callback runs, so a caller tearing
	// down after Stop never races the lockdown's store writes.
	stopDone := make(chan struct{})
	go func() {
		m.Stop()
		close(stopDone)
	}()

	select {
	case <-stopDone:
		t.Fatal("Stop returned while the expiry callback was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopDone:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the callback finished")
	}
	if !finished.Load() {
		t.Error("expected the callback finished before Stop returned")
	}
}

func TestInactivityMonitor_DisabledWhenTimeoutZero(t *testing.T) {
	m := service.NewInactivityMonitor(0, func() { t.Error("must never fire") }, silentLogger())
	m.Touch()
	if m.Armed() {
		t.Error("expected disabled monitor to stay idle")
	}
	m.Stop()
}

// ── Coordinator integration ──────────────────────────────────────────────────

func TestCoordinator_IdleLockdown_DeactivatesAll(t *testing.T) {
	coord, creds, audit, _, events := newTestCoordinator(service.CoordinatorConfig{
		IdleTimeout: 40 * time.Millisecond,
	})
	defer coord.Close()
	ctx := context.Background()

	for _, id := range []string{"A1", "B2"} {
		if _, err := coord.HandleScan(ctx, id); err != nil {
			t.Fatalf("scan %s: %v", id, err)
		}
	}

	time.Sleep(250 * time.Millisecond)

	all, err := creds.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 credentials to survive lockdown, got %d", len(all))
	}
	for _, c := range all {
		if c.Active {
			t.Errorf("expected %s inactive after lockdown", c.ID)
		}
	}

	// The lockdown is silent: no extra audit rows, no extra push events.
	if got := len(audit.Records()); got != 2 {
		t.Errorf("expected 2 audit records (scans only), got %d", got)
	}
	states, _, _ := events.counts()
	if states != 2 {
		t.Errorf("expected 2 state-change events (scans only), got %d", states)
	}
}

func TestCoordinator_ScanRearmsDeadline_EvenWhenRejected(t *testing.T) {
	coord, _, _, _, _ := newTestCoordinator(service.CoordinatorConfig{
		MaxEnrolled: 1,
		IdleTimeout: time.Hour,
	})
	defer coord.Close()
	ctx := context.Background()

	if _, err := coord.HandleScan(ctx, "A1"); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	// A scan rejected at the ceiling must still rearm the deadline.
	d, err := coord.HandleScan(ctx, "B2")
	if err != nil {
		t.Fatalf("rejected scan: %v", err)
	}
	if d.Signal != service.SignalDeny {
		t.Fatalf("expected deny at ceiling, got %q", d.Signal)
	}
	if !coord.Monitor().Armed() {
		t.Error("expected deadline armed after a rejected scan")
	}
}

func TestCoordinator_LockdownSerializedWithScans(t *testing.T) {
	// A lockdown firing while scans are in flight must not interleave
	// with a decision: after everything settles the store is consistent
	// with some total order of the writes.
	coord, creds, _, _, _ := newTestCoordinator(service.CoordinatorConfig{
		IdleTimeout: 10 * time.Millisecond,
	})
	defer coord.Close()
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		if _, err := coord.HandleScan(ctx, "A1"); err != nil {
			t.Fatalf("scan %d: %v", i, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)

	cred, err := creds.FindByID(ctx, "A1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if cred.Active {
		t.Error("expected A1 inactive after final lockdown")
	}
}
