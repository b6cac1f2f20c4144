package transport

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// State of the managed scan-channel connection.
type State int32

const (
	Disconnected State = iota
	Connecting
	Ready
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

type Config struct {
	ScanEndpoint   string // bound SUB socket; scanners connect and publish here
	ResultEndpoint string // bound PUB socket; relays connect and subscribe here
	ScanTopic      string
	ResultTopic    string
}

// ScanHandler processes one inbound tag id. It must not panic; the recv
// loop calls it synchronously so decisions keep scan-arrival order.
type ScanHandler func(ctx context.Context, tagID string)

// recvTimeout bounds each blocking receive so the loop can notice context
// cancellation and socket loss.
const recvTimeout = 500 * time.Millisecond

// reconnectDelay paces rebind attempts after a socket error.
const reconnectDelay = 2 * time.Second

// ZMQTransport is the event transport between the coordinator and the
// scanner hardware: scan events in over a SUB socket, single-character
// decision signals out over a PUB socket.
type ZMQTransport struct {
	cfg    Config
	logger *log.Logger

	zctx *zmq.Context

	pubMu sync.Mutex
	pub   *zmq.Socket

	state atomic.Int32
}

func New(cfg Config, logger *log.Logger) (*ZMQTransport, error) {
	zctx, err := zmq.NewContext()
	if err != nil {
		return nil, fmt.Errorf("zmq context: %w", err)
	}

	pub, err := zctx.NewSocket(zmq.PUB)
	if err != nil {
		_ = zctx.Term()
		return nil, fmt.Errorf("result socket: %w", err)
	}
	if err := pub.Bind(cfg.ResultEndpoint); err != nil {
		_ = pub.Close()
		_ = zctx.Term()
		return nil, fmt.Errorf("bind %s: %w", cfg.ResultEndpoint, err)
	}

	t := &ZMQTransport{
		cfg:    cfg,
		logger: logger,
		zctx:   zctx,
		pub:    pub,
	}
	t.state.Store(int32(Disconnected))
	return t, nil
}

// State returns the scan-channel connection state.
func (t *ZMQTransport) State() State {
	return State(t.state.Load())
}

// PublishDecision sends one decision signal on the result channel.
func (t *ZMQTransport) PublishDecision(_ context.Context, signal string) error {
	t.pubMu.Lock()
	defer t.pubMu.Unlock()
	if t.pub == nil {
		return fmt.Errorf("transport closed")
	}
	if _, err := t.pub.SendMessage(t.cfg.ResultTopic, signal); err != nil {
		return fmt.Errorf("publish decision: %w", err)
	}
	return nil
}

// Run owns the scan-channel SUB socket and blocks until ctx is cancelled,
// handing each scan payload to handle. Socket loss moves the connection
// back to Disconnected and rebinding is retried until it succeeds; the
// decision logic never sees connection management.
func (t *ZMQTransport) Run(ctx context.Context, handle ScanHandler) {
	defer t.state.Store(int32(Disconnected))

	for {
		if ctx.Err() != nil {
			return
		}

		t.state.Store(int32(Connecting))
		sub, err := t.openScanSocket()
		if err != nil {
			t.logger.Printf("scan channel: %v", err)
			t.state.Store(int32(Disconnected))
			if !sleepCtx(ctx, reconnectDelay) {
				return
			}
			continue
		}

		t.state.Store(int32(Ready))
		t.logger.Printf("scan channel ready on %s (topic %q)", t.cfg.ScanEndpoint, t.cfg.ScanTopic)

		err = t.recvLoop(ctx, sub, handle)
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}

		t.state.Store(int32(Disconnected))
		t.logger.Printf("scan channel lost: %v", err)
		if !sleepCtx(ctx, reconnectDelay) {
			return
		}
	}
}

func (t *ZMQTransport) openScanSocket() (*zmq.Socket, error) {
	sub, err := t.zctx.NewSocket(zmq.SUB)
	if err != nil {
		return nil, fmt.Errorf("scan socket: %w", err)
	}
	if err := sub.SetSubscribe(t.cfg.ScanTopic); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %q: %w", t.cfg.ScanTopic, err)
	}
	if err := sub.SetRcvtimeo(recvTimeout); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("set rcvtimeo: %w", err)
	}
	if err := sub.Bind(t.cfg.ScanEndpoint); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("bind %s: %w", t.cfg.ScanEndpoint, err)
	}
	return sub, nil
}

func (t *ZMQTransport) recvLoop(ctx context.Context, sub *zmq.Socket, handle ScanHandler) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		parts, err := sub.RecvMessage(0)
		if err != nil {
			if zmq.AsErrno(err) == zmq.Errno(syscall.EAGAIN) {
				continue // receive timeout; poll ctx again
			}
			return err
		}

		payload, ok := ParseScanFrames(parts, t.cfg.ScanTopic)
		if !ok {
			// Message on an unrelated topic; not ours to interpret.
			continue
		}
		if payload == "" {
			continue
		}
		handle(ctx, payload)
	}
}

// Close releases the publish socket and the underlying context. Run must
// have returned before Close is called.
func (t *ZMQTransport) Close() {
	t.pubMu.Lock()
	if t.pub != nil {
		_ = t.pub.Close()
		t.pub = nil
	}
	t.pubMu.Unlock()
	_ = t.zctx.Term()
}

// ParseScanFrames extracts the scan payload from a topic-framed message.
// Scanners publish two frames: the topic and the raw tag id text.
func ParseScanFrames(parts []string, topic string) (string, bool) {
	if len(parts) != 2 || parts[0] != topic {
		return "", false
	}
	return parts[1], true
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
