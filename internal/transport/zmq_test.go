package transport_test

import (
	"testing"

	"github.com/taggate-io/taggate/server/internal/transport"
)

func TestParseScanFrames(t *testing.T) {
	cases := []struct {
		name    string
		parts   []string
		topic   string
		payload string
		ok      bool
	}{
		{"scan frame", []string{"rfid.scan", "AABBCCDD"}, "rfid.scan", "AABBCCDD", true},
		{"other topic", []string{"rfid.decision", "1"}, "rfid.scan", "", false},
		{"missing payload", []string{"rfid.scan"}, "rfid.scan", "", false},
		{"extra frames", []string{"rfid.scan", "AABBCCDD", "junk"}, "rfid.scan", "", false},
		{"empty", nil, "rfid.scan", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload, ok := transport.ParseScanFrames(tc.parts, tc.topic)
			if ok != tc.ok || payload != tc.payload {
				t.Errorf("ParseScanFrames(%v) = %q, %v; want %q, %v",
					tc.parts, payload, ok, tc.payload, tc.ok)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	if transport.Disconnected.String() != "disconnected" ||
		transport.Connecting.String() != "connecting" ||
		transport.Ready.String() != "ready" {
		t.Error("unexpected state names")
	}
}
