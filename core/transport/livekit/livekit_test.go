package livekit

import (
	"context"
	"errors"
	"testing"

	"github.com/koscakluka/ema-convai/core/transport"
)

func TestBytesToPCM16(t *testing.T) {
	samples := bytesToPCM16([]byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80, 0x07})

	expected := []int16{1, -1, -32768}
	if len(samples) != len(expected) {
		t.Fatalf("expected %d samples, got %d", len(expected), len(samples))
	}
	for i := range expected {
		if samples[i] != expected[i] {
			t.Fatalf("expected samples %v, got %v", expected, samples)
		}
	}
}

func TestRemoteSpeaking(t *testing.T) {
	testCases := []struct {
		name     string
		speakers []string
		expected bool
	}{
		{name: "nobody", speakers: nil, expected: false},
		{name: "only local", speakers: []string{"me"}, expected: false},
		{name: "agent", speakers: []string{"agent"}, expected: true},
		{name: "both", speakers: []string{"me", "agent"}, expected: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := remoteSpeaking(testCase.speakers, "me"); got != testCase.expected {
				t.Fatalf("expected %v, got %v", testCase.expected, got)
			}
		})
	}
}

func TestSendWithoutRoomFails(t *testing.T) {
	tr := New()

	if err := tr.Send(context.Background(), []byte(`{}`)); !errors.Is(err, transport.ErrNotConnected) {
		t.Fatalf("expected not connected, got %v", err)
	}
}

func TestDisconnectWithoutRoomIsNoop(t *testing.T) {
	tr := New()

	if err := tr.Disconnect(context.Background()); err != nil {
		t.Fatalf("expected disconnect to be a no-op, got %v", err)
	}
	if err := tr.Disconnect(context.Background()); err != nil {
		t.Fatalf("expected repeated disconnect to be a no-op, got %v", err)
	}
}

func TestMuteBeforeConnect(t *testing.T) {
	tr := New()

	if err := tr.SetMuted(true); err != nil {
		t.Fatalf("expected mute to succeed, got %v", err)
	}
	if !tr.IsMuted() {
		t.Fatalf("expected transport to be muted")
	}
}
