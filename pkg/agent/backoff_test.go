// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestBackoffDelay(t *testing.T) {
	b := DefaultBackoff()

	tests := []struct {
		failures int
		expected time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{7, time.Minute},
		{1000, time.Minute},
	}

	for _, test := range tests {
		for i := 0; i < 20; i++ {
			delay := b.Delay(test.failures)
			min := time.Duration(float64(test.expected) * 0.8)
			max := time.Duration(float64(test.expected) * 1.2)

			if delay < min || delay > max {
				t.Fatalf("delay %v for %d failures is outside [%v, %v]", delay, test.failures, min, max)
			}
		}
	}
}

func TestBackoffDefaults(t *testing.T) {
	b := Backoff{Initial: 5 * time.Second}.withDefaults()
	if b.Max != time.Minute || b.Multiplier != 2 || b.Jitter != 0.2 {
		t.Fatalf("unexpected defaults %+v", b)
	}

	b = Backoff{Initial: 2 * time.Minute}.withDefaults()
	if b.Max != 2*time.Minute {
		t.Fatalf("max %v is below initial", b.Max)
	}

	b = Backoff{Initial: time.Second, Max: time.Second, Multiplier: 1, Jitter: 5}.withDefaults()
	if b.Jitter != 0.2 {
		t.Fatalf("out of range jitter was kept: %v", b.Jitter)
	}

	noJitter := Backoff{Initial: time.Second, Max: time.Second, Multiplier: 1, Jitter: NoJitter}.withDefaults()
	if noJitter.Jitter != NoJitter {
		t.Fatalf("disabled jitter was replaced by %v", noJitter.Jitter)
	}
	if d := noJitter.Delay(5); d != time.Second {
		t.Fatalf("expected a constant delay without jitter, got %v", d)
	}
}

func TestClassifyTransportError(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}

	tests := []struct {
		err  error
		kind TransportKind
	}{
		{&net.DNSError{Err: "no such host", Name: "relay.invalid", IsNotFound: true}, TransportDNS},
		{refused, TransportRefused},
		{fmt.Errorf("dialing: %w", context.DeadlineExceeded), TransportTimeout},
		{x509.UnknownAuthorityError{}, TransportTLS},
		{websocket.ErrBadHandshake, TransportHandshake},
		{&websocket.CloseError{Code: websocket.CloseGoingAway}, TransportClosed},
		{io.ErrUnexpectedEOF, TransportClosed},
		{errors.New("something else"), TransportUnknown},
	}

	for _, test := range tests {
		te := newTransportError("ws://relay/ws", test.err, nil)
		if te.Kind != test.kind {
			t.Fatalf("expected %v for %v, got %v", test.kind, test.err, te.Kind)
		} else if !errors.Is(te, test.err) {
			t.Fatalf("transport error does not wrap %v", test.err)
		}
	}

	// Classified errors are not wrapped twice.
	te := newTransportError("ws://relay/ws", refused, nil)
	if again := newTransportError("ws://other/ws", fmt.Errorf("wrapped: %w", te), nil); again != te {
		t.Fatal("transport error was classified twice")
	}
}

func TestStateString(t *testing.T) {
	for state, name := range map[State]string{
		Disconnected: "DISCONNECTED",
		Connecting:   "CONNECTING",
		Connected:    "CONNECTED",
		Established:  "ESTABLISHED",
		Closed:       "CLOSED",
		State(42):    "UNKNOWN",
	} {
		if state.String() != name {
			t.Fatalf("expected %s, got %s", name, state)
		}
	}

	var state State
	if err := state.UnmarshalText([]byte("ESTABLISHED")); err != nil || state != Established {
		t.Fatalf("expected ESTABLISHED, got %v: %v", state, err)
	}
	if err := state.UnmarshalText([]byte("UNKNOWN")); err == nil {
		t.Fatal("unknown state name was accepted")
	}
}
