// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/frankframework/relay-tunnel/pkg/auth"
	"github.com/frankframework/relay-tunnel/pkg/bus"
	"github.com/frankframework/relay-tunnel/pkg/hybrid"
	"github.com/frankframework/relay-tunnel/pkg/relay"
	"github.com/frankframework/relay-tunnel/pkg/switchboard"
)

// randomPort returns a random open TCP port.
func randomPort(t *testing.T) (port int) {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}

	port = l.Addr().(*net.TCPAddr).Port

	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	return
}

func mustProvider(t *testing.T, cn string) *hybrid.Provider {
	t.Helper()

	kp, err := hybrid.NewSelfSignedKeyPair(cn, 2048)
	if err != nil {
		t.Fatal(err)
	}

	p, err := hybrid.NewProvider(kp)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

// testRelay is a development Switchboard on a loopback HTTP server.
type testRelay struct {
	sb        *switchboard.Switchboard
	srv       *httptest.Server
	endpoints relay.Endpoints
}

func startRelay(t *testing.T, opts ...switchboard.Option) *testRelay {
	t.Helper()

	sb := switchboard.NewSwitchboard(opts...)
	srv := httptest.NewServer(sb)
	t.Cleanup(func() {
		sb.Close()
		srv.Close()
	})

	return &testRelay{
		sb:        sb,
		srv:       srv,
		endpoints: relay.Endpoints{API: srv.URL + "/api"},
	}
}

func (tr *testRelay) websocketURL() string {
	return "ws" + strings.TrimPrefix(tr.srv.URL, "http") + "/ws"
}

// agentKey waits until the agent is listed and returns its announced public key.
func (tr *testRelay) agentKey(t *testing.T, clientID uuid.UUID) *rsa.PublicKey {
	t.Helper()

	for i := 0; i < 100; i++ {
		for _, entry := range tr.sb.Agents() {
			if entry.ClientID != clientID {
				continue
			}

			key, err := hybrid.ParsePublicKeyBase64(entry.PublicKey)
			if err != nil {
				t.Fatal(err)
			}
			return key
		}
		time.Sleep(20 * time.Millisecond)
	}

	t.Fatalf("agent %v was not listed by the relay", clientID)
	return nil
}

// startGateway runs a Gateway against the relay until the test ends.
func startGateway(t *testing.T, tr *testRelay, console *testConsole, dispatcher bus.Dispatcher, modify func(*Config)) *Gateway {
	t.Helper()

	config := Config{
		InstanceName:    "ibis",
		InstanceVersion: "8.1",
		InstanceType:    "frankframework",
		URL:             tr.websocketURL(),
		Backoff:         Backoff{Initial: 50 * time.Millisecond, Max: 200 * time.Millisecond, Multiplier: 2},
	}
	if modify != nil {
		modify(&config)
	}

	verifier := auth.NewVerifier(auth.NewStaticKeySource(console.provider.PublicKey()), auth.WithIssuer("console"))

	g, err := NewGateway(config, mustProvider(t, "agent"), verifier, dispatcher)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- g.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		if err := <-runErr; err != nil {
			t.Errorf("gateway errored: %v", err)
		}
	})

	return g
}

func waitForState(t *testing.T, g *Gateway, state State) {
	t.Helper()

	for i := 0; i < 100; i++ {
		if g.State() == state {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("gateway did not reach %v, is %v", state, g.State())
}

// testConsole mimics a console by hand, independent of the console package.
type testConsole struct {
	provider *hybrid.Provider
	issuer   *auth.Issuer
	relay    *testRelay
}

func newTestConsole(t *testing.T, tr *testRelay) *testConsole {
	p := mustProvider(t, "console")
	return &testConsole{
		provider: p,
		issuer:   auth.NewIssuer(p.KeyPair().PrivateKey, "console", time.Minute),
		relay:    tr,
	}
}

// post an envelope with the plaintext, returning the HTTP status and, if present, the decrypted reply.
func (tc *testConsole) post(t *testing.T, url string, plaintext []byte, agentKey *rsa.PublicKey, authentication relay.Authentication) (int, relay.RelayEnvelope, []byte) {
	t.Helper()

	ciphertext, err := tc.provider.EncryptHybrid(plaintext, agentKey)
	if err != nil {
		t.Fatal(err)
	}

	request := relay.NewEnvelope(ciphertext, authentication)
	data, err := request.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(url, "application/octet-stream", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, request, nil
	}

	reply, err := relay.ParseEnvelope(body)
	if err != nil {
		t.Fatal(err)
	}
	if reply.MessageID != request.MessageID {
		t.Fatalf("reply id %v differs from request id %v", reply.MessageID, request.MessageID)
	}

	replyPlaintext, err := tc.provider.DecryptHybrid(reply.Payload)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, request, replyPlaintext
}

func (tc *testConsole) handshake(t *testing.T, clientID uuid.UUID, agentKey *rsa.PublicKey) {
	t.Helper()

	publicKey, err := tc.provider.PublicKeyBase64()
	if err != nil {
		t.Fatal(err)
	}
	pkm, _ := json.Marshal(relay.PublicKeyMessage{PublicKey: publicKey})

	status, _, plaintext := tc.post(t, tc.relay.endpoints.SendSync(clientID), pkm, agentKey, relay.Authentication{})
	if status != http.StatusOK {
		t.Fatalf("handshake failed with status %d", status)
	}

	var ack relay.StatusMessage
	if err := json.Unmarshal(plaintext, &ack); err != nil {
		t.Fatal(err)
	} else if ack.Status != relay.StatusOK {
		t.Fatalf("unexpected handshake acknowledgement %v", ack)
	}
}

func (tc *testConsole) token(t *testing.T) relay.Authentication {
	t.Helper()

	token, err := tc.issuer.Issue(auth.Identity{Subject: "admin", Roles: []string{"IbisAdmin"}})
	if err != nil {
		t.Fatal(err)
	}
	return relay.WithToken(token)
}

func (tc *testConsole) message(t *testing.T, topic bus.Topic, action bus.Action, callType relay.CallType, payload interface{}) []byte {
	t.Helper()

	data, err := relay.NewMessage(payload, relay.Headers{
		relay.HeaderTopic:  string(topic),
		relay.HeaderAction: string(action),
		relay.HeaderType:   string(callType),
	}).Marshal()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// call synchronously and parse the reply.
func (tc *testConsole) call(t *testing.T, clientID uuid.UUID, agentKey *rsa.PublicKey, plaintext []byte, authentication relay.Authentication) (int, relay.SwitchBoardMessage[json.RawMessage]) {
	t.Helper()

	status, _, replyPlaintext := tc.post(t, tc.relay.endpoints.SendSync(clientID), plaintext, agentKey, authentication)
	if replyPlaintext == nil {
		return status, relay.SwitchBoardMessage[json.RawMessage]{}
	}

	reply, err := relay.ParseMessage[json.RawMessage](replyPlaintext)
	if err != nil {
		t.Fatal(err)
	}
	return status, reply
}
