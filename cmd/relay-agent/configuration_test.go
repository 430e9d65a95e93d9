// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/frankframework/relay-tunnel/pkg/agent"
	"github.com/frankframework/relay-tunnel/pkg/auth"
	"github.com/frankframework/relay-tunnel/pkg/bus"
	"github.com/frankframework/relay-tunnel/pkg/hybrid"
)

const clientID = "5f0c3c1e-2e57-4a53-9d8e-1b2f7b0c9a11"

// writeConfig creates key material and a configuration file within a temporary directory.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()

	dir := t.TempDir()

	agentKeys, err := hybrid.NewSelfSignedKeyPair("agent", 2048)
	if err != nil {
		t.Fatal(err)
	}
	consoleKeys, err := hybrid.NewSelfSignedKeyPair("console", 2048)
	if err != nil {
		t.Fatal(err)
	}

	certFile := filepath.Join(dir, "agent.crt")
	keyFile := filepath.Join(dir, "agent.key")
	trustStore := filepath.Join(dir, "truststore.pem")

	if err := agentKeys.WriteKeyPair(certFile, keyFile); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(trustStore, consoleKeys.CertificatePEM(), 0644); err != nil {
		t.Fatal(err)
	}

	conf := fmt.Sprintf(`
[core]
client-id = %q
instance-name = "ibis4test"
instance-version = "7.9"

[logging]
level = "debug"

[keys]
certificate = %q
private-key = %q
trust-store = %q
trust-alias = "console"

[switchboard]
websocket = "ws://127.0.0.1:1/ws"
connect-timeout = "2s"

[reconnect]
initial = "100ms"
max = "5s"
max-attempts = 3

[auth]
issuer = "console"
leeway = "10s"
%s
`, clientID, certFile, keyFile, trustStore, extra)

	filename := filepath.Join(dir, "configuration.toml")
	if err := os.WriteFile(filename, []byte(conf), 0644); err != nil {
		t.Fatal(err)
	}
	return filename
}

func TestParseConfig(t *testing.T) {
	conf, err := parseConfig(writeConfig(t, ""))
	if err != nil {
		t.Fatal(err)
	}

	c := conf.gatewayConfig()
	if c.ClientID.String() != clientID {
		t.Fatalf("unexpected client id %v", c.ClientID)
	}
	if c.InstanceName != "ibis4test" || c.InstanceVersion != "7.9" {
		t.Fatalf("unexpected instance %q %q", c.InstanceName, c.InstanceVersion)
	}
	if c.ConnectTimeout != 2*time.Second {
		t.Fatalf("unexpected connect timeout %v", c.ConnectTimeout)
	}
	if c.Backoff.Initial != 100*time.Millisecond || c.Backoff.Max != 5*time.Second {
		t.Fatalf("unexpected backoff %+v", c.Backoff)
	}
	// An unset jitter is left to the gateway's default.
	if c.Backoff.Jitter != 0 {
		t.Fatalf("unexpected jitter %v", c.Backoff.Jitter)
	}
	if c.MaxAttempts != 3 {
		t.Fatalf("unexpected max attempts %d", c.MaxAttempts)
	}
}

func TestParseConfigInvalid(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "configuration.toml")
	conf := `
[core]
client-id = "not-an-uuid"

[switchboard]
connect-timeout = "soon"

[reconnect]
jitter = 1.5
`
	if err := os.WriteFile(filename, []byte(conf), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := parseConfig(filename)

	var merr *multierror.Error
	if !errors.As(err, &merr) {
		t.Fatalf("expected a multierror, got %v", err)
	}

	// instance-name, client-id, certificate, private-key, trust-store, websocket, connect-timeout, jitter
	if len(merr.Errors) != 8 {
		t.Fatalf("expected eight errors, got %d: %v", len(merr.Errors), err)
	}

	for _, field := range []string{"core.instance-name", "core.client-id", "switchboard.connect-timeout", "reconnect.jitter"} {
		if !strings.Contains(err.Error(), field) {
			t.Fatalf("error does not mention %s: %v", field, err)
		}
	}
}

func TestParseDaemon(t *testing.T) {
	d, err := parseDaemon(writeConfig(t, "watch-trust-store = true\n\n[probe]\nlisten = \"127.0.0.1:0\"\n"))
	if err != nil {
		t.Fatal(err)
	}

	if d.gateway.ClientID().String() != clientID {
		t.Fatalf("unexpected client id %v", d.gateway.ClientID())
	}
	if d.keys == nil {
		t.Fatal("trust store watcher is not configured")
	}
	if d.probe == nil || d.probe.Addr != "127.0.0.1:0" {
		t.Fatal("probe listener is not configured")
	}

	routes := strings.Join(d.router.Routes(), ",")
	if routes != "APPLICATION/GET,HEALTH/GET" {
		t.Fatalf("unexpected routes %s", routes)
	}

	ctx := auth.NewContext(context.Background(), auth.Identity{Subject: "admin"})
	req, err := bus.NewRequest(bus.TopicApplication, bus.ActionGet, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := d.router.DispatchSync(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	var info applicationInfo
	if err := resp.Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.InstanceName != "ibis4test" || info.ClientID.String() != clientID || len(info.Routes) != 2 {
		t.Fatalf("unexpected application info %+v", info)
	}
}

func TestParseDaemonMissingTrustStore(t *testing.T) {
	filename := writeConfig(t, "")
	if err := os.Remove(filepath.Join(filepath.Dir(filename), "truststore.pem")); err != nil {
		t.Fatal(err)
	}

	if _, err := parseDaemon(filename); err == nil {
		t.Fatal("missing trust store was accepted")
	}
}

type staticHealth agent.Health

func (h staticHealth) Health() agent.Health {
	return agent.Health(h)
}

func TestProbeHandler(t *testing.T) {
	tests := []struct {
		health agent.Health
		status int
	}{
		{agent.Health{State: agent.Established, Healthy: true}, http.StatusOK},
		{agent.Health{State: agent.Disconnected, ConsecutiveFailures: 5, LastError: "refused"}, http.StatusServiceUnavailable},
	}

	for _, test := range tests {
		srv := httptest.NewServer(newProbeHandler(staticHealth(test.health)))

		resp, err := http.Get(srv.URL + "/health")
		if err != nil {
			srv.Close()
			t.Fatal(err)
		}

		var health agent.Health
		decodeErr := json.NewDecoder(resp.Body).Decode(&health)
		_ = resp.Body.Close()
		srv.Close()

		if resp.StatusCode != test.status {
			t.Fatalf("expected status %d, got %d", test.status, resp.StatusCode)
		}
		if decodeErr != nil {
			t.Fatal(decodeErr)
		}
		if health.State != test.health.State || health.ConsecutiveFailures != test.health.ConsecutiveFailures {
			t.Fatalf("unexpected health %+v", health)
		}
	}
}
