// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"

	"github.com/frankframework/relay-tunnel/pkg/bus"
	"github.com/frankframework/relay-tunnel/pkg/hybrid"
	"github.com/frankframework/relay-tunnel/pkg/relay"
)

func TestParseGateway(t *testing.T) {
	dir := t.TempDir()

	kp, err := hybrid.NewSelfSignedKeyPair("console", 2048)
	if err != nil {
		t.Fatal(err)
	}

	certFile := filepath.Join(dir, "console.crt")
	keyFile := filepath.Join(dir, "console.key")
	if err := kp.WriteKeyPair(certFile, keyFile); err != nil {
		t.Fatal(err)
	}

	conf := fmt.Sprintf(`
[console]
name = "console"
roles = ["IbisAdmin"]
token-ttl = "1m"

[keys]
certificate = %q
private-key = %q

[switchboard]
api = "http://127.0.0.1:1/api"
timeout = "5s"
`, certFile, keyFile)

	filename := filepath.Join(dir, "configuration.toml")
	if err := os.WriteFile(filename, []byte(conf), 0644); err != nil {
		t.Fatal(err)
	}

	if g, err := parseGateway(filename); err != nil {
		t.Fatal(err)
	} else if g == nil {
		t.Fatal("no gateway was created")
	}
}

func TestParseGatewayInvalid(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "configuration.toml")
	if err := os.WriteFile(filename, []byte("[console]\ntoken-ttl = \"forever\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := parseGateway(filename)

	// name, api, certificate, private-key, token-ttl
	var merr *multierror.Error
	if !errors.As(err, &merr) || len(merr.Errors) != 5 {
		t.Fatalf("expected five errors, got %v", err)
	}
}

func TestParseRequest(t *testing.T) {
	target := "5f0c3c1e-2e57-4a53-9d8e-1b2f7b0c9a11"

	req, err := parseRequest([]string{target, "ADAPTER", "FIND", `{"name": "adapter"}`})
	if err != nil {
		t.Fatal(err)
	}
	if req.Topic != bus.TopicAdapter || req.Action != bus.ActionFind {
		t.Fatalf("unexpected request %v", req)
	}
	if req.Headers[relay.HeaderTarget] != target {
		t.Fatalf("unexpected target header %q", req.Headers[relay.HeaderTarget])
	}

	var payload struct{ Name string }
	if err := req.Decode(&payload); err != nil || payload.Name != "adapter" {
		t.Fatalf("unexpected payload %s: %v", req.Payload, err)
	}

	if req, err := parseRequest([]string{target, "HEALTH", "GET"}); err != nil {
		t.Fatal(err)
	} else if len(req.Payload) != 0 {
		t.Fatalf("unexpected payload %s", req.Payload)
	}

	for _, args := range [][]string{
		{target, "HEALTH"},
		{"agent", "HEALTH", "GET"},
		{target, "HEALTH", "GET", "{broken"},
	} {
		if _, err := parseRequest(args); err == nil {
			t.Fatalf("arguments %v were accepted", args)
		}
	}
}
