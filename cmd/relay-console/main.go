// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"

	"github.com/google/uuid"

	"github.com/frankframework/relay-tunnel/pkg/bus"
	"github.com/frankframework/relay-tunnel/pkg/console"
	"github.com/frankframework/relay-tunnel/pkg/relay"
)

// printUsage of relay-console and exit with an error code afterwards.
func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage of %s configuration.toml members|send|send-async:\n\n", os.Args[0])

	_, _ = fmt.Fprintf(os.Stderr, "%s configuration.toml members\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Lists all agents connected to the relay, handshaking new ones.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s configuration.toml send CLIENT-ID TOPIC ACTION [PAYLOAD]\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Sends a synchronous call to an agent and prints its reply.\n")
	_, _ = fmt.Fprintf(os.Stderr, "  PAYLOAD is a JSON value, e.g., '{\"name\": \"adapter\"}'.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s configuration.toml send-async CLIENT-ID TOPIC ACTION [PAYLOAD]\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Sends a fire-and-forget call to an agent.\n\n")

	os.Exit(1)
}

// printJSON to stdout.
func printJSON(v interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		log.WithError(err).Fatal("Printing result errored")
	}
}

// parseRequest from the CLIENT-ID TOPIC ACTION [PAYLOAD] arguments.
func parseRequest(args []string) (req bus.Request, err error) {
	if len(args) != 3 && len(args) != 4 {
		err = fmt.Errorf("expected CLIENT-ID TOPIC ACTION [PAYLOAD], got %d arguments", len(args))
		return
	}

	target, err := uuid.Parse(args[0])
	if err != nil {
		err = fmt.Errorf("invalid client id %q: %w", args[0], err)
		return
	}

	var payload interface{}
	if len(args) == 4 {
		if !json.Valid([]byte(args[3])) {
			err = fmt.Errorf("payload is no valid JSON")
			return
		}
		payload = json.RawMessage(args[3])
	}

	if req, err = bus.NewRequest(bus.Topic(args[1]), bus.Action(args[2]), payload); err != nil {
		return
	}
	req.Headers[relay.HeaderTarget] = target.String()
	return
}

func listMembers(ctx context.Context, g *console.Gateway) {
	printJSON(g.GetMembers(ctx))
}

func sendSync(ctx context.Context, g *console.Gateway, args []string) {
	req, err := parseRequest(args)
	if err != nil {
		log.WithError(err).Fatal("Parsing request errored")
	}

	resp, err := g.SendSyncMessage(ctx, req)
	if err != nil {
		log.WithError(err).Fatal("Synchronous call failed")
	}

	printJSON(struct {
		Status  int               `json:"status"`
		Headers map[string]string `json:"headers,omitempty"`
		Payload interface{}       `json:"payload,omitempty"`
	}{resp.Status, resp.Headers, resp.Payload})
}

func sendAsync(ctx context.Context, g *console.Gateway, args []string) {
	req, err := parseRequest(args)
	if err != nil {
		log.WithError(err).Fatal("Parsing request errored")
	}

	if err := g.SendAsyncMessage(ctx, req); err != nil {
		log.WithError(err).Fatal("Asynchronous call failed")
	}
	log.WithField("request", req.String()).Info("Sent asynchronous call")
}

func main() {
	if len(os.Args) < 3 {
		printUsage()
	}

	g, err := parseGateway(os.Args[1])
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Fatal("Failed to parse config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch os.Args[2] {
	case "members":
		listMembers(ctx, g)

	case "send":
		sendSync(ctx, g, os.Args[3:])

	case "send-async":
		sendAsync(ctx, g, os.Args[3:])

	default:
		printUsage()
	}
}
