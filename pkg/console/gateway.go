// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package console

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/frankframework/relay-tunnel/pkg/auth"
	"github.com/frankframework/relay-tunnel/pkg/bus"
	"github.com/frankframework/relay-tunnel/pkg/hybrid"
	"github.com/frankframework/relay-tunnel/pkg/relay"
)

const (
	contentTypeBinary = "application/octet-stream"

	// maxReplySize limits the relay's responses to directory queries and synchronous calls.
	maxReplySize = 64 << 20
)

// TokenIssuer creates bearer tokens asserting an Identity, e.g., an auth.Issuer.
type TokenIssuer interface {
	Issue(id auth.Identity) (string, error)
}

// Config of a Gateway.
type Config struct {
	// API of the relay, e.g., "https://switchboard.example.org/api".
	API string

	// Identity asserted for calls without an Identity in their context.
	Identity auth.Identity

	// Timeout of each HTTP request to the relay. Zero disables it.
	Timeout time.Duration
}

// Gateway sends calls from the console through the relay to its agents.
type Gateway struct {
	endpoints relay.Endpoints
	provider  *hybrid.Provider
	issuer    TokenIssuer
	identity  auth.Identity
	client    *http.Client

	membersMutex sync.RWMutex
	members      map[uuid.UUID]relay.ClusterMember

	// handshaked maps each agent which received this console's public key to the agent's public key at that time.
	handshaked      map[uuid.UUID]string
	handshakedMutex sync.Mutex
	handshakes      singleflight.Group
}

// NewGateway for a relay's API. Envelopes are encrypted and decrypted by the provider, tokens created by the issuer.
func NewGateway(config Config, provider *hybrid.Provider, issuer TokenIssuer) (*Gateway, error) {
	if config.API == "" {
		return nil, fmt.Errorf("no relay API configured")
	} else if provider == nil || issuer == nil {
		return nil, fmt.Errorf("gateway requires a provider and a token issuer")
	} else if config.Identity.Subject == "" {
		return nil, fmt.Errorf("no console identity configured")
	}

	return &Gateway{
		endpoints:  relay.Endpoints{API: config.API},
		provider:   provider,
		issuer:     issuer,
		identity:   config.Identity,
		client:     provider.HTTPClient(config.Timeout),
		members:    make(map[uuid.UUID]relay.ClusterMember),
		handshaked: make(map[uuid.UUID]string),
	}, nil
}

// failure of a relayed call, always carrying the message id.
func failure(messageID uuid.UUID, status int, err error) *bus.Error {
	return bus.WithMessageID(messageID, bus.NewError(status, err))
}

// SendSyncMessage relays the Request to the agent named by its relay.HeaderTarget header and blocks for the reply.
// Every failure is a *bus.Error carrying the message id.
func (g *Gateway) SendSyncMessage(ctx context.Context, req bus.Request) (bus.Response, error) {
	messageID := uuid.New()

	member, err := g.target(ctx, messageID, req)
	if err != nil {
		return bus.Response{}, err
	}

	e, err := g.seal(ctx, messageID, member, req, relay.SyncCall)
	if err != nil {
		return bus.Response{}, err
	}

	logger := log.WithFields(log.Fields{
		"client id":  member.ID,
		"message id": e.MessageID,
		"request":    req.String(),
	})
	logger.Debug("Sending synchronous call")

	status, body, err := g.post(ctx, g.endpoints.SendSync(member.ID), e)
	if err != nil {
		return bus.Response{}, failure(e.MessageID, http.StatusBadGateway, err)
	} else if status != http.StatusOK {
		return bus.Response{}, failure(e.MessageID, status, fmt.Errorf("relay responded %d: %s", status, bytes.TrimSpace(body)))
	}

	plaintext, err := g.open(e, body)
	if err != nil {
		return bus.Response{}, failure(e.MessageID, http.StatusBadGateway, err)
	}

	reply, err := relay.ParseMessage[json.RawMessage](plaintext)
	if err != nil {
		return bus.Response{}, failure(e.MessageID, http.StatusBadGateway, err)
	}

	replyStatus := reply.Headers.Status()
	if replyStatus == 0 {
		replyStatus = http.StatusOK
	}
	if replyStatus < 200 || replyStatus > 299 {
		return bus.Response{}, failure(e.MessageID, replyStatus, fmt.Errorf("agent replied: %s", reply.Header(relay.HeaderError)))
	}

	logger.WithField("status", replyStatus).Debug("Received reply")

	return bus.Response{
		Status:  replyStatus,
		Headers: reply.Headers,
		Payload: reply.Payload,
	}, nil
}

// SendAsyncMessage relays the Request to the agent named by its relay.HeaderTarget header without waiting for a
// reply. A rejection by the relay is only logged.
func (g *Gateway) SendAsyncMessage(ctx context.Context, req bus.Request) error {
	messageID := uuid.New()

	member, err := g.target(ctx, messageID, req)
	if err != nil {
		return err
	}

	e, err := g.seal(ctx, messageID, member, req, relay.AsyncCall)
	if err != nil {
		return err
	}

	logger := log.WithFields(log.Fields{
		"client id":  member.ID,
		"message id": e.MessageID,
		"request":    req.String(),
	})

	status, body, err := g.post(ctx, g.endpoints.SendAsync(member.ID), e)
	if err != nil {
		return failure(e.MessageID, http.StatusBadGateway, err)
	} else if status < 200 || status > 299 {
		logger.WithFields(log.Fields{
			"status":   status,
			"response": string(bytes.TrimSpace(body)),
		}).Warn("Relay rejected asynchronous call")
	} else {
		logger.Debug("Sent asynchronous call")
	}
	return nil
}

// target resolves the member addressed by a Request. An unknown member triggers one directory refresh.
func (g *Gateway) target(ctx context.Context, messageID uuid.UUID, req bus.Request) (relay.ClusterMember, error) {
	target, ok := req.Headers[relay.HeaderTarget]
	if !ok || target == "" {
		return relay.ClusterMember{}, failure(messageID, http.StatusBadRequest,
			relay.NewProtocolError("request %v lacks the %s header", req, relay.HeaderTarget))
	}

	clientID, err := uuid.Parse(target)
	if err != nil {
		return relay.ClusterMember{}, failure(messageID, http.StatusBadRequest,
			relay.NewProtocolError("invalid %s header %q", relay.HeaderTarget, target))
	}

	if member, ok := g.member(clientID); ok {
		return member, nil
	}

	g.GetMembers(ctx)
	if member, ok := g.member(clientID); ok {
		return member, nil
	}

	return relay.ClusterMember{}, failure(messageID, http.StatusNotFound,
		relay.NewProtocolError("no known public key for target %v", clientID))
}

// seal the Request into an envelope for the member, carrying a fresh token.
func (g *Gateway) seal(ctx context.Context, messageID uuid.UUID, member relay.ClusterMember, req bus.Request, callType relay.CallType) (e relay.RelayEnvelope, err error) {
	e.MessageID = messageID

	id, ok := auth.FromContext(ctx)
	if !ok {
		id = g.identity
	}

	token, err := g.issuer.Issue(id)
	if err != nil {
		return e, failure(e.MessageID, http.StatusInternalServerError, fmt.Errorf("issuing token errored: %w", err))
	}

	headers := relay.Headers{}
	for k, v := range req.Headers {
		headers[k] = v
	}
	headers[relay.HeaderTopic] = string(req.Topic)
	headers[relay.HeaderAction] = string(req.Action)
	headers[relay.HeaderType] = string(callType)

	plaintext, err := relay.NewMessage(req.Payload, headers).Marshal()
	if err != nil {
		return e, failure(e.MessageID, http.StatusBadRequest, err)
	}

	key, err := hybrid.ParsePublicKeyBase64(member.PublicKey())
	if err != nil {
		return e, failure(e.MessageID, http.StatusBadGateway, err)
	}

	if e.Payload, err = g.provider.EncryptHybrid(plaintext, key); err != nil {
		return e, failure(e.MessageID, http.StatusInternalServerError, err)
	}

	e.Authentication = relay.WithToken(token)
	return e, nil
}

// post an envelope to the relay, returning the HTTP status and body.
func (g *Gateway) post(ctx context.Context, url string, e relay.RelayEnvelope) (status int, body []byte, err error) {
	data, err := e.Bytes()
	if err != nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", contentTypeBinary)

	resp, err := g.client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	status = resp.StatusCode
	body, err = io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	return
}

// open a reply to the request envelope, which must carry the request's message id.
func (g *Gateway) open(request relay.RelayEnvelope, body []byte) ([]byte, error) {
	reply, err := relay.ParseEnvelope(body)
	if err != nil {
		return nil, err
	} else if reply.MessageID != request.MessageID {
		return nil, relay.NewProtocolError("reply id %v does not match request id %v", reply.MessageID, request.MessageID)
	}

	return g.provider.DecryptHybrid(reply.Payload)
}
