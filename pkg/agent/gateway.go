// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"context"
	"crypto/rsa"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/frankframework/relay-tunnel/pkg/auth"
	"github.com/frankframework/relay-tunnel/pkg/bus"
	"github.com/frankframework/relay-tunnel/pkg/hybrid"
	"github.com/frankframework/relay-tunnel/pkg/relay"
)

// Authenticator resolves the Identity of a relayed call, e.g., an auth.Verifier.
type Authenticator interface {
	Authenticate(token string, preResolved *auth.Identity) (auth.Identity, error)
}

// Gateway is the agent's connection to the relay, dispatching relayed calls to the local bus.
type Gateway struct {
	config        Config
	provider      *hybrid.Provider
	authenticator Authenticator
	dispatcher    bus.Dispatcher
	dialer        *websocket.Dialer

	// mutex protects all following fields.
	mutex sync.Mutex

	state State

	// consolePubKey of the last console's handshake. Only one console is known at a time.
	consolePubKey *rsa.PublicKey

	failures      int
	lastErr       error
	lastConnected time.Time
}

// NewGateway for a Config. Relayed envelopes are decrypted by the provider, authenticated by the authenticator and
// finally executed by the dispatcher.
func NewGateway(config Config, provider *hybrid.Provider, authenticator Authenticator, dispatcher bus.Dispatcher) (*Gateway, error) {
	config, err := config.withDefaults()
	if err != nil {
		return nil, err
	}

	if provider == nil || authenticator == nil || dispatcher == nil {
		return nil, fmt.Errorf("gateway requires a provider, an authenticator and a dispatcher")
	}

	return &Gateway{
		config:        config,
		provider:      provider,
		authenticator: authenticator,
		dispatcher:    dispatcher,
		dialer:        provider.Dialer(config.ConnectTimeout),
		state:         Disconnected,
	}, nil
}

// ClientID of this agent at the relay.
func (g *Gateway) ClientID() uuid.UUID {
	return g.config.ClientID
}

// State of the relay connection.
func (g *Gateway) State() State {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	return g.state
}

// Health of the relay connection.
func (g *Gateway) Health() Health {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	h := Health{
		State:               g.state,
		ConsecutiveFailures: g.failures,
		LastConnected:       g.lastConnected,
	}
	if g.lastErr != nil {
		h.LastError = g.lastErr.Error()
	}

	switch g.state {
	case Connected, Established:
		h.Healthy = true
	case Closed:
		h.Healthy = false
	default:
		h.Healthy = g.failures < g.config.UnhealthyAfter
	}
	return h
}

func (g *Gateway) setState(state State) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.state != state {
		log.WithFields(log.Fields{
			"client id": g.config.ClientID,
			"from":      g.state,
			"to":        state,
		}).Debug("Gateway changed state")
	}
	g.state = state
}

// connected updates the state after announcing and resets the failure counter.
func (g *Gateway) connected() {
	g.mutex.Lock()
	established := g.consolePubKey != nil
	g.failures = 0
	g.lastErr = nil
	g.lastConnected = time.Now()
	g.mutex.Unlock()

	if established {
		g.setState(Established)
	} else {
		g.setState(Connected)
	}
}

func (g *Gateway) failed(err error) (failures int) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.failures++
	g.lastErr = err
	g.state = Disconnected
	return g.failures
}

func (g *Gateway) consoleKey() *rsa.PublicKey {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	return g.consolePubKey
}

// establish with a console's public key, replacing any previously known console.
func (g *Gateway) establish(key *rsa.PublicKey) {
	g.mutex.Lock()
	replaced := g.consolePubKey != nil
	g.consolePubKey = key
	g.mutex.Unlock()

	log.WithFields(log.Fields{
		"client id": g.config.ClientID,
		"replaced":  replaced,
	}).Info("Learned console's public key")

	g.setState(Established)
}

// Run connects to the relay and serves relayed calls until the context is cancelled. Lost connections are
// re-established after a Backoff delay. An error is only returned if Config.MaxAttempts consecutive attempts failed.
func (g *Gateway) Run(ctx context.Context) error {
	defer g.setState(Closed)

	logger := log.WithFields(log.Fields{
		"client id": g.config.ClientID,
		"relay":     g.config.URL,
	})

	for {
		s, err := g.connect(ctx)
		if err == nil {
			logger.Info("Connected to relay")
			g.connected()
			err = s.serve(ctx)
		}

		if ctx.Err() != nil {
			logger.Info("Gateway stopped")
			return nil
		}

		failures := g.failed(err)
		if g.config.MaxAttempts > 0 && failures >= g.config.MaxAttempts {
			logger.WithError(err).WithField("failures", failures).Error("Giving up connecting to relay")
			return err
		}

		delay := g.config.Backoff.Delay(failures)
		logger.WithError(err).WithFields(log.Fields{
			"failures": failures,
			"delay":    delay,
		}).Warn("Relay connection failed, reconnecting")

		select {
		case <-ctx.Done():
			logger.Info("Gateway stopped")
			return nil
		case <-time.After(delay):
		}
	}
}

// connect dials the relay and announces this agent.
func (g *Gateway) connect(ctx context.Context) (*session, error) {
	g.setState(Connecting)

	publicKey, err := g.provider.PublicKeyBase64()
	if err != nil {
		return nil, err
	}

	conn, resp, err := g.dialer.DialContext(ctx, g.config.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, newTransportError(g.config.URL, err, resp)
	}

	conn.SetReadLimit(g.config.MaxFrameSize)

	s := newSession(g, conn)
	if err := s.announce(relay.InstanceInfo{
		ClientID:        g.config.ClientID,
		InstanceName:    g.config.InstanceName,
		InstanceVersion: g.config.InstanceVersion,
		InstanceType:    g.config.InstanceType,
		PublicKey:       publicKey,
	}); err != nil {
		s.close()
		return nil, newTransportError(g.config.URL, err, nil)
	}

	return s, nil
}
