// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package switchboard

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/frankframework/relay-tunnel/pkg/relay"
)

const (
	// DefaultTimeout for a relayed synchronous call.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodySize limits relayed envelopes.
	DefaultMaxBodySize = 64 << 20

	contentTypeBinary = "application/octet-stream"
)

// Switchboard relays envelopes from consoles to connected agents.
type Switchboard struct {
	sync.RWMutex

	router   *mux.Router
	upgrader websocket.Upgrader

	agents map[uuid.UUID]*agentConn

	timeout     time.Duration
	maxBodySize int64
}

// Option to configure a Switchboard.
type Option func(*Switchboard)

// WithTimeout bounds how long a synchronous call waits for the agent's reply.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Switchboard) {
		s.timeout = timeout
	}
}

// WithMaxBodySize limits the size of relayed envelopes, both requests and replies.
func WithMaxBodySize(size int64) Option {
	return func(s *Switchboard) {
		s.maxBodySize = size
	}
}

// NewSwitchboard creates a Switchboard. The API is served below /api, agents connect to /ws.
func NewSwitchboard(opts ...Option) *Switchboard {
	s := &Switchboard{
		router: mux.NewRouter(),
		agents: make(map[uuid.UUID]*agentConn),

		timeout:     DefaultTimeout,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(s)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/connections/org", s.handleConnections).Methods(http.MethodGet)
	api.HandleFunc("/send/sync/{clientId}", s.handleSendSync).Methods(http.MethodPost)
	api.HandleFunc("/send/async/{clientId}", s.handleSendAsync).Methods(http.MethodPost)

	s.router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	return s
}

// ServeHTTP is a http.Handler to be bound to a HTTP server's root.
func (s *Switchboard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Agents lists all currently connected agents, ordered by their client id.
func (s *Switchboard) Agents() (entries []relay.DirectoryEntry) {
	s.RLock()
	defer s.RUnlock()

	for _, ac := range s.agents {
		entries = append(entries, ac.entry())
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ClientID.String() < entries[j].ClientID.String()
	})
	return
}

// Send a raw binary frame to a connected agent.
func (s *Switchboard) Send(clientID uuid.UUID, frame []byte) error {
	ac, ok := s.agent(clientID)
	if !ok {
		return fmt.Errorf("agent %v is not connected", clientID)
	}
	return ac.write(websocket.BinaryMessage, frame)
}

// Close all agent connections.
func (s *Switchboard) Close() {
	s.Lock()
	agents := s.agents
	s.agents = make(map[uuid.UUID]*agentConn)
	s.Unlock()

	for _, ac := range agents {
		ac.close()
	}
}

func (s *Switchboard) agent(clientID uuid.UUID) (ac *agentConn, ok bool) {
	s.RLock()
	defer s.RUnlock()

	ac, ok = s.agents[clientID]
	return
}

// register an agent. An older connection with the same client id is replaced and closed.
func (s *Switchboard) register(ac *agentConn) {
	s.Lock()
	old, replaced := s.agents[ac.info.ClientID]
	s.agents[ac.info.ClientID] = ac
	s.Unlock()

	logger := log.WithFields(log.Fields{
		"client id": ac.info.ClientID,
		"instance":  ac.info.InstanceName,
		"remote":    ac.conn.RemoteAddr().String(),
	})
	if replaced {
		logger.Info("Agent reconnected, replacing its previous connection")
		old.close()
	} else {
		logger.Info("Agent connected")
	}
}

func (s *Switchboard) unregister(ac *agentConn) {
	s.Lock()
	defer s.Unlock()

	if current, ok := s.agents[ac.info.ClientID]; ok && current == ac {
		delete(s.agents, ac.info.ClientID)
		log.WithField("client id", ac.info.ClientID).Info("Agent disconnected")
	}
}

func (s *Switchboard) handleConnections(w http.ResponseWriter, _ *http.Request) {
	entries := s.Agents()
	if len(entries) == 0 {
		http.Error(w, "no connections", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		log.WithError(err).Warn("Failed to write connections response")
	}
}

// readEnvelope reads the body of a relay request, which must be an envelope for a connected agent.
func (s *Switchboard) readEnvelope(w http.ResponseWriter, r *http.Request) (ac *agentConn, e relay.RelayEnvelope, data []byte, ok bool) {
	clientID, err := uuid.Parse(mux.Vars(r)["clientId"])
	if err != nil {
		http.Error(w, "invalid client id", http.StatusBadRequest)
		return
	}

	if ac, ok = s.agent(clientID); !ok {
		http.Error(w, fmt.Sprintf("agent %v is not connected", clientID), http.StatusNotFound)
		return
	}

	if data, err = io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodySize)); err != nil {
		ok = false
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}

	if e, err = relay.ParseEnvelope(data); err != nil {
		ok = false
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	return
}

func (s *Switchboard) handleSendSync(w http.ResponseWriter, r *http.Request) {
	ac, e, data, ok := s.readEnvelope(w, r)
	if !ok {
		return
	}

	logger := log.WithFields(log.Fields{
		"client id":  ac.info.ClientID,
		"message id": e.MessageID,
	})

	replies := ac.await(e.MessageID)
	defer ac.forget(e.MessageID)

	if err := ac.write(websocket.BinaryMessage, data); err != nil {
		logger.WithError(err).Warn("Relaying synchronous envelope errored")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	select {
	case reply := <-replies:
		logger.Debug("Relaying reply to console")

		w.Header().Set("Content-Type", contentTypeBinary)
		if _, err := w.Write(reply); err != nil {
			logger.WithError(err).Warn("Writing reply errored")
		}

	case <-ac.closed:
		logger.Warn("Agent disconnected before replying")
		http.Error(w, "agent disconnected", http.StatusBadGateway)

	case <-time.After(s.timeout):
		logger.Warn("Agent did not reply in time")
		http.Error(w, "agent did not reply in time", http.StatusGatewayTimeout)

	case <-r.Context().Done():
		logger.Debug("Console cancelled synchronous call")
	}
}

func (s *Switchboard) handleSendAsync(w http.ResponseWriter, r *http.Request) {
	ac, e, data, ok := s.readEnvelope(w, r)
	if !ok {
		return
	}

	if err := ac.write(websocket.BinaryMessage, data); err != nil {
		log.WithFields(log.Fields{
			"client id":  ac.info.ClientID,
			"message id": e.MessageID,
		}).WithError(err).Warn("Relaying asynchronous envelope errored")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *Switchboard) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Upgrading HTTP request to WebSocket errored")
		return
	}

	ac, err := s.handshake(conn)
	if err != nil {
		log.WithField("remote", conn.RemoteAddr().String()).WithError(err).Warn("Agent handshake errored")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()), time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	s.register(ac)
	defer s.unregister(ac)

	ac.handle()
}

// handshake expects an INSTANCE_INFO command as the first frame.
func (s *Switchboard) handshake(conn *websocket.Conn) (*agentConn, error) {
	conn.SetReadLimit(s.maxBodySize)

	if err := conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
		return nil, err
	}

	messageType, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	} else if messageType != websocket.TextMessage {
		return nil, fmt.Errorf("expected a text frame announcing the agent, got type %d", messageType)
	}

	info, err := relay.ParseInstanceInfoCommand(data)
	if err != nil {
		return nil, err
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, err
	}

	return newAgentConn(conn, info), nil
}
