// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package switchboard

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/frankframework/relay-tunnel/pkg/relay"
)

// agentConn is the Switchboard's side of one connected agent.
type agentConn struct {
	writeMutex sync.Mutex
	conn       *websocket.Conn
	info       relay.InstanceInfo

	pendingMutex sync.Mutex
	pending      map[uuid.UUID]chan []byte

	closed    chan struct{}
	closeOnce sync.Once
}

func newAgentConn(conn *websocket.Conn, info relay.InstanceInfo) *agentConn {
	return &agentConn{
		conn:    conn,
		info:    info,
		pending: make(map[uuid.UUID]chan []byte),
		closed:  make(chan struct{}),
	}
}

func (ac *agentConn) entry() relay.DirectoryEntry {
	return relay.DirectoryEntry{
		ClientID:        ac.info.ClientID,
		InstanceType:    ac.info.InstanceType,
		InstanceName:    ac.info.InstanceName,
		InstanceVersion: ac.info.InstanceVersion,
		PublicKey:       ac.info.PublicKey,
	}
}

func (ac *agentConn) write(messageType int, data []byte) error {
	ac.writeMutex.Lock()
	defer ac.writeMutex.Unlock()

	return ac.conn.WriteMessage(messageType, data)
}

func (ac *agentConn) close() {
	ac.closeOnce.Do(func() {
		close(ac.closed)
		_ = ac.conn.Close()
	})
}

// await registers a pending synchronous call. The returned channel receives the reply with the same message id.
func (ac *agentConn) await(messageID uuid.UUID) <-chan []byte {
	ac.pendingMutex.Lock()
	defer ac.pendingMutex.Unlock()

	ch := make(chan []byte, 1)
	ac.pending[messageID] = ch
	return ch
}

func (ac *agentConn) forget(messageID uuid.UUID) {
	ac.pendingMutex.Lock()
	defer ac.pendingMutex.Unlock()

	delete(ac.pending, messageID)
}

func (ac *agentConn) deliver(messageID uuid.UUID, reply []byte) bool {
	ac.pendingMutex.Lock()
	defer ac.pendingMutex.Unlock()

	ch, ok := ac.pending[messageID]
	if !ok {
		return false
	}

	delete(ac.pending, messageID)
	ch <- reply
	return true
}

// handle the agent's frames until its connection is closed.
func (ac *agentConn) handle() {
	defer ac.close()

	logger := log.WithField("client id", ac.info.ClientID)

	for {
		messageType, data, err := ac.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.WithError(err).Warn("Reading from agent errored")
			}
			return
		}

		if messageType != websocket.BinaryMessage {
			logger.WithField("message type", messageType).Debug("Ignoring non-binary frame from agent")
			continue
		}

		if e, err := relay.ParseEnvelope(data); err != nil {
			logger.WithError(err).Warn("Agent sent a malformed envelope")
		} else if !ac.deliver(e.MessageID, data) {
			logger.WithField("message id", e.MessageID).Info("Dropping reply without a pending call")
		}
	}
}
