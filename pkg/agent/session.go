// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gorilla/websocket"

	"github.com/frankframework/relay-tunnel/pkg/auth"
	"github.com/frankframework/relay-tunnel/pkg/bus"
	"github.com/frankframework/relay-tunnel/pkg/hybrid"
	"github.com/frankframework/relay-tunnel/pkg/relay"
)

// session is one connection of a Gateway to the relay.
type session struct {
	gateway *Gateway
	conn    *websocket.Conn

	writeMutex sync.Mutex

	closeOnce sync.Once
	logger    *log.Entry
}

func newSession(g *Gateway, conn *websocket.Conn) *session {
	return &session{
		gateway: g,
		conn:    conn,
		logger: log.WithFields(log.Fields{
			"client id": g.config.ClientID,
			"relay":     conn.RemoteAddr().String(),
		}),
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		// WriteControl might be called concurrently to a blocked writer.
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = s.conn.Close()
	})
}

func (s *session) write(messageType int, data []byte) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	return s.conn.WriteMessage(messageType, data)
}

// announce this agent by a plaintext INSTANCE_INFO command.
func (s *session) announce(info relay.InstanceInfo) error {
	data, err := json.Marshal(relay.NewInstanceInfoCommand(info))
	if err != nil {
		return err
	}

	s.logger.Debug("Announcing instance to relay")
	return s.write(websocket.TextMessage, data)
}

// serve inbound frames until the connection breaks or the context is cancelled.
//
// The next frame is only read after the current one was processed. Thus, frames are handled strictly sequentially.
func (s *session) serve(ctx context.Context) error {
	defer s.close()

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			s.close()
		case <-done:
		}
	}()

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return newTransportError(s.gateway.config.URL, err, nil)
		}

		switch messageType {
		case websocket.BinaryMessage:
			s.handleFrame(ctx, data)

		default:
			s.logger.WithField("message type", messageType).Debug("Ignoring non-binary frame")
		}
	}
}

// handleFrame processes one relayed envelope. Failures are logged and never affect the connection.
func (s *session) handleFrame(ctx context.Context, data []byte) {
	e, err := relay.ParseEnvelope(data)
	if err != nil {
		s.logger.WithError(err).Warn("Dropping malformed envelope")
		return
	}

	logger := s.logger.WithField("message id", e.MessageID)

	plaintext, err := s.gateway.provider.DecryptHybrid(e.Payload)
	if err != nil {
		logger.WithError(err).Error("Dropping envelope which cannot be decrypted")
		return
	}

	if pkm, ok := relay.ParsePublicKeyMessage(plaintext); ok {
		s.handleHandshake(e, pkm, logger)
		return
	}

	consoleKey := s.gateway.consoleKey()
	if consoleKey == nil {
		logger.Warn("Dropping envelope, no console has handshaked yet")
		return
	}

	msg, err := relay.ParseMessage[json.RawMessage](plaintext)
	if err != nil {
		logger.WithError(err).Warn("Dropping envelope with a malformed message")
		return
	}

	id, err := s.gateway.authenticator.Authenticate(e.Authentication.Token, e.Authentication.Identity)
	if err != nil {
		logger.WithError(err).Warn("Dropping unauthenticated envelope")
		return
	}

	req := bus.Request{
		Topic:   bus.Topic(msg.Header(relay.HeaderTopic)),
		Action:  bus.Action(msg.Header(relay.HeaderAction)),
		Headers: msg.Headers.Clone(),
		Payload: msg.Payload,
	}

	logger = logger.WithFields(log.Fields{
		"request": req.String(),
		"caller":  id.Subject,
		"type":    msg.CallType(),
	})

	dispatchCtx := auth.NewContext(ctx, id)

	switch msg.CallType() {
	case relay.AsyncCall:
		if err := s.gateway.dispatcher.DispatchAsync(dispatchCtx, req); err != nil {
			logger.WithError(err).Warn("Asynchronous dispatch errored")
		} else {
			logger.Debug("Dispatched asynchronous call")
		}

	default:
		resp, err := s.gateway.dispatcher.DispatchSync(dispatchCtx, req)
		if err != nil {
			logger.WithError(err).Info("Synchronous dispatch errored, replying with an error")
		}

		reply := s.buildReply(msg.Headers, resp, err)
		if err := s.reply(e, reply, consoleKey); err != nil {
			logger.WithError(err).Warn("Sending reply errored")
		} else {
			logger.WithField("status", reply.Header(relay.HeaderStatus)).Debug("Sent reply")
		}
	}
}

// handleHandshake stores the console's public key and acknowledges it, encrypted with this key.
func (s *session) handleHandshake(e relay.RelayEnvelope, pkm relay.PublicKeyMessage, logger *log.Entry) {
	key, err := hybrid.ParsePublicKeyBase64(pkm.PublicKey)
	if err != nil {
		logger.WithError(err).Warn("Dropping handshake with an invalid public key")
		return
	}

	s.gateway.establish(key)

	ack, err := json.Marshal(relay.StatusMessage{Status: relay.StatusOK})
	if err != nil {
		logger.WithError(err).Warn("Marshalling handshake acknowledgement errored")
		return
	}

	if err := s.send(e, ack, key); err != nil {
		logger.WithError(err).Warn("Acknowledging handshake errored")
	} else {
		logger.Info("Acknowledged console handshake")
	}
}

// buildReply packages a bus Response or error, keeping the request's headers.
func (s *session) buildReply(headers relay.Headers, resp bus.Response, dispatchErr error) relay.SwitchBoardMessage[interface{}] {
	reply := relay.NewMessage[interface{}](nil, headers)

	if dispatchErr != nil {
		return errorReply(reply, bus.StatusOf(dispatchErr), dispatchErr)
	}

	for k, v := range resp.Headers {
		reply.Headers[k] = v
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	reply.Headers[relay.HeaderStatus] = strconv.Itoa(status)

	if resp.Stream != nil {
		data, err := materialize(resp.Stream, s.gateway.config.MaxReplySize)
		if err != nil {
			return errorReply(reply, http.StatusRequestEntityTooLarge, err)
		}
		reply.Payload = data
	} else {
		reply.Payload = resp.Payload
	}

	return reply
}

func errorReply(reply relay.SwitchBoardMessage[interface{}], status int, err error) relay.SwitchBoardMessage[interface{}] {
	reply.Payload = nil
	reply.Headers[relay.HeaderStatus] = strconv.Itoa(status)
	reply.Headers[relay.HeaderError] = err.Error()
	return reply
}

// materialize reads a stream of at most limit bytes into memory. The stream is closed afterwards.
func materialize(stream io.Reader, limit int64) ([]byte, error) {
	if closer, ok := stream.(io.Closer); ok {
		defer closer.Close()
	}

	data, err := io.ReadAll(io.LimitReader(stream, limit+1))
	if err != nil {
		return nil, err
	} else if int64(len(data)) > limit {
		return nil, fmt.Errorf("reply stream exceeds the limit of %d bytes", limit)
	}
	return data, nil
}

// reply with a SwitchBoardMessage. A reply exceeding the size limit is replaced by an error reply.
func (s *session) reply(request relay.RelayEnvelope, reply relay.SwitchBoardMessage[interface{}], key *rsa.PublicKey) error {
	plaintext, err := reply.Marshal()
	if err != nil {
		plaintext, err = errorReply(reply, http.StatusInternalServerError, err).Marshal()
	} else if int64(len(plaintext)) > s.gateway.config.MaxReplySize {
		tooLarge := fmt.Errorf("reply of %d bytes exceeds the limit of %d bytes", len(plaintext), s.gateway.config.MaxReplySize)
		plaintext, err = errorReply(reply, http.StatusRequestEntityTooLarge, tooLarge).Marshal()
	}
	if err != nil {
		return err
	}

	return s.send(request, plaintext, key)
}

// send a plaintext, encrypted for the key, as the reply to the request envelope.
func (s *session) send(request relay.RelayEnvelope, plaintext []byte, key *rsa.PublicKey) error {
	ciphertext, err := s.gateway.provider.EncryptHybrid(plaintext, key)
	if err != nil {
		return err
	}

	data, err := relay.NewReply(request, ciphertext).Bytes()
	if err != nil {
		return err
	}

	return s.write(websocket.BinaryMessage, data)
}
