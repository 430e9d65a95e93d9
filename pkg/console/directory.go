// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/google/uuid"

	"github.com/frankframework/relay-tunnel/pkg/hybrid"
	"github.com/frankframework/relay-tunnel/pkg/relay"
)

// GetMembers lists all agents connected to the relay. Failures are logged and result in an empty list.
//
// Each listed agent which has not received this console's public key yet is sent a handshake. A failed handshake is
// retried on the next call.
func (g *Gateway) GetMembers(ctx context.Context) []relay.ClusterMember {
	entries, err := g.directory(ctx)
	if err != nil {
		log.WithError(err).WithField("relay", g.endpoints.API).Warn("Listing relay connections errored")
	}

	members := make([]relay.ClusterMember, 0, len(entries))
	for _, entry := range entries {
		members = append(members, relay.NewClusterMember(entry, g.endpoints))
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].ID.String() < members[j].ID.String()
	})

	g.membersMutex.Lock()
	g.members = make(map[uuid.UUID]relay.ClusterMember, len(members))
	for _, member := range members {
		g.members[member.ID] = member
	}
	g.membersMutex.Unlock()

	if err == nil {
		g.forgetVanished(members)
	}

	for _, member := range members {
		if err := g.ensureHandshake(ctx, member); err != nil {
			log.WithFields(log.Fields{
				"client id": member.ID,
				"instance":  member.Name(),
			}).WithError(err).Warn("Handshake with agent errored, retrying with the next listing")
		}
	}

	return members
}

func (g *Gateway) member(clientID uuid.UUID) (member relay.ClusterMember, ok bool) {
	g.membersMutex.RLock()
	defer g.membersMutex.RUnlock()

	member, ok = g.members[clientID]
	return
}

// directory queries the relay. A relay without any connection responds 401, which results in an empty list.
func (g *Gateway) directory(ctx context.Context) ([]relay.DirectoryEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoints.Connections(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		log.WithField("relay", g.endpoints.API).Debug("Relay has no connections")
		return nil, nil

	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("relay responded %d to directory query", resp.StatusCode)
	}

	var entries []relay.DirectoryEntry
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReplySize)).Decode(&entries); err != nil {
		return nil, fmt.Errorf("parsing directory errored: %w", err)
	}
	return entries, nil
}

// isHandshaked checks if the member received this console's key while presenting its current public key.
func (g *Gateway) isHandshaked(member relay.ClusterMember) bool {
	g.handshakedMutex.Lock()
	defer g.handshakedMutex.Unlock()

	publicKey, ok := g.handshaked[member.ID]
	return ok && publicKey == member.PublicKey()
}

// forgetVanished drops the handshake of agents missing in a successful directory listing. A returning agent might
// have been restarted and has to learn this console's key again.
func (g *Gateway) forgetVanished(members []relay.ClusterMember) {
	listed := make(map[uuid.UUID]struct{}, len(members))
	for _, member := range members {
		listed[member.ID] = struct{}{}
	}

	g.handshakedMutex.Lock()
	defer g.handshakedMutex.Unlock()

	for id := range g.handshaked {
		if _, ok := listed[id]; !ok {
			delete(g.handshaked, id)
		}
	}
}

// ensureHandshake sends this console's public key to the member, unless it was already sent. Concurrent calls for
// the same member share one handshake.
func (g *Gateway) ensureHandshake(ctx context.Context, member relay.ClusterMember) error {
	if g.isHandshaked(member) {
		return nil
	}

	_, err, _ := g.handshakes.Do(member.ID.String()+"/"+member.PublicKey(), func() (interface{}, error) {
		if g.isHandshaked(member) {
			return nil, nil
		}

		if err := g.handshake(ctx, member); err != nil {
			return nil, err
		}

		g.handshakedMutex.Lock()
		g.handshaked[member.ID] = member.PublicKey()
		g.handshakedMutex.Unlock()
		return nil, nil
	})
	return err
}

// handshake sends a PublicKeyMessage and awaits its acknowledgement.
func (g *Gateway) handshake(ctx context.Context, member relay.ClusterMember) error {
	agentKey, err := hybrid.ParsePublicKeyBase64(member.PublicKey())
	if err != nil {
		return err
	}

	publicKey, err := g.provider.PublicKeyBase64()
	if err != nil {
		return err
	}

	pkm, err := json.Marshal(relay.PublicKeyMessage{PublicKey: publicKey})
	if err != nil {
		return err
	}

	ciphertext, err := g.provider.EncryptHybrid(pkm, agentKey)
	if err != nil {
		return err
	}

	e := relay.NewEnvelope(ciphertext, relay.Authentication{})

	logger := log.WithFields(log.Fields{
		"client id":  member.ID,
		"message id": e.MessageID,
	})
	logger.Debug("Sending handshake to agent")

	status, body, err := g.post(ctx, g.endpoints.SendSync(member.ID), e)
	if err != nil {
		return err
	} else if status != http.StatusOK {
		return fmt.Errorf("relay responded %d to handshake", status)
	}

	plaintext, err := g.open(e, body)
	if err != nil {
		return err
	}

	var ack relay.StatusMessage
	if err := json.Unmarshal(plaintext, &ack); err != nil {
		return relay.NewProtocolError("malformed handshake acknowledgement: %v", err)
	} else if ack.Status != relay.StatusOK {
		return relay.NewProtocolError("agent acknowledged handshake with status %q", ack.Status)
	}

	logger.Info("Handshake with agent succeeded")
	return nil
}
