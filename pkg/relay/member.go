// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package relay

import (
	"github.com/google/uuid"
)

// DirectoryEntry is an agent as listed by the relay's directory endpoint.
type DirectoryEntry struct {
	ClientID        uuid.UUID `json:"clientId"`
	InstanceType    string    `json:"instanceType"`
	InstanceName    string    `json:"instanceName"`
	InstanceVersion string    `json:"instanceVersion"`
	PublicKey       string    `json:"publicKey"`
}

// Attribute names of a ClusterMember.
const (
	AttributeName      = "name"
	AttributeVersion   = "version"
	AttributePublicKey = "publicKey"
)

// ClusterMember is the console's view of a reachable agent. Members are rebuilt on every directory query.
type ClusterMember struct {
	ID          uuid.UUID         `json:"id"`
	Address     string            `json:"address"`
	Type        string            `json:"type"`
	Attributes  map[string]string `json:"attributes"`
	LocalMember bool              `json:"localMember"`
}

// NewClusterMember derives a member from its directory entry, addressed through the relay.
func NewClusterMember(entry DirectoryEntry, endpoints Endpoints) ClusterMember {
	return ClusterMember{
		ID:      entry.ClientID,
		Address: endpoints.SendSync(entry.ClientID),
		Type:    entry.InstanceType,
		Attributes: map[string]string{
			AttributeName:      entry.InstanceName,
			AttributeVersion:   entry.InstanceVersion,
			AttributePublicKey: entry.PublicKey,
		},
	}
}

// PublicKey of the member in its base64 exchange format.
func (cm ClusterMember) PublicKey() string {
	return cm.Attributes[AttributePublicKey]
}

// Name of the member's instance.
func (cm ClusterMember) Name() string {
	return cm.Attributes[AttributeName]
}
