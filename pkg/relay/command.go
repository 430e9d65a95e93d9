// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package relay

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// CommandName identifies a plaintext control command sent by an agent to the relay.
type CommandName string

// CommandInstanceInfo announces an agent's identity and public key to the relay's directory.
const CommandInstanceInfo CommandName = "INSTANCE_INFO"

// Command is a plaintext control command, sent as a text frame.
type Command[T any] struct {
	Command CommandName `json:"command"`
	Payload T           `json:"payload"`
}

// InstanceInfo is the payload of a CommandInstanceInfo.
type InstanceInfo struct {
	ClientID        uuid.UUID `json:"clientId"`
	InstanceName    string    `json:"instanceName"`
	InstanceVersion string    `json:"instanceVersion"`
	InstanceType    string    `json:"instanceType,omitempty"`
	PublicKey       string    `json:"publicKey"`
}

// NewInstanceInfoCommand wraps the InstanceInfo into its announcement command.
func NewInstanceInfoCommand(info InstanceInfo) Command[InstanceInfo] {
	return Command[InstanceInfo]{
		Command: CommandInstanceInfo,
		Payload: info,
	}
}

// ParseInstanceInfoCommand reads an announcement command from JSON.
func ParseInstanceInfoCommand(data []byte) (info InstanceInfo, err error) {
	var cmd Command[InstanceInfo]
	if jsonErr := json.Unmarshal(data, &cmd); jsonErr != nil {
		err = newProtocolError("malformed command", jsonErr)
	} else if cmd.Command != CommandInstanceInfo {
		err = newProtocolError(fmt.Sprintf("expected %s command, got %q", CommandInstanceInfo, cmd.Command), nil)
	} else if cmd.Payload.ClientID == uuid.Nil {
		err = newProtocolError("announcement without a client id", nil)
	} else if cmd.Payload.PublicKey == "" {
		err = newProtocolError("announcement without a public key", nil)
	} else {
		info = cmd.Payload
	}
	return
}
