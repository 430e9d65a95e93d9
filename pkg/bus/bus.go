// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Topic addresses a group of operations on the bus.
type Topic string

const (
	TopicHealth         Topic = "HEALTH"
	TopicApplication    Topic = "APPLICATION"
	TopicAdapter        Topic = "ADAPTER"
	TopicMonitoring     Topic = "MONITORING"
	TopicMessageBrowser Topic = "MESSAGE_BROWSER"
	TopicSecurityItems  Topic = "SECURITY_ITEMS"
)

// Action within a Topic.
type Action string

const (
	ActionGet      Action = "GET"
	ActionFind     Action = "FIND"
	ActionStatus   Action = "STATUS"
	ActionManage   Action = "MANAGE"
	ActionDelete   Action = "DELETE"
	ActionDownload Action = "DOWNLOAD"
	ActionUpload   Action = "UPLOAD"
)

// Request on the bus. Its Payload is raw JSON, to be decoded by the handler.
type Request struct {
	Topic   Topic
	Action  Action
	Headers map[string]string
	Payload json.RawMessage
}

// NewRequest for a topic and action, marshalling the payload into JSON. A nil payload results in an empty Payload.
func NewRequest(topic Topic, action Action, payload interface{}) (Request, error) {
	req := Request{
		Topic:   topic,
		Action:  action,
		Headers: map[string]string{},
	}

	if payload != nil {
		if data, err := json.Marshal(payload); err != nil {
			return Request{}, fmt.Errorf("marshalling request payload errored: %w", err)
		} else {
			req.Payload = data
		}
	}
	return req, nil
}

// Decode the request's payload into v.
func (r Request) Decode(v interface{}) error {
	if len(r.Payload) == 0 {
		return fmt.Errorf("request for %s/%s has no payload", r.Topic, r.Action)
	}
	return json.Unmarshal(r.Payload, v)
}

func (r Request) String() string {
	return fmt.Sprintf("%s/%s", r.Topic, r.Action)
}

// Response to a synchronous Request.
//
// Either Payload, an arbitrary JSON serializable value, or Stream is set. A Stream must be fully read by the receiver;
// it is closed afterwards if it is an io.Closer.
type Response struct {
	Status  int
	Headers map[string]string
	Payload interface{}
	Stream  io.Reader
}

// Decode the response's payload into v.
func (r Response) Decode(v interface{}) error {
	switch payload := r.Payload.(type) {
	case nil:
		return fmt.Errorf("response has no payload")
	case json.RawMessage:
		return json.Unmarshal(payload, v)
	default:
		if data, err := json.Marshal(payload); err != nil {
			return err
		} else {
			return json.Unmarshal(data, v)
		}
	}
}

// Dispatcher executes Requests, either synchronously or fire-and-forget.
type Dispatcher interface {
	// DispatchSync executes the Request and blocks until its Response is available.
	DispatchSync(ctx context.Context, req Request) (Response, error)

	// DispatchAsync hands the Request over for execution without waiting for any result. Only errors detected
	// before the execution started, e.g., an unknown route, are returned.
	DispatchAsync(ctx context.Context, req Request) error
}
