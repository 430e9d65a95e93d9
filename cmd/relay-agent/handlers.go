// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/frankframework/relay-tunnel/pkg/agent"
	"github.com/frankframework/relay-tunnel/pkg/bus"
)

// healthReporter is implemented by the agent.Gateway.
type healthReporter interface {
	Health() agent.Health
}

// applicationInfo is the payload of an APPLICATION/GET reply.
type applicationInfo struct {
	ClientID        uuid.UUID `json:"clientId"`
	InstanceName    string    `json:"instanceName"`
	InstanceVersion string    `json:"instanceVersion,omitempty"`
	InstanceType    string    `json:"instanceType,omitempty"`
	Routes          []string  `json:"routes"`
}

// registerHandlers adds the built-in routes of relay-agent to the Router.
func registerHandlers(router *bus.Router, gateway *agent.Gateway, core coreConf) {
	router.Handle(bus.TopicHealth, bus.ActionGet, healthHandler(gateway))

	router.Handle(bus.TopicApplication, bus.ActionGet, func(context.Context, bus.Request) (bus.Response, error) {
		return bus.Response{
			Status: http.StatusOK,
			Payload: applicationInfo{
				ClientID:        gateway.ClientID(),
				InstanceName:    core.InstanceName,
				InstanceVersion: core.InstanceVersion,
				InstanceType:    core.InstanceType,
				Routes:          router.Routes(),
			},
		}, nil
	})
}

func healthHandler(reporter healthReporter) bus.Handler {
	return func(context.Context, bus.Request) (bus.Response, error) {
		return bus.Response{Status: http.StatusOK, Payload: reporter.Health()}, nil
	}
}

// newProbeHandler serves GET /health, answering 200 while the connection is healthy and 503 otherwise.
func newProbeHandler(reporter healthReporter) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		health := reporter.Health()

		w.Header().Set("Content-Type", "application/json")
		if health.Healthy {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		if err := json.NewEncoder(w).Encode(health); err != nil {
			log.WithError(err).Debug("Writing health probe response errored")
		}
	}).Methods(http.MethodGet)

	return router
}
