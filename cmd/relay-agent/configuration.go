// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/frankframework/relay-tunnel/internal/keyconf"
	"github.com/frankframework/relay-tunnel/internal/logconf"
	"github.com/frankframework/relay-tunnel/pkg/agent"
	"github.com/frankframework/relay-tunnel/pkg/auth"
	"github.com/frankframework/relay-tunnel/pkg/bus"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Core        coreConf
	Logging     logconf.LogConf
	Keys        keyconf.KeysConf
	Switchboard switchboardConf
	Reconnect   reconnectConf
	Auth        authConf
	Probe       probeConf
}

// coreConf describes the Core-configuration block.
type coreConf struct {
	ClientID        string `toml:"client-id"`
	InstanceName    string `toml:"instance-name"`
	InstanceVersion string `toml:"instance-version"`
	InstanceType    string `toml:"instance-type"`
	Profiling       bool
}

// switchboardConf describes the connection towards the relay.
type switchboardConf struct {
	WebSocket      string `toml:"websocket"`
	ConnectTimeout string `toml:"connect-timeout"`
	MaxFrameSize   int64  `toml:"max-frame-size"`
	MaxReplySize   int64  `toml:"max-reply-size"`
}

// reconnectConf describes the Reconnect-configuration block.
type reconnectConf struct {
	Initial        string
	Max            string
	Multiplier     float64
	Jitter         float64
	MaxAttempts    int `toml:"max-attempts"`
	UnhealthyAfter int `toml:"unhealthy-after"`
}

// authConf describes the bearer token verification.
type authConf struct {
	Issuer          string
	Leeway          string
	WatchTrustStore bool `toml:"watch-trust-store"`
}

// probeConf describes the health probe listener. An empty listen address disables it.
type probeConf struct {
	Listen string
}

// daemon bundles everything relay-agent runs.
type daemon struct {
	gateway   *agent.Gateway
	router    *bus.Router
	keys      *auth.TrustStoreKeySource
	probe     *http.Server
	profiling bool
}

// parseDuration of a configuration field. An empty value results in zero, to be replaced by a default.
func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	} else if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %v", field, d)
	}
	return d, nil
}

// checkValid reports all configuration errors at once.
func (conf tomlConfig) checkValid() (errs error) {
	if conf.Core.InstanceName == "" {
		errs = multierror.Append(errs, errors.New("core.instance-name is empty"))
	}
	if conf.Core.ClientID != "" {
		if _, err := uuid.Parse(conf.Core.ClientID); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("core.client-id: %w", err))
		}
	}

	if err := conf.Keys.CheckValid(true); err != nil {
		errs = multierror.Append(errs, err)
	}

	if conf.Switchboard.WebSocket == "" {
		errs = multierror.Append(errs, errors.New("switchboard.websocket is empty"))
	}

	for field, value := range map[string]string{
		"switchboard.connect-timeout": conf.Switchboard.ConnectTimeout,
		"reconnect.initial":           conf.Reconnect.Initial,
		"reconnect.max":               conf.Reconnect.Max,
		"auth.leeway":                 conf.Auth.Leeway,
	} {
		if _, err := parseDuration(field, value); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if conf.Reconnect.Jitter >= 1 {
		errs = multierror.Append(errs, fmt.Errorf("reconnect.jitter %v is not below one", conf.Reconnect.Jitter))
	}
	if conf.Reconnect.Multiplier != 0 && conf.Reconnect.Multiplier < 1 {
		errs = multierror.Append(errs, fmt.Errorf("reconnect.multiplier %v is less than one", conf.Reconnect.Multiplier))
	}

	return
}

// gatewayConfig derives the agent.Config from a validated configuration.
func (conf tomlConfig) gatewayConfig() (c agent.Config) {
	c = agent.Config{
		InstanceName:    conf.Core.InstanceName,
		InstanceVersion: conf.Core.InstanceVersion,
		InstanceType:    conf.Core.InstanceType,
		URL:             conf.Switchboard.WebSocket,
		MaxFrameSize:    conf.Switchboard.MaxFrameSize,
		MaxReplySize:    conf.Switchboard.MaxReplySize,
		MaxAttempts:     conf.Reconnect.MaxAttempts,
		UnhealthyAfter:  conf.Reconnect.UnhealthyAfter,
		Backoff: agent.Backoff{
			Multiplier: conf.Reconnect.Multiplier,
			Jitter:     conf.Reconnect.Jitter,
		},
	}

	if conf.Core.ClientID != "" {
		c.ClientID = uuid.MustParse(conf.Core.ClientID)
	}

	c.ConnectTimeout, _ = parseDuration("switchboard.connect-timeout", conf.Switchboard.ConnectTimeout)
	c.Backoff.Initial, _ = parseDuration("reconnect.initial", conf.Reconnect.Initial)
	c.Backoff.Max, _ = parseDuration("reconnect.max", conf.Reconnect.Max)
	return
}

// parseConfig reads and validates a TOML configuration file.
func parseConfig(filename string) (conf tomlConfig, err error) {
	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}

	err = conf.checkValid()
	return
}

// parseDaemon reads the configuration and builds the daemon. The logging block is applied first.
func parseDaemon(filename string) (d *daemon, err error) {
	conf, err := parseConfig(filename)
	if err != nil {
		return
	}

	conf.Logging.Apply()

	provider, err := conf.Keys.Provider()
	if err != nil {
		return
	}

	keys := auth.NewTrustStoreKeySource(conf.Keys.TrustStore, conf.Keys.TrustAlias)
	if _, keyErr := keys.Key(); keyErr != nil {
		err = keyErr
		return
	}

	verifierOpts := []auth.VerifierOption{auth.WithIssuer(conf.Auth.Issuer)}
	if leeway, _ := parseDuration("auth.leeway", conf.Auth.Leeway); leeway > 0 {
		verifierOpts = append(verifierOpts, auth.WithLeeway(leeway))
	}
	verifier := auth.NewVerifier(keys, verifierOpts...)

	d = &daemon{
		router:    bus.NewRouter(),
		profiling: conf.Core.Profiling,
	}
	if conf.Auth.WatchTrustStore {
		d.keys = keys
	}

	if d.gateway, err = agent.NewGateway(conf.gatewayConfig(), provider, verifier, d.router); err != nil {
		return
	}

	registerHandlers(d.router, d.gateway, conf.Core)

	if conf.Probe.Listen != "" {
		d.probe = &http.Server{
			Addr:              conf.Probe.Listen,
			Handler:           newProbeHandler(d.gateway),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	log.WithFields(log.Fields{
		"client id":   d.gateway.ClientID(),
		"switchboard": conf.Switchboard.WebSocket,
		"routes":      d.router.Routes(),
	}).Info("Parsed configuration")

	return
}
