// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"

	"github.com/frankframework/relay-tunnel/internal/keyconf"
	"github.com/frankframework/relay-tunnel/internal/logconf"
	"github.com/frankframework/relay-tunnel/pkg/auth"
	"github.com/frankframework/relay-tunnel/pkg/console"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Console     consoleConf
	Logging     logconf.LogConf
	Keys        keyconf.KeysConf
	Switchboard switchboardConf
}

// consoleConf describes the identity asserted towards the agents.
type consoleConf struct {
	Name     string
	Roles    []string
	TokenTTL string `toml:"token-ttl"`
}

// switchboardConf describes the relay's API.
type switchboardConf struct {
	API     string `toml:"api"`
	Timeout string
}

func (conf tomlConfig) durations() (ttl, timeout time.Duration, errs error) {
	if conf.Console.TokenTTL != "" {
		if d, err := time.ParseDuration(conf.Console.TokenTTL); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("console.token-ttl: %w", err))
		} else {
			ttl = d
		}
	}

	if conf.Switchboard.Timeout != "" {
		if d, err := time.ParseDuration(conf.Switchboard.Timeout); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("switchboard.timeout: %w", err))
		} else {
			timeout = d
		}
	}
	return
}

// checkValid reports all configuration errors at once.
func (conf tomlConfig) checkValid() (errs error) {
	if conf.Console.Name == "" {
		errs = multierror.Append(errs, errors.New("console.name is empty"))
	}
	if conf.Switchboard.API == "" {
		errs = multierror.Append(errs, errors.New("switchboard.api is empty"))
	}
	if err := conf.Keys.CheckValid(false); err != nil {
		errs = multierror.Append(errs, err)
	}
	if _, _, err := conf.durations(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return
}

// parseGateway reads the configuration and builds the console's Gateway.
func parseGateway(filename string) (g *console.Gateway, err error) {
	var conf tomlConfig
	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}

	if err = conf.checkValid(); err != nil {
		return
	}

	conf.Logging.Apply()

	provider, err := conf.Keys.Provider()
	if err != nil {
		return
	}

	ttl, timeout, _ := conf.durations()
	issuer := auth.NewIssuer(provider.KeyPair().PrivateKey, conf.Console.Name, ttl)

	return console.NewGateway(console.Config{
		API: conf.Switchboard.API,
		Identity: auth.Identity{
			Subject: conf.Console.Name,
			Roles:   conf.Console.Roles,
		},
		Timeout: timeout,
	}, provider, issuer)
}
