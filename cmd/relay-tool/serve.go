// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/frankframework/relay-tunnel/pkg/switchboard"
)

// newServer hosting a development Switchboard.
func newServer(addr string, timeout time.Duration) (*http.Server, *switchboard.Switchboard) {
	var opts []switchboard.Option
	if timeout > 0 {
		opts = append(opts, switchboard.WithTimeout(timeout))
	}

	sb := switchboard.NewSwitchboard(opts...)
	return &http.Server{
		Addr:              addr,
		Handler:           sb,
		ReadHeaderTimeout: 10 * time.Second,
	}, sb
}

// serve for the "serve" CLI option.
func serve(args []string) {
	if len(args) != 1 && len(args) != 2 {
		printUsage()
	}

	var timeout time.Duration
	if len(args) == 2 {
		if t, err := time.ParseDuration(args[1]); err != nil {
			log.WithError(err).Fatal("Parsing timeout errored")
		} else {
			timeout = t
		}
	}

	log.SetLevel(log.DebugLevel)

	srv, sb := newServer(args[0], timeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Info("Shutting down..")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		sb.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Shutting down the relay errored")
		}
	}()

	log.WithField("listen", srv.Addr).Info("Starting development relay")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("Development relay errored")
	}
}
