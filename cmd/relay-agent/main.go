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

	"github.com/pkg/profile"
	"golang.org/x/sync/errgroup"
)

// run the gateway, the optional trust store watcher and the optional probe listener until the context is done or
// one of them fails.
func (d *daemon) run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return d.gateway.Run(ctx)
	})

	if d.keys != nil {
		group.Go(func() error {
			return d.keys.Watch(ctx)
		})
	}

	if d.probe != nil {
		group.Go(func() error {
			log.WithField("listen", d.probe.Addr).Info("Starting health probe listener")

			if err := d.probe.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})

		group.Go(func() error {
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return d.probe.Shutdown(shutdownCtx)
		})
	}

	err := group.Wait()
	d.router.Wait()
	return err
}

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s configuration.toml", os.Args[0])
	}

	d, err := parseDaemon(os.Args[1])
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Fatal("Failed to parse config")
	}

	var prof interface{ Stop() }
	if d.profiling {
		prof = profile.Start(profile.ProfilePath("."))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err = d.run(ctx)
	stop()

	if prof != nil {
		prof.Stop()
	}

	if err != nil {
		log.WithError(err).Fatal("Relay agent failed")
	}
	log.Info("Shutting down..")
}
