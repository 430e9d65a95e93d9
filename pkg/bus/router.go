// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bus

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/frankframework/relay-tunnel/pkg/auth"
)

// Handler executes a Request. The caller's Identity is available through auth.FromContext.
type Handler func(ctx context.Context, req Request) (Response, error)

type route struct {
	topic  Topic
	action Action
}

type registration struct {
	handler Handler
	roles   []string
}

// Router is a Dispatcher based on an explicit table of handlers, registered per Topic and Action.
type Router struct {
	sync.RWMutex

	routes map[route]registration

	// asyncWg tracks fire-and-forget executions.
	asyncWg sync.WaitGroup
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{
		routes: make(map[route]registration),
	}
}

// Handle registers a Handler for a Topic and Action. If roles are given, the caller's Identity must hold at least
// one of them. An existing registration is replaced.
func (r *Router) Handle(topic Topic, action Action, handler Handler, roles ...string) {
	r.Lock()
	defer r.Unlock()

	if _, exists := r.routes[route{topic, action}]; exists {
		log.WithFields(log.Fields{
			"topic":  topic,
			"action": action,
		}).Warn("Replacing an already registered bus handler")
	}

	r.routes[route{topic, action}] = registration{
		handler: handler,
		roles:   roles,
	}
}

// Routes lists all registered Topic and Action pairs, e.g., "HEALTH/GET".
func (r *Router) Routes() (routes []string) {
	r.RLock()
	defer r.RUnlock()

	for rt := range r.routes {
		routes = append(routes, fmt.Sprintf("%s/%s", rt.topic, rt.action))
	}
	sort.Strings(routes)
	return
}

// lookup the Handler for a Request, after checking the ambient Identity against its roles.
func (r *Router) lookup(ctx context.Context, req Request) (Handler, error) {
	id, ok := auth.FromContext(ctx)
	if !ok {
		return nil, NewError(http.StatusUnauthorized, fmt.Errorf("no identity for %v", req))
	}

	r.RLock()
	reg, ok := r.routes[route{req.Topic, req.Action}]
	r.RUnlock()

	if !ok {
		return nil, Errorf(http.StatusNotFound, "no handler for %v", req)
	} else if err := auth.Authorize(id, reg.roles...); err != nil {
		return nil, NewError(http.StatusForbidden, err)
	}

	return reg.handler, nil
}

// DispatchSync executes the registered Handler for this Request.
func (r *Router) DispatchSync(ctx context.Context, req Request) (resp Response, err error) {
	handler, err := r.lookup(ctx, req)
	if err != nil {
		return
	}

	resp, err = handler(ctx, req)
	if err == nil && resp.Status == 0 {
		resp.Status = http.StatusOK
	}
	return
}

// DispatchAsync executes the registered Handler in the background. Its result is only logged.
func (r *Router) DispatchAsync(ctx context.Context, req Request) error {
	handler, err := r.lookup(ctx, req)
	if err != nil {
		return err
	}

	// The caller's context ends with the relayed call, but its Identity is kept.
	id, _ := auth.FromContext(ctx)
	asyncCtx := auth.NewContext(context.Background(), id)

	r.asyncWg.Add(1)
	go func() {
		defer r.asyncWg.Done()

		logger := log.WithField("request", req.String())
		if resp, err := handler(asyncCtx, req); err != nil {
			logger.WithError(err).Warn("Asynchronous bus handler errored")
		} else {
			if closer, ok := resp.Stream.(interface{ Close() error }); ok {
				_ = closer.Close()
			}
			logger.Debug("Asynchronous bus handler finished")
		}
	}()

	return nil
}

// Wait blocks until all asynchronous executions have finished.
func (r *Router) Wait() {
	r.asyncWg.Wait()
}
