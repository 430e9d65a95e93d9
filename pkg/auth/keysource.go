// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

import (
	"context"
	"crypto/rsa"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/fsnotify/fsnotify"

	"github.com/frankframework/relay-tunnel/pkg/hybrid"
)

// KeySource resolves the public key used to verify bearer tokens.
type KeySource interface {
	// Key returns the current verification key.
	Key() (*rsa.PublicKey, error)

	// Invalidate drops a cached key. The next Key call resolves it again.
	Invalidate()
}

// StaticKeySource always returns the same key.
type StaticKeySource struct {
	pub *rsa.PublicKey
}

// NewStaticKeySource for a fixed key, e.g., the console's own key for verifying replies in tests.
func NewStaticKeySource(pub *rsa.PublicKey) *StaticKeySource {
	return &StaticKeySource{pub: pub}
}

func (s *StaticKeySource) Key() (*rsa.PublicKey, error) {
	return s.pub, nil
}

func (s *StaticKeySource) Invalidate() {}

// TrustStoreKeySource lazily loads the certificate for an alias from a PEM trust store file and caches its public
// key until Invalidate is called, either explicitly or by Watch on a change of the file.
type TrustStoreKeySource struct {
	sync.Mutex

	filename string
	alias    string
	cached   *rsa.PublicKey
}

// NewTrustStoreKeySource for a trust store file and a certificate alias, which might be empty for a single
// certificate store. Nothing is read before the first Key call.
func NewTrustStoreKeySource(filename, alias string) *TrustStoreKeySource {
	return &TrustStoreKeySource{
		filename: filename,
		alias:    alias,
	}
}

func (s *TrustStoreKeySource) Key() (*rsa.PublicKey, error) {
	s.Lock()
	defer s.Unlock()

	if s.cached != nil {
		return s.cached, nil
	}

	ts, err := hybrid.LoadTrustStore(s.filename)
	if err != nil {
		return nil, newError(UnresolvableKey, err)
	}

	pub, err := ts.PublicKey(s.alias)
	if err != nil {
		return nil, newError(UnresolvableKey, err)
	}

	log.WithFields(log.Fields{
		"trust store": s.filename,
		"alias":       s.alias,
	}).Debug("Resolved token verification key")

	s.cached = pub
	return pub, nil
}

func (s *TrustStoreKeySource) Invalidate() {
	s.Lock()
	defer s.Unlock()

	s.cached = nil
}

// Watch invalidates the cached key whenever the trust store file is written, replaced or removed. It blocks until
// the context is done or the watcher fails.
func (s *TrustStoreKeySource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	// The directory is watched, as trust stores are commonly replaced by a rename.
	target := filepath.Clean(s.filename)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}

	logger := log.WithField("trust store", target)
	logger.Debug("Watching trust store for rotation")

	for {
		select {
		case <-ctx.Done():
			return nil

		case e, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(e.Name) != target {
				continue
			}
			if e.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}

			logger.WithField("operation", e.Op.String()).Info("Trust store changed, invalidating verification key")
			s.Invalidate()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("Trust store watcher errored")
			return err
		}
	}
}
