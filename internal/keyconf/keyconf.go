// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package keyconf holds the key material configuration block shared by all binaries.
package keyconf

import (
	"errors"

	"github.com/hashicorp/go-multierror"

	"github.com/frankframework/relay-tunnel/pkg/hybrid"
)

// KeysConf describes the Keys-configuration block.
type KeysConf struct {
	Certificate        string
	PrivateKey         string `toml:"private-key"`
	TrustStore         string `toml:"trust-store"`
	TrustAlias         string `toml:"trust-alias"`
	CA                 string
	InsecureSkipVerify bool `toml:"insecure-skip-verify"`
}

// CheckValid reports all missing mandatory fields at once.
func (conf KeysConf) CheckValid(requireTrustStore bool) (errs error) {
	if conf.Certificate == "" {
		errs = multierror.Append(errs, errors.New("keys.certificate is empty"))
	}
	if conf.PrivateKey == "" {
		errs = multierror.Append(errs, errors.New("keys.private-key is empty"))
	}
	if requireTrustStore && conf.TrustStore == "" {
		errs = multierror.Append(errs, errors.New("keys.trust-store is empty"))
	}
	return
}

// Provider loads the configured key pair and TLS settings. The trust store is resolved separately, e.g., by an
// auth.TrustStoreKeySource.
func (conf KeysConf) Provider() (*hybrid.Provider, error) {
	kp, err := hybrid.LoadKeyPair(conf.Certificate, conf.PrivateKey)
	if err != nil {
		return nil, err
	}

	var opts []hybrid.ProviderOption
	if conf.CA != "" {
		opts = append(opts, hybrid.WithRootCAFile(conf.CA))
	}
	opts = append(opts, hybrid.WithInsecureSkipVerify(conf.InsecureSkipVerify))

	return hybrid.NewProvider(kp, opts...)
}
