// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package hybrid

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// TrustStore is a read-only bundle of trusted certificates, addressed by their subject's common name.
type TrustStore struct {
	certs []*x509.Certificate
}

// LoadTrustStore reads all PEM certificate blocks of a file.
func LoadTrustStore(filename string) (*TrustStore, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading trust store %s: %w", filename, err)
	}
	return ParseTrustStore(data)
}

// ParseTrustStore parses a PEM bundle. Non-certificate blocks are skipped; an empty bundle is an error.
func ParseTrustStore(data []byte) (*TrustStore, error) {
	ts := &TrustStore{}

	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		} else if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing trust store certificate: %w", err)
		}
		ts.certs = append(ts.certs, cert)
	}

	if len(ts.certs) == 0 {
		return nil, fmt.Errorf("trust store contains no certificates")
	}
	return ts, nil
}

// NewTrustStore wraps already parsed certificates.
func NewTrustStore(certs ...*x509.Certificate) *TrustStore {
	return &TrustStore{certs: certs}
}

// Certificates returns all trusted certificates.
func (ts *TrustStore) Certificates() []*x509.Certificate {
	return ts.certs
}

// Certificate looks up the certificate for an alias. An empty alias is only allowed for a trust store holding
// exactly one certificate.
func (ts *TrustStore) Certificate(alias string) (*x509.Certificate, error) {
	if alias == "" {
		if len(ts.certs) != 1 {
			return nil, fmt.Errorf("trust store holds %d certificates, an alias is required", len(ts.certs))
		}
		return ts.certs[0], nil
	}

	for _, cert := range ts.certs {
		if cert.Subject.CommonName == alias {
			return cert, nil
		}
	}
	return nil, fmt.Errorf("no certificate for alias %q", alias)
}

// PublicKey of the certificate for an alias, see Certificate.
func (ts *TrustStore) PublicKey(alias string) (*rsa.PublicKey, error) {
	cert, err := ts.Certificate(alias)
	if err != nil {
		return nil, err
	}

	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("certificate %q carries a %T, only RSA is supported", cert.Subject.CommonName, cert.PublicKey)
	}
	return pub, nil
}

// CertPool of all trusted certificates.
func (ts *TrustStore) CertPool() *x509.CertPool {
	pool := x509.NewCertPool()
	for _, cert := range ts.certs {
		pool.AddCert(cert)
	}
	return pool
}
