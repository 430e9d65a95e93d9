// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package hybrid

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

// Provider bundles the local KeyPair and the TLS settings towards the relay. All of its state is read-only after
// construction and safe for concurrent use.
type Provider struct {
	keyPair *KeyPair

	rootCAs            *x509.CertPool
	insecureSkipVerify bool
}

// ProviderOption configures optional Provider settings.
type ProviderOption func(*Provider) error

// WithRootCAFile verifies the relay's server certificate against the PEM bundle instead of the system roots.
func WithRootCAFile(filename string) ProviderOption {
	return func(p *Provider) error {
		data, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("reading CA file %s: %w", filename, err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(data) {
			return fmt.Errorf("CA file %s contains no certificates", filename)
		}
		return WithRootCAs(pool)(p)
	}
}

// WithRootCAs verifies the relay's server certificate against the given pool.
func WithRootCAs(pool *x509.CertPool) ProviderOption {
	return func(p *Provider) error {
		p.rootCAs = pool
		return nil
	}
}

// WithInsecureSkipVerify disables the verification of the relay's server certificate. Development only.
func WithInsecureSkipVerify(skip bool) ProviderOption {
	return func(p *Provider) error {
		p.insecureSkipVerify = skip
		return nil
	}
}

// NewProvider for a KeyPair.
func NewProvider(kp *KeyPair, opts ...ProviderOption) (*Provider, error) {
	if kp == nil {
		return nil, fmt.Errorf("a key pair is required")
	}

	p := &Provider{keyPair: kp}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// EncryptHybrid seals the plaintext for the recipient. A nil recipient seals it for the local key pair.
func (p *Provider) EncryptHybrid(plaintext []byte, recipient *rsa.PublicKey) ([]byte, error) {
	if recipient == nil {
		recipient = p.keyPair.PublicKey()
	}
	return EncryptHybrid(plaintext, recipient)
}

// DecryptHybrid opens a ciphertext sealed for the local key pair.
func (p *Provider) DecryptHybrid(ciphertext []byte) ([]byte, error) {
	return DecryptHybrid(ciphertext, p.keyPair.PrivateKey)
}

// KeyPair of the local endpoint.
func (p *Provider) KeyPair() *KeyPair {
	return p.keyPair
}

// PublicKey of the local endpoint.
func (p *Provider) PublicKey() *rsa.PublicKey {
	return p.keyPair.PublicKey()
}

// PublicKeyBase64 of the local endpoint, as announced to the relay or sent in a handshake.
func (p *Provider) PublicKeyBase64() (string, error) {
	return PublicKeyBase64(p.keyPair.PublicKey())
}

// TLSConfig presents the local certificate to the relay.
func (p *Provider) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		Certificates:       []tls.Certificate{p.keyPair.TLSCertificate()},
		RootCAs:            p.rootCAs,
		InsecureSkipVerify: p.insecureSkipVerify,
	}
}

// HTTPClient creates a mutually authenticated HTTP client. The timeout is the only bound of a relayed call; zero
// disables it.
func (p *Provider) HTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = p.TLSConfig()

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// Dialer creates a mutually authenticated WebSocket dialer, bounding both the TCP connect and the opening
// handshake by connectTimeout.
func (p *Provider) Dialer(connectTimeout time.Duration) *websocket.Dialer {
	netDialer := &net.Dialer{Timeout: connectTimeout}

	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		NetDialContext:   netDialer.DialContext,
		HandshakeTimeout: connectTimeout,
		TLSClientConfig:  p.TLSConfig(),
	}
}
