// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/gorilla/websocket"
)

// TransportKind classifies a TransportError.
type TransportKind int

const (
	TransportUnknown TransportKind = iota

	// TransportDNS is a failed name resolution of the relay's host.
	TransportDNS

	// TransportRefused is a refused TCP connection.
	TransportRefused

	// TransportTimeout is an exceeded connect or handshake timeout.
	TransportTimeout

	// TransportTLS is a failed TLS handshake, e.g., an untrusted certificate.
	TransportTLS

	// TransportHandshake is a rejected WebSocket upgrade.
	TransportHandshake

	// TransportClosed is a connection closed by either peer.
	TransportClosed
)

func (k TransportKind) String() string {
	switch k {
	case TransportDNS:
		return "dns"
	case TransportRefused:
		return "connection refused"
	case TransportTimeout:
		return "timeout"
	case TransportTLS:
		return "tls"
	case TransportHandshake:
		return "websocket handshake"
	case TransportClosed:
		return "connection closed"
	default:
		return "unknown"
	}
}

// TransportError is a failure of the connection to the relay.
type TransportError struct {
	Kind TransportKind
	URL  string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error (%v) for %s: %v", e.Kind, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// newTransportError classifies an error of dialing or using the relay's connection. A failed WebSocket upgrade's
// HTTP response might be passed to enrich the error.
func newTransportError(url string, err error, resp *http.Response) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}

	if resp != nil && errors.Is(err, websocket.ErrBadHandshake) {
		err = fmt.Errorf("%w, status %s", err, resp.Status)
	}

	return &TransportError{
		Kind: classifyTransportError(err),
		URL:  url,
		Err:  err,
	}
}

func classifyTransportError(err error) TransportKind {
	var (
		dnsErr       *net.DNSError
		netErr       net.Error
		closeErr     *websocket.CloseError
		verifyErr    *tls.CertificateVerificationError
		recordErr    tls.RecordHeaderError
		authorityErr x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)

	switch {
	case errors.As(err, &dnsErr):
		return TransportDNS

	case errors.Is(err, syscall.ECONNREFUSED):
		return TransportRefused

	case errors.As(err, &verifyErr), errors.As(err, &recordErr), errors.As(err, &authorityErr),
		errors.As(err, &hostnameErr), errors.As(err, &invalidErr):
		return TransportTLS

	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return TransportTimeout

	case errors.Is(err, websocket.ErrBadHandshake):
		return TransportHandshake

	case errors.As(err, &closeErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed), errors.Is(err, websocket.ErrCloseSent):
		return TransportClosed

	default:
		return TransportUnknown
	}
}
