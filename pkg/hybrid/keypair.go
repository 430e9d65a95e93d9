// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package hybrid

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"
)

// KeyPair is the local identity: an X.509 certificate and its RSA private key.
type KeyPair struct {
	Certificate *x509.Certificate
	PrivateKey  *rsa.PrivateKey
}

// LoadKeyPair reads a PEM encoded certificate and a PEM encoded RSA private key, either PKCS #1 or PKCS #8.
func LoadKeyPair(certFile, keyFile string) (kp *KeyPair, err error) {
	certPEM, certErr := os.ReadFile(certFile)
	if certErr != nil {
		err = fmt.Errorf("reading certificate %s: %w", certFile, certErr)
		return
	}

	keyPEM, keyErr := os.ReadFile(keyFile)
	if keyErr != nil {
		err = fmt.Errorf("reading private key %s: %w", keyFile, keyErr)
		return
	}

	return ParseKeyPair(certPEM, keyPEM)
}

// ParseKeyPair parses the PEM representations of a certificate and its private key.
func ParseKeyPair(certPEM, keyPEM []byte) (*KeyPair, error) {
	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil || certBlock.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no PEM certificate block found")
	}

	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing certificate: %w", err)
	}

	priv, err := parsePrivateKey(keyPEM)
	if err != nil {
		return nil, err
	}

	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("certificate carries a %T, only RSA is supported", cert.PublicKey)
	} else if pub.N.Cmp(priv.N) != 0 || pub.E != priv.E {
		return nil, fmt.Errorf("private key does not match the certificate")
	}

	return &KeyPair{Certificate: cert, PrivateKey: priv}, nil
}

func parsePrivateKey(keyPEM []byte) (*rsa.PrivateKey, error) {
	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, fmt.Errorf("no PEM private key block found")
	}

	switch keyBlock.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(keyBlock.Bytes)

	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
		if err != nil {
			return nil, err
		}
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
		return nil, fmt.Errorf("private key is a %T, only RSA is supported", key)

	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", keyBlock.Type)
	}
}

// NewSelfSignedKeyPair creates a fresh RSA key and a self-signed certificate for the given common name. The
// certificate is usable for both TLS client authentication and token signing.
func NewSelfSignedKeyPair(commonName string, bits int) (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: commonName},
		DNSNames:     []string{commonName},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().AddDate(2, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, err
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}

	return &KeyPair{Certificate: cert, PrivateKey: priv}, nil
}

// CertificatePEM returns the PEM encoded certificate.
func (kp *KeyPair) CertificatePEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: kp.Certificate.Raw})
}

// PrivateKeyPEM returns the PEM encoded PKCS #1 private key.
func (kp *KeyPair) PrivateKeyPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(kp.PrivateKey)})
}

// WriteKeyPair stores the certificate and the private key as PEM files. The private key is only readable by the
// current user.
func (kp *KeyPair) WriteKeyPair(certFile, keyFile string) error {
	if err := os.WriteFile(certFile, kp.CertificatePEM(), 0644); err != nil {
		return err
	}
	return os.WriteFile(keyFile, kp.PrivateKeyPEM(), 0600)
}

// PublicKey of this KeyPair.
func (kp *KeyPair) PublicKey() *rsa.PublicKey {
	return &kp.PrivateKey.PublicKey
}

// TLSCertificate converts this KeyPair for a tls.Config.
func (kp *KeyPair) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{kp.Certificate.Raw},
		PrivateKey:  kp.PrivateKey,
		Leaf:        kp.Certificate,
	}
}

// PublicKeyBase64 encodes a public key as base64 of its DER PKIX form, the representation exchanged in
// handshakes and directory entries.
func PublicKeyBase64(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", newSecurityError("encode public key", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// ParsePublicKeyBase64 reverses PublicKeyBase64.
func ParsePublicKeyBase64(s string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, newSecurityError("decode public key", err)
	}

	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, newSecurityError("decode public key", err)
	}

	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, newSecurityError("decode public key", fmt.Errorf("unsupported key type %T", key))
	}
	return pub, nil
}
