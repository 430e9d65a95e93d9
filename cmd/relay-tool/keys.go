// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/frankframework/relay-tunnel/pkg/hybrid"
)

// createKey for the "create-key" CLI option.
func createKey(args []string) {
	if len(args) != 3 && len(args) != 4 {
		printUsage()
	}

	var (
		commonName = args[0]
		certFile   = args[1]
		keyFile    = args[2]
		bits       = 3072
	)

	if len(args) == 4 {
		if b, err := strconv.Atoi(args[3]); err != nil {
			log.WithError(err).Fatal("Parsing key size errored")
		} else {
			bits = b
		}
	}

	kp, err := hybrid.NewSelfSignedKeyPair(commonName, bits)
	if err != nil {
		log.WithError(err).Fatal("Creating key pair errored")
	}

	if err := kp.WriteKeyPair(certFile, keyFile); err != nil {
		log.WithError(err).Fatal("Writing key pair errored")
	}

	log.WithFields(log.Fields{
		"common name": commonName,
		"bits":        bits,
		"certificate": certFile,
		"private key": keyFile,
	}).Info("Created key pair")
}

// readPublicKey of the first certificate within a PEM file.
func readPublicKey(certFile string) (string, error) {
	ts, err := hybrid.LoadTrustStore(certFile)
	if err != nil {
		return "", err
	}

	pub, err := hybrid.NewTrustStore(ts.Certificates()[0]).PublicKey("")
	if err != nil {
		return "", err
	}
	return hybrid.PublicKeyBase64(pub)
}

// showPublicKey for the "public-key" CLI option.
func showPublicKey(args []string) {
	if len(args) != 1 {
		printUsage()
	}

	pub, err := readPublicKey(args[0])
	if err != nil {
		log.WithError(err).Fatal("Reading public key errored")
	}
	fmt.Println(pub)
}
