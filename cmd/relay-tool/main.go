// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"os"
)

// printUsage of relay-tool and exit with an error code afterwards.
func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage of %s create-key|public-key|serve:\n\n", os.Args[0])

	_, _ = fmt.Fprintf(os.Stderr, "%s create-key common-name cert.pem key.pem [bits]\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Creates a self-signed certificate and its RSA private key, e.g., for an agent\n")
	_, _ = fmt.Fprintf(os.Stderr, "  or a console. Pass the console's certificate as an agent's trust store.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s public-key cert.pem\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Prints the certificate's public key in the base64 encoding of a handshake.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s serve listen-address [timeout]\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Runs an in-memory development relay, e.g., on \"localhost:8080\". Agents\n")
	_, _ = fmt.Fprintf(os.Stderr, "  connect to ws://listen-address/ws, consoles use http://listen-address/api.\n")
	_, _ = fmt.Fprintf(os.Stderr, "  Synchronous calls time out after the timeout, defaulting to 30s.\n\n")

	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
	}

	switch os.Args[1] {
	case "create-key":
		createKey(os.Args[2:])

	case "public-key":
		showPublicKey(os.Args[2:])

	case "serve":
		serve(os.Args[2:])

	default:
		printUsage()
	}
}
