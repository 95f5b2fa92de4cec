// Command landscape-broker runs the client-side message exchange core: it
// keeps a durable outbound message store, periodically exchanges messages
// with a Landscape-style management server, and handles registration and
// server-pushed configuration changes.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
