// Command interactiondb imports reaction network records and curates the
// unified entity store.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
