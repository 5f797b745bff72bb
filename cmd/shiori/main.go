// Command shiori runs the conversational context and retrieval engine of the
// project portal assistant.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
