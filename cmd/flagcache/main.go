// Command flagcache resolves feature flags from the command line.
//
// It drives the same Manager an application embeds, so it doubles as a
// smoke test for an evaluation service, a storage snapshot or a rule file.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
