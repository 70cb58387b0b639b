// Command sitegest crawls sites into a deduplicated chunk corpus and feeds
// new chunks to a search index.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
