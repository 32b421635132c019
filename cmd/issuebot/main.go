// Command issuebot watches chat conversations for issue keys and replies with
// issue summaries.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
