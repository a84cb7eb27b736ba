// Command cvctl runs maintenance tasks against a CV bank deployment.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
