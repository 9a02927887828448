// Command procsched runs synthetic workloads through the procsched
// scheduler, for experimentation, and as a reference driver integration.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
