// Command threadctl inspects the threads of running processes.
//
//	threadctl list --http http://localhost:8089
//	threadctl query <instance> --bus nats
//	threadctl watch --bus redis --stall-after 30s
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
