// Command c2csim runs channel negotiation and ring stress scenarios on an
// in-process fabric of clusters.
package main

import "github.com/tebeka/atexit"

func main() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
