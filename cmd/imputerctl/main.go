// Command imputerctl trains, inspects, and publishes imputer artifacts and
// runs one-off imputations against them.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
