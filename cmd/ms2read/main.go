// ms2read - MS2 spectrum and precursor extraction tool
package main

import (
	"fmt"
	"os"

	"github.com/ChrisMcGann/ms2read/cmd/ms2read/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
