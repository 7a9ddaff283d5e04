package main

import (
	"fmt"
	"os"
)

func main() {
	if err := RootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "msplay: %v\n", err)
		os.Exit(1)
	}
}
