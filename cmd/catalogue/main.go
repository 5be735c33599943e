// Package main provides the entry point for the catalogue CLI.
package main

import (
	"os"
)

func main() {
	os.Exit(Execute())
}
