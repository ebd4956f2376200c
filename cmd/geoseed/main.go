// Package main is the entry point for the geoseed binary.
package main

import (
	"os"

	"geoseed/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
