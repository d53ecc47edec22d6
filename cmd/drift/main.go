package main

import (
	"os"

	"github.com/driftnotes/drift/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
