package main

import (
	"os"

	"github.com/blixt/nexus/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:]))
}
