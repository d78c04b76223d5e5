package main

import "github.com/cgedge/slipfill/pkg/cli"

func main() {
	cli.Execute()
}
