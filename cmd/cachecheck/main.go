package main

import (
	"fmt"
	"os"

	"github.com/sand-blocks/tripco-hashicorp-cluster/pkg/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
