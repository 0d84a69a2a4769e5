package main

import (
	"fmt"
	"os"

	"github.com/ccontavalli/nativestore/nativestore/cmd"
)

func main() {
	command := cmd.New()
	exitIf(command.Execute())
}

func exitIf(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
