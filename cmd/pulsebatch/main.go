package main

import (
	"fmt"
	"os"

	"github.com/teranos/pulsebatch/cmd/pulsebatch/commands"
	"github.com/teranos/pulsebatch/errors"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if hint := errors.FlattenHints(err); hint != "" {
			fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
		}
		os.Exit(1)
	}
}
