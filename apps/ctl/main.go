package main

import (
	"os"

	"github.com/smallbiznis/formmetrics/apps/ctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
