package main

import (
	"github.com/projectdiscovery/arpcache/internal/runner"
	"github.com/projectdiscovery/gologger"
)

func main() {
	options := runner.ParseOptions()

	arpcacheRunner, err := runner.NewRunner(options)
	if err != nil {
		gologger.Fatal().Msgf("Could not create runner: %s\n", err)
	}
	defer arpcacheRunner.Close()

	if err := arpcacheRunner.Run(); err != nil {
		gologger.Fatal().Msgf("Could not run arpcache: %s\n", err)
	}
}
