// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// skycached is the caching daemon: it runs the scheduled caching
// agents for every configured (account, region), serves on-demand
// refresh and discovery status requests, and exposes prometheus
// metrics.
package main

import (
	"fmt"
	"os"

	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("skycache.cmd.skycached")

func main() {
	flags := gnuflag.NewFlagSetWithFlagKnownAs("skycached", gnuflag.ExitOnError, "option")
	configPath := flags.String("config", "/etc/skycache/skycache.yaml", "path to the configuration file")
	logConfig := flags.String("log-config", "<root>=INFO", "loggo logger configuration")
	flags.Parse(true, os.Args[1:])

	if err := loggo.ConfigureLoggers(*logConfig); err != nil {
		fmt.Fprintf(os.Stderr, "skycached: invalid log config: %v\n", err)
		os.Exit(2)
	}

	if err := run(*configPath); err != nil {
		logger.Errorf("%v", err)
		fmt.Fprintf(os.Stderr, "skycached: %v\n", err)
		os.Exit(1)
	}
}
