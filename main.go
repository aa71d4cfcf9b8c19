/*
Runs the testbed game on the maple engine. The configuration file is
watched while running, see config/engine.toml.
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/maple/engine"
	"github.com/spaghettifunk/maple/engine/core"
	"github.com/spaghettifunk/maple/testbed"
)

func main() {
	configPath := flag.String("config", "config/engine.toml", "path of the engine configuration")
	flag.Parse()

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		core.LogWarn("%s, using the default configuration", err)
		cfg = core.DefaultConfig()
		*configPath = ""
	}

	tb := testbed.NewTestGame()

	e, err := engine.New(tb.Game, cfg, *configPath)
	if err != nil {
		core.LogFatal("%s", err)
	}

	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		core.LogFatal("failed to initialize the engine: %s", err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// stop the run loop, shutdown happens on this goroutine once it returns
	go func() {
		<-sigCh
		e.Events().Fire(core.EventApplicationQuit, nil, nil)
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %s", err)
	}
	if runErr != nil {
		core.LogFatal("%s", runErr)
	}
}
