package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/habedi/tenantctl/cmd"
	"github.com/habedi/tenantctl/pkg/clierr"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// main sets up logging from DEBUG_TENANTCTL, cancels in-flight work on the
// first interrupt and exits with a status derived from the error kind.
func main() {
	configureLogLevelFromEnv()

	ctx, cancel := context.WithCancel(context.Background())
	stopChan := setupInterruptListener()
	go handleInterrupt(stopChan, cancel, func(msg string) { log.Warn().Msg(msg) }, os.Exit)

	err := cmd.Execute(ctx)
	cancel()
	os.Exit(clierr.ExitCode(err))
}

// configureLogLevelFromEnv enables debug logging to stderr when DEBUG_TENANTCTL
// is set to anything but "", "0" or "false"; otherwise logging is disabled.
func configureLogLevelFromEnv() {
	switch os.Getenv("DEBUG_TENANTCTL") {
	case "", "0", "false":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	default:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// setupInterruptListener returns a channel that receives os.Interrupt.
func setupInterruptListener() chan os.Signal {
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt)
	return stopChan
}

// handleInterrupt cancels the running command on the first signal and exits
// on the second, for calls that do not honour cancellation.
func handleInterrupt(stopChan chan os.Signal, cancel context.CancelFunc, logFn func(string), exitFn func(int)) {
	<-stopChan
	logFn("Interrupt signal received. Cancelling...")
	cancel()
	<-stopChan
	logFn("Interrupt signal received again. Exiting...")
	exitFn(130)
}
