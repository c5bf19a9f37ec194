// ABOUTME: Entry point for the Salaam network browser
// ABOUTME: Parses CLI flags, runs a browser, and streams events as logs
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Salaam-Protocol/salaam-go/pkg/announcer"
	"github.com/Salaam-Protocol/salaam-go/pkg/browser"
	"github.com/Salaam-Protocol/salaam-go/pkg/protocol"
)

var (
	serviceType = flag.String("type", browser.WildcardServiceType, "Service type to browse for (\"*\" for all)")
	port        = flag.Int("port", protocol.DefaultPort, "UDP port to listen on")
	delay       = flag.Duration("delay", browser.DefaultDisappearanceDelay, "Silence window before an instance is considered gone")
	local       = flag.Bool("local", false, "Also report announcements from this machine")
	debug       = flag.Bool("debug", false, "Enable debug logging")

	announce        = flag.String("announce", "", "Also announce a local service with this instance name")
	announcePort    = flag.Int("announce-port", 0, "Port of the announced service")
	announceMessage = flag.String("announce-message", "", "Status message of the announced service")
)

func main() {
	flag.Parse()

	log := createLogger(*debug)

	b := browser.New(browser.Config{
		Port:                    *port,
		DisappearanceDelay:      *delay,
		ReceiveFromLocalMachine: *local,
		Logger:                  &log,
	})

	if err := b.Start(*serviceType); err != nil {
		log.Fatal().Err(err).Msg("cannot start browser")
	}
	defer b.Stop()

	if *announce != "" {
		a, err := announcer.New(announcer.Config{
			ServiceType: *serviceType,
			Name:        *announce,
			Port:        *announcePort,
			Message:     *announceMessage,
			Logger:      &log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("cannot create announcer")
		}
		if err := a.Start(); err != nil {
			log.Fatal().Err(err).Msg("cannot start announcer")
		}
		defer a.Stop()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case ev := <-b.Events():
			logEvent(log, ev)
		case <-sig:
			log.Info().Msg("shutting down")
			return
		}
	}
}

func logEvent(log zerolog.Logger, ev browser.Event) {
	entry := log.Info().Stringer("event", ev.Type)
	if ev.Service != nil {
		entry = entry.
			Str("name", ev.Service.Name).
			Str("type", ev.Service.ServiceType).
			Str("host", ev.Service.HostName).
			Str("address", ev.Service.Address).
			Int("port", ev.Service.Port).
			Str("message", ev.Service.Message).
			Bool("local", ev.Local)
	}
	entry.Send()
}

func createLogger(debug bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}
