// Package main implements the Lattica ingest daemon: it subscribes to
// inbound stanza subjects on NATS, resolves each stanza into a message
// record, and publishes an acknowledgement carrying the outcome code.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lattica-im/lattica/receive"
	"github.com/lattica-im/lattica/sessions"
	"github.com/lattica-im/lattica/store"
	"github.com/lattica-im/lattica/wire"
)

// Version is set at build time
var Version = "dev"

func main() {
	configPath := flag.String("config", "/etc/lattica/ingestd.yaml", "Path to config file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	selfPhone, err := wire.ParseAddress(cfg.Self.Phone)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid self.phone")
	}
	selfLID, err := wire.ParseAddress(cfg.Self.LID)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid self.lid")
	}

	log.Info().
		Str("version", Version).
		Str("self", selfPhone.String()).
		Msg("Ingest daemon starting")

	mappings, err := store.NewSQLite(cfg.Storage.MappingDB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open mapping store")
	}
	defer mappings.Close()

	sess, err := sessions.New(cfg.Storage.SessionDB, selfLID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open session store")
	}
	defer sess.Close()

	receiver := receive.NewReceiver(selfPhone, selfLID, sess, mappings)

	nc, err := NewNATSClient(cfg.NATS)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer nc.Close()

	stanzas := make(chan *Stanza, 256)
	if err := nc.Subscribe(cfg.NATS.InSubject, stanzas); err != nil {
		log.Fatal().Err(err).Msg("Failed to subscribe to stanza subject")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ingest := NewIngestor(receiver, nc, cfg.NATS.AckSubject)

	log.Info().
		Str("subject", cfg.NATS.InSubject).
		Bool("nats_connected", nc.IsConnected()).
		Msg("Ingest daemon ready")

	for {
		select {
		case <-sigCh:
			log.Info().Msg("Shutting down")
			return
		case stanza := <-stanzas:
			ingest.Handle(ctx, stanza)
		}
	}
}
