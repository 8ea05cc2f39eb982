package main

import (
	"context"
	"crypto/ed25519"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/eigerco/pebblekv/internal/api"
	"github.com/eigerco/pebblekv/internal/config"
	"github.com/eigerco/pebblekv/internal/kv"
	"github.com/eigerco/pebblekv/internal/metrics"
	"github.com/eigerco/pebblekv/pkg/db/pebble"
	"github.com/eigerco/pebblekv/pkg/log"
	"github.com/eigerco/pebblekv/pkg/network/cert"
	"github.com/eigerco/pebblekv/pkg/network/transport"
)

// main opens the store and serves it until SIGINT or SIGTERM.
// go run ./cmd/pebblekv -data-dir /tmp/kv -quic-addr 127.0.0.1:9090
func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	dataDir := flag.String("data-dir", "", "Data directory, overrides the config file")
	httpAddr := flag.String("http-addr", "", "HTTP listen address, overrides the config file")
	quicAddr := flag.String("quic-addr", "", "QUIC listen address, overrides the config file")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logType := flag.String("log-type", "", "Log output (console, json)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err, "failed to load config")
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
		cfg.Engine.Dir = *dataDir
	}
	if *httpAddr != "" {
		cfg.Server.HTTPAddr = *httpAddr
	}
	if *quicAddr != "" {
		cfg.Server.QUICAddr = *quicAddr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logType != "" {
		cfg.Log.Type = *logType
	}

	if err := initLogging(cfg.Log); err != nil {
		fatal(err, "invalid log configuration")
	}
	if err := cfg.Validate(); err != nil {
		fatal(err, "invalid configuration")
	}

	store, err := pebble.Open(cfg.Engine)
	if err != nil {
		fatal(err, "failed to open store")
	}
	svc := kv.NewService(store)

	err = serve(cfg, svc)

	// servers are down at this point, nothing else can reach the service
	if cerr := svc.Close(); cerr != nil {
		log.Root.Error().Err(cerr).Msg("failed to close service")
	}
	if cerr := store.Close(); cerr != nil {
		log.Root.Error().Err(cerr).Msg("failed to close store")
	}
	if err != nil {
		log.Root.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
	log.Root.Info().Msg("shutdown complete")
}

func initLogging(c config.Log) error {
	level, err := log.ParseLogLevel(c.Level)
	if err != nil {
		return err
	}
	typ, err := log.ParseLoggerType(c.Type)
	if err != nil {
		return err
	}
	log.Init(log.Options{LogLevel: level, Type: typ})
	return nil
}

func fatal(err error, msg string) {
	// log.Root is still a no-op logger if Init has not run yet
	if log.Root.GetLevel() == zerolog.Disabled {
		log.Init(log.Options{})
	}
	log.Root.Fatal().Err(err).Msg(msg)
}

// serve runs the configured transports until a signal arrives or one of
// them fails, then stops all of them.
func serve(cfg config.Config, svc *kv.Service) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(svc)
	dispatcher := api.NewDispatcher(svc, api.WithMetrics(m))

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Server.QUICAddr != "" {
		tlsCert, err := cert.NewSelfSigned(cert.DefaultValidity)
		if err != nil {
			return err
		}
		srv, err := transport.NewServer(transport.Config{
			ListenAddr: cfg.Server.QUICAddr,
			TLSCert:    tlsCert,
			Handler:    dispatcher,
		})
		if err != nil {
			return err
		}
		if err := srv.Start(); err != nil {
			return err
		}
		log.Network.Info().
			Str("key", cert.EncodePubKeyToDNS(tlsCert.Leaf.PublicKey.(ed25519.PublicKey))).
			Msg("QUIC server identity")
		g.Go(func() error {
			<-ctx.Done()
			return srv.Stop()
		})
	}

	if cfg.Server.HTTPAddr != "" {
		srv := api.NewServer(cfg.Server.HTTPAddr, api.NewHandler(dispatcher, m.Handler()))
		g.Go(func() error {
			log.API.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	<-ctx.Done()
	log.Root.Info().Msg("shutting down")
	return g.Wait()
}
