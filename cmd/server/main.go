package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/drinkorder/order-gateway/credentials"
	"github.com/drinkorder/order-gateway/crm"
	"github.com/drinkorder/order-gateway/idp"
	"github.com/drinkorder/order-gateway/internal/config"
	"github.com/drinkorder/order-gateway/server"
	"github.com/drinkorder/order-gateway/session"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("error running server")
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config.Load")
	}

	setupLogging(cfg)
	displayAppname(cfg.AppName)

	srv, err := buildServer(cfg)
	if err != nil {
		return errors.Wrap(err, "buildServer")
	}
	defer srv.Close()

	httpServer := &http.Server{Addr: cfg.Addr, Handler: srv}
	go listenAndServe(cfg, httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

// buildServer wires every collaborator together; nothing else in the
// program constructs shared state.
func buildServer(cfg *config.Config) (*server.Server, error) {
	provider, err := idp.NewClient(idp.Config{
		ClientID:     cfg.CRMClientID,
		ClientSecret: cfg.CRMClientSecret,
		TokenURL:     cfg.CRMTokenURL,
		InstanceURL:  cfg.CRMInstanceURL,
		APIVersion:   cfg.CRMAPIVersion,
		TenantField:  cfg.TenantField,
	})
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewManager(provider, credentials.NewStore(), cfg.CRMInstanceURL)
	if err != nil {
		return nil, err
	}

	codec, err := session.NewCodec(cfg.SessionSecret, cfg.SessionMaxAge)
	if err != nil {
		return nil, err
	}

	return server.New(cfg, sessions, codec, crm.NewClient(cfg.CRMAPIVersion))
}

func setupLogging(cfg *config.Config) {
	if cfg.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func listenAndServe(cfg *config.Config, httpServer *http.Server) {
	log.Info().Str("addr", httpServer.Addr).Bool("tls", cfg.TLSEnabled()).Msg("server listening")

	var err error
	if cfg.TLSEnabled() {
		err = httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	} else {
		err = httpServer.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server stopped unexpectedly")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server.Shutdown")
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
