package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/sync/errgroup"

	"github.com/xoltia/karaokeq/engine"
	"github.com/xoltia/karaokeq/qstore"
	"github.com/xoltia/karaokeq/rpcb"
	"github.com/xoltia/karaokeq/server"
	"github.com/xoltia/karaokeq/sidekv"
)

var configFile = flag.String("config", "config.toml", "config file")

func main() {
	var exitCode int
	defer func() {
		os.Exit(exitCode)
	}()

	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		var parseErr toml.ParseError
		if errors.As(err, &parseErr) {
			fmt.Println("An error occurred while parsing the config.")
			fmt.Println(parseErr.ErrorWithUsage())
		} else {
			fmt.Println("An error occurred while loading the config:", err)
		}
		exitCode = 1
		return
	}

	slog.SetLogLoggerLevel(slog.LevelDebug)
	log := slog.Default()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := qstore.Open(cfg.Store.Path)
	if err != nil {
		log.ErrorContext(ctx, "Error opening store database", slog.String("err", err.Error()))
		if errors.Is(err, qstore.ErrVersionMismatch) {
			log.ErrorContext(ctx, "The current store data was created with an incompatible version, move/delete it or set a different location in the configuration file")
		}
		exitCode = 1
		return
	}
	defer db.Close()

	go func() {
		if err := db.GC(); err != nil {
			log.WarnContext(ctx, "Error calling GC on store database", slog.String("err", err.Error()))
		}
	}()

	side, err := sidekv.Open(cfg.SidePath, sidekv.WithTTL(cfg.CacheTTL))
	if err != nil {
		log.ErrorContext(ctx, "Error opening side database", slog.String("err", err.Error()))
		exitCode = 1
		return
	}
	defer side.Close()

	storeRPC := rpcb.NewServer(log)
	qstore.Register(storeRPC, db)

	// The engine always goes through the remote call surface, even though
	// the store runs in the same process here. Handler instances on other
	// machines point store.url at this one.
	eng := engine.New(qstore.NewClient(rpcb.NewClient(cfg.Store.URL)), side)

	storeServer := &http.Server{Addr: cfg.Store.Listen, Handler: storeRPC}
	publicServer := &http.Server{Addr: cfg.Listen, Handler: server.New(eng, log)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(ctx, "Store listening", slog.String("addr", cfg.Store.Listen))
		if err := storeServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.InfoContext(ctx, "Listening", slog.String("addr", cfg.Listen))
		if err := publicServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		publicServer.Shutdown(shutdownCtx)
		return storeServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.ErrorContext(ctx, "Server error", slog.String("err", err.Error()))
		exitCode = 1
	}
}
