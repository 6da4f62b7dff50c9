package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"govorilka/internal/chat"
	"govorilka/internal/config"
	"govorilka/internal/rest"
	"govorilka/internal/session"
	"govorilka/internal/storage"
	"govorilka/internal/ui"
	"govorilka/internal/users"
	"govorilka/internal/ws"
)

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	sess := session.NewStore(bbStorage)

	api := rest.NewClient(cfg.APIBaseURL, cfg.RequestTimeout, sess, func() {
		// A rejected token ends the session everywhere at once.
		sess.Clear()
	})

	channel := ws.NewChannel(cfg.WSURL, sess, cfg.ReconnectDelay)
	sess.OnClear(channel.Close)

	userCache := users.NewCache(api, bbStorage)
	syncer := chat.NewSynchronizer(api, sess)

	app := ui.NewApp(sess, api, channel, userCache, syncer)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		// Cancel on a clean quit too, so the shutdown goroutine unblocks.
		defer cancel()
		return app.Run(gCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		channel.Close()
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
