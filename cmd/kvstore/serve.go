package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/scott-cotton/cli"

	"github.com/tailored-agentic-units/kvcache/storage"
	"github.com/tailored-agentic-units/kvcache/storage/rpc"
)

func serve(cfg *ServeConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Serve.Parse(cc, args)
	if err != nil {
		return err
	}
	if len(args) != 0 {
		return fmt.Errorf("%w: serve takes no arguments", cli.ErrUsage)
	}

	sc, err := cfg.storeConfig()
	if err != nil {
		return err
	}
	if sc.Storage.Type == rpc.TypeRPC {
		return fmt.Errorf("%w: serve cannot expose an rpc provider", cli.ErrUsage)
	}

	ctx := cfg.runContext()
	provider, err := storage.NewProvider(ctx, &sc.Storage)
	if err != nil {
		return err
	}
	if c, ok := provider.(interface{ Close() error }); ok {
		defer c.Close()
	}

	path, handler := rpc.NewHandler(provider)
	mux := http.NewServeMux()
	mux.Handle(path, handler)

	logger := cfg.newLogger()
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	fmt.Fprintf(cc.Out, "kvstore storage (%s) listening on %s\n", sc.Storage.Type, cfg.Addr)

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down", "addr", cfg.Addr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
