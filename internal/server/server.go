package server

import (
	"context"
	"fmt"
	"io"

	"dovakin0007.com/notebook-grpc/internal/config"
	"dovakin0007.com/notebook-grpc/internal/database"
	"dovakin0007.com/notebook-grpc/internal/events"
	"dovakin0007.com/notebook-grpc/internal/kernel"
	"dovakin0007.com/notebook-grpc/internal/memstore"
	"dovakin0007.com/notebook-grpc/internal/store"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// OpenStore builds the store selected by cfg. The returned closer releases
// its connections.
func OpenStore(ctx context.Context, cfg *config.Config, logger hclog.Logger) (store.Store, io.Closer, error) {
	k, err := kernel.NewCommand(cfg.KernelCommand, cfg.KernelTimeout, logger.Named("kernel"))
	if err != nil {
		return nil, nil, err
	}
	switch cfg.Store {
	case config.StoreMemory:
		return memstore.New(memstore.WithExecutor(k), memstore.WithLogger(logger.Named("memstore"))), closerFunc(func() error { return nil }), nil
	case config.StorePostgres:
		dsn := database.DSN(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresName)
		db, err := database.Open(ctx, dsn, k, logger.Named("database"))
		if err != nil {
			return nil, nil, err
		}
		return db, db, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
}

func OpenBus(ctx context.Context, cfg *config.Config, logger hclog.Logger) (events.Bus, error) {
	if cfg.RedisAddr == "" {
		return events.NewLocalBus(), nil
	}
	return events.NewRedisBus(ctx, cfg.RedisAddr, logger.Named("events"))
}

// CreateAndStartServer serves until ctx ends or the listener fails, then
// stops the server and releases everything it opened.
func CreateAndStartServer(ctx context.Context, cfg *config.Config, logger hclog.Logger) error {
	st, closer, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	bus, err := OpenBus(ctx, cfg, logger)
	if err != nil {
		closer.Close()
		return err
	}

	g := NewGrpcServer(cfg.ListenAddr(), cfg.ServiceName, st, bus, logger.Named("grpc"))

	var reg *RegisterServer
	if cfg.ConsulEnabled {
		reg, err = NewRegisterServer(cfg.ServiceID, cfg.ServiceName, cfg.Host, cfg.Port, logger.Named("consul"))
		if err == nil {
			err = reg.Register()
		}
		if err != nil {
			bus.Close()
			closer.Close()
			return err
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- g.Run()
	}()

	var result *multierror.Error
	select {
	case <-ctx.Done():
		g.End()
		result = multierror.Append(result, <-serveErr)
	case err := <-serveErr:
		result = multierror.Append(result, err)
	}

	if reg != nil {
		result = multierror.Append(result, reg.Deregister())
	}
	result = multierror.Append(result, bus.Close(), closer.Close())
	return result.ErrorOrNil()
}
