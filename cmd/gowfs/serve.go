package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/xiaoxuxiansheng/gowfs"
	"github.com/xiaoxuxiansheng/gowfs/config"
	"github.com/xiaoxuxiansheng/gowfs/featurestore/sqlstore"
	"github.com/xiaoxuxiansheng/gowfs/lock"
	"github.com/xiaoxuxiansheng/gowfs/log"
	"github.com/xiaoxuxiansheng/gowfs/pkg"
	"github.com/xiaoxuxiansheng/gowfs/recordstore/catalog"
	"github.com/xiaoxuxiansheng/gowfs/server"
	"github.com/xiaoxuxiansheng/redis_lock"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var errStopped = errors.New("stopped by signal")

func newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web feature service.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			if addr != "" {
				c.Server.Addr = addr
			}
			log.Init(c.Log)
			return serve(cmd.Context(), c)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides server.addr.")
	return cmd
}

// app 一次启动中构造出的组件
type app struct {
	store  *sqlstore.Store
	server *server.Server
}

func newApp(db *gorm.DB, client *redis_lock.Client, c *config.Config) (*app, error) {
	schema, err := c.Schema()
	if err != nil {
		return nil, err
	}
	lockOpts := []lock.Option{
		lock.WithDefaultExpiry(c.LockExpiry()),
		lock.WithGuardExpireSeconds(c.Redis.GuardExpireSeconds),
	}
	if client != nil {
		lockOpts = append(lockOpts, lock.WithRedisClient(client))
	}
	store := sqlstore.New(db, schema, sqlstore.WithLockOptions(lockOpts...))

	stores := gowfs.NewStoreManager()
	if err := stores.AddStore(store); err != nil {
		store.Close()
		return nil, err
	}
	opts, err := c.ServiceOptions()
	if err != nil {
		store.Close()
		return nil, err
	}
	service, err := gowfs.NewWebFeatureService(stores, opts...)
	if err != nil {
		store.Close()
		return nil, err
	}

	serverOpts := []server.Option{
		server.WithAllowedOrigins(c.Server.AllowedOrigins...),
		server.WithTimeouts(time.Duration(c.Server.ReadTimeout)*time.Second, time.Duration(c.Server.WriteTimeout)*time.Second),
		server.WithShutdownTimeout(time.Duration(c.Server.ShutdownTimeout) * time.Second),
	}
	if c.RecordStore.Enabled {
		catalogOpts := []catalog.Option{
			catalog.WithInspire(c.RecordStore.Inspire),
			catalog.WithGuardExpireSeconds(c.Redis.GuardExpireSeconds),
		}
		if client != nil {
			catalogOpts = append(catalogOpts, catalog.WithRedisClient(client))
		}
		serverOpts = append(serverOpts, server.WithCatalog(catalog.New(db, catalogOpts...)))
	}
	return &app{store: store, server: server.NewServer(c.Server.Addr, service, serverOpts...)}, nil
}

func (a *app) close() {
	a.store.Close()
}

func serve(ctx context.Context, c *config.Config) error {
	db, err := pkg.GetDB(c.MySQL.DSN)
	if err != nil {
		return err
	}
	var client *redis_lock.Client
	if c.Redis.Address != "" {
		client = pkg.GetRedisClient(c.Redis.Network, c.Redis.Address, c.Redis.Password)
	}

	a, err := newApp(db, client, c)
	if err != nil {
		return err
	}
	defer a.close()

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigC)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Serve(gctx)
	})
	g.Go(func() error {
		select {
		case sig := <-sigC:
			log.Infof("received signal %s, shutting down", sig)
			return errStopped
		case <-gctx.Done():
			return nil
		}
	})
	if err := g.Wait(); err != nil && !errors.Is(err, errStopped) {
		return err
	}
	return nil
}
