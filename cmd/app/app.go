package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vietanh2810/sdeconomy/internal/api"
	v1 "github.com/vietanh2810/sdeconomy/internal/api/handler/v1"
	"github.com/vietanh2810/sdeconomy/internal/config"
	"github.com/vietanh2810/sdeconomy/internal/db"
	"github.com/vietanh2810/sdeconomy/internal/logger"
	"github.com/vietanh2810/sdeconomy/internal/repository"
	"github.com/vietanh2810/sdeconomy/internal/repository/dao"
	"github.com/vietanh2810/sdeconomy/internal/service"
	"github.com/vietanh2810/sdeconomy/internal/store"
)

const shutdownTimeout = 15 * time.Second

func setup(configPath string) (*config.AppConfig, *gorm.DB, error) {
	conf, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize config -> %w", err)
	}

	if err = logger.Init(conf.API.Environment); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger -> %w", err)
	}

	gdb, err := db.Open(conf)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database -> %w", err)
	}

	return conf, gdb, nil
}

func newEconomyService(conf *config.AppConfig, gdb *gorm.DB, notifier service.Notifier) *service.EconomyService {
	productRepo := repository.NewProductRepository(dao.NewProductDAO(gdb))
	ledgerRepo := repository.NewLedgerRepository(dao.NewLedgerDAO(gdb))

	return service.NewEconomyService(store.New(), productRepo, ledgerRepo, notifier, service.EconomyConfig{
		StorageTimeout:  conf.Storage.Timeout,
		Decay:           conf.Economy.DecayPolicy(),
		MaxItemsEnabled: conf.Economy.MaxItemsEnabled,
		MaxItemsPerBuy:  conf.Economy.MaxItemsPerBuy,
		MaxTradeAmount:  conf.Economy.MaxTradeAmount,
	}, zap.L())
}

// Start runs the economy until SIGINT or SIGTERM. Products are loaded before
// the server accepts requests and saved once more after it stops.
func Start(configPath string) error {
	conf, gdb, err := setup(configPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(gdb) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err = dao.InitTables(ctx, gdb, conf.Economy.DecayPolicy(), zap.L()); err != nil {
		return fmt.Errorf("failed to migrate database -> %w", err)
	}

	feed := v1.NewFeedHub(nil, zap.L())
	svc := newEconomyService(conf, gdb, feed)
	feed.SetService(svc)
	go feed.Run(ctx)

	// Populating on top of a failed load would overwrite durable rows.
	if _, err = svc.Load(ctx); err != nil {
		return fmt.Errorf("failed to load products -> %w", err)
	}
	if conf.Economy.PopulateDatabase {
		if _, err = svc.Populate(ctx, conf.Economy.PopulateItems); err != nil {
			zap.L().Error("failed to populate products", zap.Error(err))
		}
	}

	watcher, err := config.NewWatcher(configPath, zap.L())
	if err != nil {
		zap.L().Warn("config hot reload disabled", zap.Error(err))
	} else {
		watcher.OnEconomyChange(func(c *config.EconomyConfig) {
			svc.SetTradeLimits(c.MaxItemsEnabled, c.MaxItemsPerBuy)
		})
		watcher.Watch()
	}

	scheduler := svc.Scheduler()
	scheduler.Start(ctx)

	snapshotter := service.NewSnapshotter(svc, conf.Economy.SaveInterval, zap.L())
	snapshotter.Start(ctx)

	s := api.NewServer(conf, svc, feed)
	httpServer := &http.Server{
		Addr:              ":" + s.Config.API.Port,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		zap.L().Info(fmt.Sprintf("starting server at %v", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err = <-serveErr:
		if err != nil {
			err = fmt.Errorf("failed to start the server -> %w", err)
		}
	case <-ctx.Done():
		zap.L().Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		zap.L().Error("failed to shut down the server", zap.Error(shutdownErr))
	}
	scheduler.Stop()
	if saveErr := snapshotter.Stop(shutdownCtx); saveErr != nil && err == nil {
		err = fmt.Errorf("failed to save products on shutdown -> %w", saveErr)
	}

	return err
}

// Migrate brings the schema to the latest version and exits.
func Migrate(configPath string) error {
	conf, gdb, err := setup(configPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(gdb) }()

	if err = dao.InitTables(context.Background(), gdb, conf.Economy.DecayPolicy(), zap.L()); err != nil {
		return fmt.Errorf("failed to migrate database -> %w", err)
	}

	return nil
}

// Status reports the stored schema version and the steps still to run.
func Status(configPath string) (string, error) {
	conf, gdb, err := setup(configPath)
	if err != nil {
		return "", err
	}
	defer func() { _ = db.Close(gdb) }()

	m, err := dao.NewMigrator(gdb, conf.Economy.DecayPolicy(), zap.L())
	if err != nil {
		return "", fmt.Errorf("dao.NewMigrator -> %w", err)
	}

	st, err := m.Status(context.Background())
	if err != nil {
		return "", fmt.Errorf("m.Status -> %w", err)
	}

	out := fmt.Sprintf("schema version %d of %d\n", st.Current, st.Target)
	for _, p := range st.Pending {
		out += "pending " + p + "\n"
	}
	return out, nil
}
