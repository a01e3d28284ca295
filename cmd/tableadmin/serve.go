package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/youssefsiam38/tableadmin"
	"github.com/youssefsiam38/tableadmin/leadership"
	"github.com/youssefsiam38/tableadmin/maintenance"
	"github.com/youssefsiam38/tableadmin/ui"
)

const (
	// reloadDelay coalesces the burst of events editors produce on save.
	reloadDelay = 250 * time.Millisecond

	maintenanceLease = "maintenance"
)

var watchConfig bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin web server",
	Long: `Serves the admin UI and API on TABLEADMIN_ADDR under TABLEADMIN_BASE_PATH.

The auth tables are created when missing. With --watch the table
configuration file is reloaded when it changes; a configuration that
fails to load is logged and the running admin is kept.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&watchConfig, "watch", true, "Reload the table configuration when the file changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := loadEnv()
	if err != nil {
		return err
	}
	log := newLogger(logger)

	db, err := openDatabase(ctx, e.DatabaseURL, e.DatabaseDriver)
	if err != nil {
		return err
	}
	defer db.Close()

	admin, err := db.buildAdmin(ctx, e, e.ConfigFile, log)
	if err != nil {
		return err
	}
	if err := admin.Migrate(ctx); err != nil {
		return err
	}

	live := &liveAdmin{basePath: e.BasePath}
	live.swap(admin)

	mux := http.NewServeMux()
	mux.Handle(e.BasePath+"/", http.StripPrefix(e.BasePath, live))
	if e.BasePath != "" {
		mux.Handle("GET /{$}", http.RedirectHandler(e.BasePath+"/", http.StatusFound))
	}
	srv := &http.Server{
		Addr:              e.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	cleanupCfg := &maintenance.CleanupConfig{
		Interval: e.CleanupInterval,
		OnSessionCleanup: func(n int64) {
			log.Info("expired sessions deleted", "count", n)
		},
		OnError: func(err error) {
			log.Error("cleanup failed", "error", err)
		},
	}
	if e.CleanupMedia {
		cleanupCfg.Media = live
	}
	cleanup := maintenance.NewCleanup(live, cleanupCfg)

	// Replicas sharing the database elect one server to run the cleanup.
	leases := leadership.NewSQLStore(db.conn)
	if err := leases.Migrate(ctx); err != nil {
		return err
	}
	elector := leadership.NewElector(leases, maintenanceLease, instanceID(), &leadership.Config{
		LeaderTTL:       leadership.DefaultLeaderTTL,
		ElectionPeriod:  leadership.DefaultElectionPeriod,
		ReelectionDelay: leadership.DefaultReelectionDelay,
		OnError: func(err error) {
			log.Warn("leader election", "error", err)
		},
	}, leadership.Callbacks{
		OnBecameLeader: func(ctx context.Context) {
			log.Info("elected maintenance leader")
			if err := cleanup.Start(ctx); err != nil {
				log.Warn("start cleanup", "error", err)
			}
		},
		OnLostLeadership: func(ctx context.Context) {
			log.Info("lost maintenance leadership")
			_ = cleanup.Stop(context.Background())
		},
	})
	if err := elector.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = elector.Stop(context.Background()) }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", e.Addr, "base_path", e.BasePath)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), e.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if watchConfig {
		g.Go(func() error {
			return watchFile(gctx, e.ConfigFile, log, func() {
				next, err := db.buildAdmin(gctx, e, e.ConfigFile, log)
				if err != nil {
					log.Error("reload config", "file", e.ConfigFile, "error", err)
					return
				}
				live.swap(next)
				log.Info("config reloaded", "file", e.ConfigFile, "tables", len(next.Registry().Names()))
			})
		})
	}
	return g.Wait()
}

// instanceID names this process in the leases table.
func instanceID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return host + "-" + uuid.NewString()
}

// liveAdmin serves the current admin and is swapped on config reload.
type liveAdmin struct {
	basePath string
	admin    atomic.Pointer[tableadmin.Admin]
	handler  atomic.Pointer[http.Handler]
}

func (l *liveAdmin) swap(a *tableadmin.Admin) {
	h := ui.UIHandler(a, &ui.Config{BasePath: l.basePath})
	l.admin.Store(a)
	l.handler.Store(&h)
}

func (l *liveAdmin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	(*l.handler.Load()).ServeHTTP(w, r)
}

func (l *liveAdmin) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	return l.admin.Load().Auth().DeleteExpiredSessions(ctx)
}

func (l *liveAdmin) DeleteUnusedMedia(ctx context.Context, dryRun bool) (map[string][]string, error) {
	return l.admin.Load().DeleteUnusedMedia(ctx, dryRun)
}

// watchFile calls reload after path is written, created or renamed until
// ctx is done. The parent directory is watched so that editors replacing
// the file are noticed.
func watchFile(ctx context.Context, path string, log zapLogger, reload func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	defer w.Close()

	path = filepath.Clean(path)
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(reloadDelay)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch config", "file", path, "error", err)
		case <-timer.C:
			reload()
		}
	}
}
