package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mnemo-dev/mnemo/internal/config"
	"github.com/mnemo-dev/mnemo/internal/memory"
	"github.com/mnemo-dev/mnemo/internal/server"
	"github.com/mnemo-dev/mnemo/internal/store"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var serveMaintenanceCron string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveMaintenanceCron, "maintenance-cron", "",
		"Cron expression for scheduled maintenance runs (e.g. \"0 4 * * *\"); empty disables")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	cfg.Maintenance.Cron = serveMaintenanceCron

	// Resolve database path
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	mem := memory.New(db)

	// Startup maintenance, the host's own schedule. The memory core never
	// schedules itself.
	if err := mem.RunMaintenance(config.DefaultUserID); err != nil {
		fmt.Fprintf(os.Stderr, "warning: startup maintenance: %v\n", err)
	}

	// Optional recurring maintenance inside the serve process.
	if cfg.Maintenance.Cron != "" {
		c := cron.New()
		if _, err := c.AddFunc(cfg.Maintenance.Cron, func() {
			if err := mem.RunMaintenance(config.DefaultUserID); err != nil {
				fmt.Fprintf(os.Stderr, "scheduled maintenance: %v\n", err)
			}
		}); err != nil {
			return fmt.Errorf("maintenance cron %q: %w", cfg.Maintenance.Cron, err)
		}
		c.Start()
		defer c.Stop()
		fmt.Fprintf(os.Stderr, "  maintenance: %s\n", cfg.Maintenance.Cron)
	}

	srv := server.New(db, mem, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "mnemo serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", dbPath)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
