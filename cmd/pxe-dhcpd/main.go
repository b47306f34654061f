// pxe-dhcpd hands out addresses and network-boot parameters to PXE clients.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/pxe-dhcpd/pxe-dhcpd/internal/api"
	"github.com/pxe-dhcpd/pxe-dhcpd/internal/audit"
	"github.com/pxe-dhcpd/pxe-dhcpd/internal/config"
	"github.com/pxe-dhcpd/pxe-dhcpd/internal/dhcp"
	"github.com/pxe-dhcpd/pxe-dhcpd/internal/events"
	"github.com/pxe-dhcpd/pxe-dhcpd/internal/logging"
	"github.com/pxe-dhcpd/pxe-dhcpd/internal/metrics"
	"github.com/pxe-dhcpd/pxe-dhcpd/internal/pool"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "/etc/pxe-dhcpd/config.toml", "path to configuration file")
	initConfig := flag.Bool("init-config", false, "write a default configuration to -config and exit")
	auditCSV := flag.Bool("audit-csv", false, "dump the audit journal as CSV to stdout and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("pxe-dhcpd", version)
		return
	}

	if *initConfig {
		if err := config.Write(*configPath, config.Default()); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	if *auditCSV {
		if err := dumpAudit(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger := logging.Setup(cfg.Server.LogLevel, os.Stdout)
	logger.Info("pxe-dhcpd starting",
		"version", version,
		"config", *configPath,
		"interface", cfg.Server.Interface,
		"server_ip", cfg.Server.ServerIP)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := pool.NewPool(cfg.RangeStart(), cfg.RangeEnd())
	if err != nil {
		return fmt.Errorf("creating pool: %w", err)
	}
	metrics.ObservePool(p.Size(), p.Allocated())
	metrics.ServerInfo.WithLabelValues(version).Set(1)
	metrics.ServerStartTime.SetToCurrentTime()
	logger.Info("lease pool ready", "pool", p.String())

	bus := events.NewBus(events.DefaultBufferSize, logger)
	go bus.Start()
	defer bus.Stop()

	var auditLog *audit.Log
	if cfg.Server.AuditDB != "" {
		db, err := openAuditDB(cfg.Server.AuditDB)
		if err != nil {
			return err
		}
		defer db.Close()

		auditLog, err = audit.NewLog(db, bus, cfg.Server.ServerIP, logger)
		if err != nil {
			return fmt.Errorf("initializing audit log: %w", err)
		}
		go auditLog.Start()
		defer auditLog.Stop()
		logger.Info("audit journal opened", "path", cfg.Server.AuditDB, "records", auditLog.Count())
	}

	var apiServer *api.Server
	if cfg.Server.APIListen != "" {
		opts := []api.ServerOption{api.WithVersion(version)}
		if auditLog != nil {
			opts = append(opts, api.WithAuditLog(auditLog))
		}
		apiServer = api.NewServer(cfg.Server.APIListen, p, logger, opts...)
		ln, err := apiServer.Listen()
		if err != nil {
			return err
		}
		go func() {
			if err := apiServer.Serve(ln); err != nil {
				logger.Error("API server failed", "error", err)
			}
		}()
	}

	rl := cfg.Server.RateLimit
	limiter := dhcp.NewRateLimiter(rl.Enabled, rl.MaxDiscoversPerSecond, rl.MaxPerMACPerSecond)

	responder := dhcp.NewResponder(p, dhcp.ReplyConfigFrom(cfg))
	handler := dhcp.NewHandler(responder, bus, logger)
	server := dhcp.NewServer(handler, cfg.Server.Interface, cfg.Server.BindAddress, logger,
		dhcp.WithRateLimiter(limiter))
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting DHCP server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop accepting packets before the journal and bus go away.
	cancel()
	server.Stop()
	if apiServer != nil {
		if err := apiServer.Stop(shutdownCtx); err != nil {
			logger.Warn("API server shutdown", "error", err)
		}
	}

	logger.Info("pxe-dhcpd stopped")
	return nil
}

func openAuditDB(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening audit database %s: %w", path, err)
	}
	return db, nil
}

// dumpAudit writes every journal record as CSV. The database is opened
// read-only so it can run next to a live server.
func dumpAudit(cfg *config.Config) error {
	if cfg.Server.AuditDB == "" {
		return fmt.Errorf("server.audit_db is not set")
	}
	db, err := bolt.Open(cfg.Server.AuditDB, 0600, &bolt.Options{Timeout: 2 * time.Second, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("opening audit database %s: %w", cfg.Server.AuditDB, err)
	}
	defer db.Close()

	al, err := audit.OpenReader(db, logging.Discard())
	if err != nil {
		return err
	}
	records, err := al.All()
	if err != nil {
		return fmt.Errorf("querying audit journal: %w", err)
	}
	return audit.WriteCSV(os.Stdout, records)
}
