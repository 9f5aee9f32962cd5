package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ahmadzakiakmal/timetrack/clock"
	"github.com/ahmadzakiakmal/timetrack/engine"
	"github.com/ahmadzakiakmal/timetrack/journal"
	"github.com/ahmadzakiakmal/timetrack/ledger"
	"github.com/ahmadzakiakmal/timetrack/logging"
	"github.com/ahmadzakiakmal/timetrack/report"
	"github.com/ahmadzakiakmal/timetrack/repository"
	"github.com/ahmadzakiakmal/timetrack/repository/inmem"
	"github.com/ahmadzakiakmal/timetrack/server"
	service_registry "github.com/ahmadzakiakmal/timetrack/srvreg"
)

var (
	homeDir      string
	httpPort     string
	postgresHost string
	storageMode  string
)

func init() {
	flag.StringVar(&homeDir, "home", "./data", "Path to the service data directory")
	flag.StringVar(&httpPort, "http-port", "5000", "HTTP web server port")
	flag.StringVar(&postgresHost, "postgres-host", "localhost:5432", "DB host address")
	flag.StringVar(&storageMode, "storage", "postgres", "Storage backend: postgres or memory")
}

func main() {
	// Load Config
	flag.Parse()

	// .env is optional, environment wins either way
	_ = godotenv.Load()

	viper.SetDefault("http_port", httpPort)
	viper.SetDefault("postgres_host", postgresHost)
	viper.SetDefault("storage", storageMode)
	viper.SetDefault("postgres_user", "postgres")
	viper.SetDefault("postgres_password", "postgrespassword")
	viper.SetDefault("postgres_db", "postgres")
	viper.SetEnvPrefix("TIMETRACK")
	viper.AutomaticEnv()

	configFile := filepath.Join(homeDir, "config", "config.toml")
	if _, err := os.Stat(configFile); err == nil {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			log.Fatalf("Reading config: %v", err)
		}
	}
	httpPort = viper.GetString("http_port")
	storageMode = viper.GetString("storage")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Set up OpenTelemetry
	otelShutdown, err := logging.SetupOTelSDK(ctx)
	if err != nil {
		log.Fatalf("Setting up telemetry: %v", err)
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			log.Printf("Telemetry shutdown: %v", err)
		}
	}()
	logger := logging.Logger()

	// Select storage backend
	var store engine.Store
	switch storageMode {
	case "memory":
		store = inmem.NewStore()
		logger.Info("Using in-memory storage")
	case "postgres":
		dsn := fmt.Sprintf(
			"postgresql://%s:%s@%s/%s",
			viper.GetString("postgres_user"),
			viper.GetString("postgres_password"),
			viper.GetString("postgres_host"),
			viper.GetString("postgres_db"),
		)
		repo := repository.NewRepository()
		logger.Info("Connecting to Postgres", "host", viper.GetString("postgres_host"))
		if err := repo.ConnectDB(dsn); err != nil {
			log.Fatalf("Connecting to database: %v", err)
		}
		if err := repo.Migrate(); err != nil {
			log.Fatalf("Migrating database: %v", err)
		}
		repo.Seed()
		store = repo
	default:
		log.Fatalf("Unknown storage mode: %s", storageMode)
	}

	// Open the audit journal
	journalPath := filepath.Join(homeDir, "journal")
	auditJournal, err := journal.Open(journalPath)
	if err != nil {
		log.Fatalf("Opening journal: %v", err)
	}
	defer func() {
		if err := auditJournal.Close(); err != nil {
			logger.Error("Closing journal", "err", err)
		}
	}()

	// Wire the task engine
	clk := clock.System{}
	led := ledger.New(clk, auditJournal)
	eng := engine.New(store, led, clk, auditJournal)
	aggregator := report.NewAggregator(store, clk)

	// Initialize Service Registry
	serviceRegistry := service_registry.NewServiceRegistry(eng, aggregator)
	serviceRegistry.RegisterDefaultServices()

	// Start Web Server
	webserver := server.NewWebServer(httpPort, serviceRegistry, auditJournal, storageMode)
	if err := webserver.Start(); err != nil {
		log.Fatalf("Starting HTTP server: %v", err)
	}

	// Wait for interrupt signal to gracefully shut down the server
	<-ctx.Done()
	stop()

	// Create deadline to wait for server shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := webserver.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutting down HTTP web server", "err", err)
	}
	logger.Info("HTTP web server gracefully stopped")
}
