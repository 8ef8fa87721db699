package main

import (
	"context"
	"fmt"
	logger "log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ardanlabs/conf"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/openrailtools/railcast/app/ltm-server/ltm"
	"github.com/openrailtools/railcast/foundation/database"
)

var build = "develop"

func main() {
	log := logger.New(os.Stdout, "LTM_SERVER : ", logger.LstdFlags|logger.Lmicroseconds|logger.Lshortfile)
	if err := run(log); err != nil {
		log.Printf("main: error: %v", err)
		os.Exit(1)
	}
}

func run(log *logger.Logger) error {
	// .env files carry the per network feed api keys during local development
	_ = godotenv.Load()

	var cfg struct {
		conf.Version
		Args conf.Args
		Web  struct {
			Port int `conf:"default:3000"`
		}
		Networks struct {
			Dir      string `conf:"default:railNetworks"`
			CacheDir string `conf:"default:cache"`
		}
		Nats struct {
			URL string
		}
		DB struct {
			User       string `conf:"default:postgres"`
			Password   string `conf:"default:postgres,noprint"`
			Host       string
			Name       string `conf:"default:railcast"`
			DisableTLS bool   `conf:"default:true"`
		}
	}
	cfg.Version.SVN = build
	cfg.Version.Desc = "Live train map middleware serving LED board payloads"
	const prefix = "LTM"
	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %w", err)
			}
			printUsage(usage)
			return nil
		case conf.ErrVersionWanted:
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config version: %w", err)
			}
			fmt.Println(version)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// the hosting platform hands the listen port over in a bare PORT variable
	if portValue := os.Getenv("PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil {
			return fmt.Errorf("parsing PORT environment variable %q: %w", portValue, err)
		}
		cfg.Web.Port = port
	}

	// =========================================================================
	// App Starting

	log.Printf("main : Started : Application initializing : version %s", build)
	defer log.Println("main: Completed")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Printf("main: Config :\n%v\n", out)

	// =========================================================================
	// Start Database (optional, records block transitions when configured)

	var db *sqlx.DB
	if cfg.DB.Host != "" {
		log.Println("main: Initializing database support")

		openedDB, err := database.Open(database.Config{
			User:       cfg.DB.User,
			Password:   cfg.DB.Password,
			Host:       cfg.DB.Host,
			Name:       cfg.DB.Name,
			DisableTLS: cfg.DB.DisableTLS,
		})
		if err != nil {
			return fmt.Errorf("connecting to db: %w", err)
		}
		defer func() {
			log.Printf("main: Database Stopping : %s", cfg.DB.Host)
			err = openedDB.Close()
			if err != nil {
				log.Printf("main: error closing database: %v", err)
			}
		}()

		statusCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := database.StatusCheck(statusCtx, openedDB); err != nil {
			return fmt.Errorf("database status check: %w", err)
		}
		db = openedDB
	}

	// =========================================================================
	// Start NATS (optional, publishes LED payloads when configured)

	var natsConn *nats.Conn
	if cfg.Nats.URL != "" {
		natsConn, err = nats.Connect(cfg.Nats.URL)
		if err != nil {
			return fmt.Errorf("connecting to nats server at %s: %w", cfg.Nats.URL, err)
		}
		defer natsConn.Close()
		log.Printf("main: Connected to nats server at %s", cfg.Nats.URL)
	}

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	return ltm.StartServices(log, cfg.Web.Port, cfg.Networks.Dir, cfg.Networks.CacheDir,
		db, natsConn, shutdown)
}

func printUsage(confUsage string) {
	fmt.Println(confUsage)
}
