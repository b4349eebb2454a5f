package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gotokenbridge/config"
	"gotokenbridge/redis"
	"gotokenbridge/workers"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/exp/slog"
)

var (
	app     = cli.NewApp()
	Version = "1.0.0"

	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to the yaml configuration",
		Value:   config.DefaultConfigPath,
		EnvVars: []string{"BRIDGE_CONFIG"},
	}
)

func init() {
	app.Name = "gotokenbridge"
	app.Usage = "lock-and-mint token bridge between EVM chains"
	app.Version = Version
	app.Flags = []cli.Flag{configFlag}
	app.Action = run
}

func main() {
	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return log.LvlTrace
	case "debug":
		return log.LvlDebug
	case "warn":
		return log.LevelWarn
	case "error":
		return log.LevelError
	case "crit":
		return log.LevelCrit
	default:
		return log.LvlInfo
	}
}

// setupLogging logs to the terminal, and also to a daily file when a log dir is configured
func setupLogging(dir, level string) (io.Closer, error) {
	var out io.Writer = os.Stderr
	var closer io.Closer = io.NopCloser(nil)
	color := true

	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		name := filepath.Join(dir, fmt.Sprintf("log_%s.txt", time.Now().Format("2006-01-02")))
		f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			return nil, fmt.Errorf("error opening log file for writing: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
		closer = f
		color = false
	}

	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(out, parseLevel(level), color)))
	return closer, nil
}

func run(c *cli.Context) error {
	config.Init(c.String(configFlag.Name))

	logFile, err := setupLogging(config.Config.Server.LogDir, config.Config.Server.LogLevel)
	if err != nil {
		return err
	}
	defer logFile.Close()

	log.Info("Starting token bridge", "version", Version, "chains", len(config.Config.Chains))

	instances, err := buildInstances(&config.Config)
	if err != nil {
		return err
	}

	// connect to Redis, without persistence do not continue
	store := redis.NewStore(config.Config.Server.RedisHost, config.Config.Server.RedisPort)
	if err := store.Ping(); err != nil {
		log.Crit("Cannot connect to Redis", "host", config.Config.Server.RedisHost, "port", config.Config.Server.RedisPort, "err", err)
	}
	defer store.Close()

	relayers, err := buildRelayers(&config.Config, instances, store)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// one relay worker per chain holding a signer key, the HTTP service is the main worker
	var wg sync.WaitGroup
	for _, relayer := range relayers {
		wg.Add(1)
		go func(r *workers.Relayer) {
			defer wg.Done()
			if err := r.Run(ctx); err != nil {
				log.Error("Relayer exited", "err", err)
			}
		}(relayer)
	}

	workers.Worker_HTTP(workers.NewHandler(newAPI(&config.Config, instances, store)), cancel)

	wg.Wait()
	return nil
}
