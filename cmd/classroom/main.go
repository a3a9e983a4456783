package main

import (
	"classroom/internal/core"
	"classroom/internal/seed"
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	defaults := core.DefaultConfig()
	app := &cli.App{
		Name:    "classroom",
		Usage:   "live student, class and exam repositories",
		Version: "0.1.0",
	}
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "storage-driver",
			Usage:   "persistent store: memory, sqlite or postgres",
			Value:   string(defaults.StorageDriver),
			EnvVars: []string{core.EnvStorageDriver},
		},
		&cli.StringFlag{
			Name:    "sqlite-path",
			Usage:   "sqlite database file",
			EnvVars: []string{core.EnvSQLitePath},
		},
		&cli.StringFlag{
			Name:    "postgres-dsn",
			Usage:   "postgres connection string",
			EnvVars: []string{core.EnvPostgresDSN},
		},
		&cli.DurationFlag{
			Name:    "debounce",
			Usage:   "coalescing window before observers re-fetch",
			Value:   defaults.Debounce,
			EnvVars: []string{core.EnvDebounce},
		},
		&cli.IntFlag{
			Name:    "update-buffer",
			Usage:   "pending update events held per observer",
			Value:   defaults.UpdateBuffer,
			EnvVars: []string{core.EnvUpdateBuffer},
		},
		&cli.StringFlag{
			Name:    "blob-driver",
			Usage:   "snapshot archive backend: memory, fs or s3",
			Value:   defaults.BlobDriver,
			EnvVars: []string{core.EnvBlobDriver},
		},
		&cli.StringFlag{
			Name:    "blob-root",
			Usage:   "archive directory for the fs blob driver",
			EnvVars: []string{core.EnvBlobRoot},
		},
		&cli.StringFlag{Name: "s3-bucket", EnvVars: []string{core.EnvBlobS3Bucket}},
		&cli.StringFlag{Name: "s3-region", EnvVars: []string{core.EnvBlobS3Region}},
		&cli.StringFlag{Name: "s3-prefix", EnvVars: []string{core.EnvBlobS3Prefix}},
		&cli.StringFlag{Name: "s3-endpoint", EnvVars: []string{core.EnvBlobS3Endpoint}},
		&cli.StringFlag{Name: "s3-access-key-id", EnvVars: []string{core.EnvBlobS3AccessKey}},
		&cli.StringFlag{Name: "s3-secret-access-key", EnvVars: []string{core.EnvBlobS3SecretKey}},
		&cli.BoolFlag{Name: "s3-path-style", EnvVars: []string{core.EnvBlobS3PathStyle}},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "debug, info, warn or error",
			Value:   "info",
			EnvVars: []string{"CLASSROOM_LOG_LEVEL"},
		},
	}
	app.Before = func(cctx *cli.Context) error {
		var level slog.Level
		if err := level.UnmarshalText([]byte(cctx.String("log-level"))); err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(cctx.App.ErrWriter, &slog.HandlerOptions{Level: level})))
		return nil
	}
	app.Commands = []*cli.Command{
		{
			Name:   "seed",
			Usage:  "load the sample classroom into an empty store",
			Action: Seed,
		},
		{
			Name:  "serve",
			Usage: "serve the HTTP API, live websocket views and /metrics",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "listen-addr",
					Usage:   "addr to serve echo on",
					Value:   ":8080",
					EnvVars: []string{"CLASSROOM_LISTEN_ADDR"},
				},
				&cli.BoolFlag{
					Name:    "seed",
					Usage:   "seed sample data before serving",
					EnvVars: []string{"CLASSROOM_SEED"},
				},
			},
			Action: Serve,
		},
		{
			Name:  "watch",
			Usage: "print live frames from a running server",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "url", Usage: "server base URL", Value: "ws://localhost:8080"},
				&cli.StringFlag{Name: "entity", Usage: "students, classes or exams", Value: "students"},
				&cli.StringFlag{Name: "format", Usage: "json or cbor", Value: "json"},
				&cli.BoolFlag{Name: "compress", Usage: "request zstd frames"},
				&cli.IntFlag{Name: "frames", Usage: "stop after n frames (0 = forever)"},
			},
			Action: Watch,
		},
		{
			Name:   "export",
			Usage:  "write a snapshot archive to the blob store",
			Action: Export,
		},
		{
			Name:  "import",
			Usage: "restore a snapshot archive from the blob store",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "key", Usage: "archive key (defaults to the latest)"},
			},
			Action: Import,
		},
	}
	return app
}

func configFromFlags(cctx *cli.Context) core.Config {
	cfg := core.DefaultConfig()
	cfg.StorageDriver = core.StorageDriver(cctx.String("storage-driver"))
	cfg.SQLitePath = cctx.String("sqlite-path")
	cfg.PostgresDSN = cctx.String("postgres-dsn")
	cfg.Debounce = cctx.Duration("debounce")
	cfg.UpdateBuffer = cctx.Int("update-buffer")
	cfg.BlobDriver = cctx.String("blob-driver")
	cfg.BlobRoot = cctx.String("blob-root")
	cfg.S3.Bucket = cctx.String("s3-bucket")
	cfg.S3.Region = cctx.String("s3-region")
	cfg.S3.Prefix = cctx.String("s3-prefix")
	cfg.S3.Endpoint = cctx.String("s3-endpoint")
	cfg.S3.AccessKeyID = cctx.String("s3-access-key-id")
	cfg.S3.SecretAccessKey = cctx.String("s3-secret-access-key")
	cfg.S3.PathStyle = cctx.Bool("s3-path-style")
	return cfg
}

func openContainer(cctx *cli.Context) (*core.Container, error) {
	c, err := core.Open(cctx.Context, configFromFlags(cctx), slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to open container: %w", err)
	}
	return c, nil
}

// Seed loads the sample classroom.
func Seed(cctx *cli.Context) error {
	c, err := openContainer(cctx)
	if err != nil {
		return err
	}
	defer c.Close()
	sum, err := seed.Run(cctx.Context, c, time.Now(), slog.Default())
	if err != nil {
		return err
	}
	fmt.Fprintf(cctx.App.Writer, "students=%d classes=%d enrollments=%d exams=%d skipped=%t\n",
		sum.Students, sum.Classes, sum.Enrollments, sum.Exams, sum.Skipped)
	return nil
}

// Export writes a snapshot archive and prints its key.
func Export(cctx *cli.Context) error {
	c, err := openContainer(cctx)
	if err != nil {
		return err
	}
	defer c.Close()
	info, err := c.Export(cctx.Context)
	if err != nil {
		return err
	}
	fmt.Fprintln(cctx.App.Writer, info.Key)
	return nil
}

// Import restores the archive named by --key, or the latest one.
func Import(cctx *cli.Context) error {
	c, err := openContainer(cctx)
	if err != nil {
		return err
	}
	defer c.Close()
	key := cctx.String("key")
	if key == "" {
		latest, err := c.Latest(cctx.Context)
		if err != nil {
			return err
		}
		key = latest.Key
	}
	if err := c.Restore(cctx.Context, key); err != nil {
		return err
	}
	fmt.Fprintln(cctx.App.Writer, key)
	return nil
}

// Serve runs the HTTP server until SIGINT/SIGTERM.
func Serve(cctx *cli.Context) error {
	ctx := cctx.Context
	logger := slog.Default()

	c, err := openContainer(cctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("failed to close container", "error", err)
		}
	}()

	if cctx.Bool("seed") {
		if _, err := seed.Run(ctx, c, time.Now(), logger); err != nil {
			return fmt.Errorf("failed to seed: %w", err)
		}
	}

	_, e := NewServer(c, logger)
	httpServer := &http.Server{
		Addr:              cctx.String("listen-addr"),
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("echo server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case <-signals:
		logger.Info("shutting down on signal")
	case <-ctx.Done():
		logger.Info("shutting down on context done")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to start echo server: %w", err)
		}
	}

	// Observers hold open websockets; closing the container ends their streams.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown echo server", "error", err)
	}
	logger.Info("shut down successfully")
	return nil
}
