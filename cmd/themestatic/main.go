package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/oftn-oswg/socket"

	"github.com/wtnb75/themestatic"
)

var errDegraded = errors.New("required files missing")

// loadEnvFile reads name into the environment. A missing file is only an
// error when it was named explicitly.
func loadEnvFile(name string, explicit bool) error {
	err := godotenv.Load(name)
	if err == nil || (!explicit && errors.Is(err, fs.ErrNotExist)) {
		return nil
	}
	return fmt.Errorf("load %s: %w", name, err)
}

func realMain() error {
	configFile := flag.String("config", "", "config file (yaml, toml or json)")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	port := flag.Int("port", 8000, "port to listen on (default from $PORT)")
	dir := flag.String("dir", "", "serve directory (default from $DIR, else ./public)")
	listen := flag.String("listen", "", "listen address, host:port or unix:/path; overrides -port")
	verbose := flag.Bool("verbose", false, "enable verbose logging")
	check := flag.Bool("check", false, "report missing required files and exit")
	flag.Parse()

	envFileSet := false
	flag.Visit(func(f *flag.Flag) {
		envFileSet = envFileSet || f.Name == "env-file"
	})
	if err := loadEnvFile(*envFile, envFileSet); err != nil {
		return err
	}
	files := []string{}
	if *configFile != "" {
		files = append(files, *configFile)
	}
	config, err := themestatic.LoadConfig(files...)
	if err != nil {
		return err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			config.Port = *port
		case "dir":
			config.RootDir = *dir
		case "listen":
			config.Listen = *listen
		case "verbose":
			config.Verbose = *verbose
		}
	})

	level := slog.LevelInfo
	if config.Verbose {
		level = slog.LevelDebug
	}
	slog.SetLogLoggerLevel(level)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	root, err := config.Root()
	if err != nil {
		return err
	}
	fsys := os.DirFS(root).(fs.StatFS)
	hdl := themestatic.NewHandler(fsys, config.RequiredFiles())

	if *check {
		if !hdl.Degraded() {
			color.Green("%s: all %d required files present", root, len(config.RequiredFiles()))
			return nil
		}
		for _, name := range hdl.Missing() {
			color.Red("missing: %s", name)
		}
		return errDegraded
	}

	network, address := socket.Parse(config.Addr())
	listener, err := socket.Listen(network, address, 0660)
	if err != nil {
		slog.Error("listen error", "error", err)
		return err
	}
	defer listener.Close()

	server := http.Server{
		Handler: themestatic.Methods(hdl),
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutting down server")
		if err := server.Shutdown(context.Background()); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	if config.Listen == "" {
		color.New(color.FgCyan).Printf("Serving %s on http://0.0.0.0:%d\n", root, config.Port)
	} else {
		color.New(color.FgCyan).Printf("Serving %s on %s\n", root, config.Listen)
	}
	slog.Info("starting server", "network", network, "addr", address, "degraded", hdl.Degraded())
	if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func main() {
	if err := realMain(); err != nil {
		if !errors.Is(err, errDegraded) {
			slog.Error("server error", "error", err)
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
