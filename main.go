// Command mediatracker starts the media event processor.
//
// It supports two modes:
//  1. "server" (default) – runs the HTTP server exposing the REST API, the
//     WebSocket record stream, and an /mcp HTTP endpoint
//  2. "stdio-mcp" – runs an MCP stdio server and spins up an internal HTTP API if none is available
//
// Flags control host/port, settings file, presets directory, debug logging,
// and optional ngrok tunneling for easy external access during development.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/mediatracker/api"
	"github.com/wricardo/mediatracker/media/config"
	"github.com/wricardo/mediatracker/media/processor"
	"github.com/wricardo/mediatracker/media/service"
	"github.com/wricardo/mediatracker/transport/mcp"
	"github.com/wricardo/mediatracker/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Media Tracker Server"
)

// options are the resolved startup settings: the settings file overlaid by
// any flag given on the command line.
type options struct {
	config.Settings
	Debug       bool
	Ngrok       bool
	NgrokAuth   string
	NgrokDomain string
}

// app holds the wired services.
type app struct {
	processor *processor.Processor
	hub       *websocket.Hub
	service   service.MediaService
	logger    *slog.Logger
}

// main loads the environment and runs the command line.
func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	} else {
		log.Println("Loaded environment variables from .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// newCommand builds the root command. Without a subcommand it runs the
// HTTP server.
func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "mediatracker",
		Usage:   AppName,
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Value: "localhost",
				Usage: "HTTP server host",
			},
			&cli.IntFlag{
				Name:  "port",
				Value: 8080,
				Usage: "HTTP server port",
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML settings file",
				Sources: cli.EnvVars("MEDIATRACKER_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "presets-dir",
				Value:   "presets",
				Usage:   "Directory containing shared-state presets",
				Sources: cli.EnvVars("CONFIG_DIR"),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
			&cli.BoolFlag{
				Name:    "ngrok",
				Usage:   "Enable ngrok tunnel",
				Sources: cli.EnvVars("NGROK_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "ngrok-auth",
				Usage:   "Ngrok auth token",
				Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "ngrok-domain",
				Usage:   "Custom ngrok domain (optional)",
				Sources: cli.EnvVars("NGROK_DOMAIN"),
			},
		},
		Action: runServerCommand,
		Commands: []*cli.Command{
			{
				Name:    "server",
				Aliases: []string{"http"},
				Usage:   "Run HTTP server with API, WebSocket, and MCP endpoint (default)",
				Action:  runServerCommand,
			},
			{
				Name:    "stdio-mcp",
				Aliases: []string{"mcp-stdio", "mcp"},
				Usage:   "Run MCP stdio server with internal HTTP server",
				Action:  runStdioCommand,
			},
		},
	}
}

func runServerCommand(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}

	a, err := initializeServices(opts, newLogger(opts, os.Stderr))
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer a.shutdown()

	log.Printf("Starting %s v%s (mode: server)", AppName, Version)
	return runHTTPServer(ctx, a, opts)
}

func runStdioCommand(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}

	// stdout carries the MCP protocol
	log.SetOutput(os.Stderr)

	a, err := initializeServices(opts, newLogger(opts, os.Stderr))
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer a.shutdown()

	log.Printf("Starting %s v%s (mode: stdio-mcp)", AppName, Version)
	return runStdioMCPWithInternalServer(ctx, a, opts)
}

// loadOptions reads the settings file and applies explicitly set flags on
// top of it.
func loadOptions(cmd *cli.Command) (options, error) {
	settings, err := config.LoadSettings(cmd.String("config"))
	if err != nil {
		return options{}, err
	}

	if cmd.IsSet("host") {
		settings.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		settings.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("presets-dir") {
		settings.PresetsDir = cmd.String("presets-dir")
	}

	opts := options{
		Settings:    settings,
		Debug:       cmd.Bool("debug"),
		Ngrok:       cmd.Bool("ngrok"),
		NgrokAuth:   cmd.String("ngrok-auth"),
		NgrokDomain: cmd.String("ngrok-domain"),
	}
	if opts.Port <= 0 || opts.Port > 65535 {
		return opts, fmt.Errorf("invalid port %d", opts.Port)
	}
	return opts, nil
}

// newLogger builds the structured logger handed to the processor. --debug
// wins over the configured level.
func newLogger(opts options, w io.Writer) *slog.Logger {
	level := parseLevel(opts.LogLevel)
	if opts.Debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
		if level > slog.LevelDebug {
			level = slog.LevelDebug
		}
	} else {
		log.SetFlags(log.LstdFlags)
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return processor.LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// initializeServices wires the presets, the record stream, the processor and
// the media service. A missing presets directory disables presets.
func initializeServices(opts options, logger *slog.Logger) (*app, error) {
	var presets service.PresetManager
	var defaultPreset *config.Preset
	manager, err := config.NewManager(opts.PresetsDir, opts.DefaultPreset)
	switch {
	case err == nil:
		presets = manager
		defaultPreset = manager.GetDefault()
	case !dirExists(opts.PresetsDir):
		logger.Warn("presets disabled", "dir", opts.PresetsDir, "err", err)
	default:
		return nil, fmt.Errorf("failed to create preset manager: %w", err)
	}

	hub := websocket.NewHub(opts.StreamBuffer)
	go hub.Run()

	proc := processor.New(
		processor.WithLogger(logger),
		processor.WithDispatcher(hub.Publish),
	)

	if opts.ApplyDefault && defaultPreset != nil && len(defaultPreset.State) > 0 {
		proc.UpdateSharedState(defaultPreset.State)
		logger.Info("applied default preset", "preset", defaultPreset.Name)
	}

	return &app{
		processor: proc,
		hub:       hub,
		service:   service.NewMediaService(proc, presets, logger),
		logger:    logger,
	}, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// shutdown aborts every active session, lets the processor drain, then
// stops the record stream.
func (a *app) shutdown() {
	a.processor.AbortAllSessions()
	a.processor.Sync()
	a.processor.Close()
	a.hub.Close()
	a.logger.Info("processor stopped")
}

// mcpHandler serves single MCP JSON-RPC messages over HTTP POST.
func mcpHandler(mcpClient *mcp.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	}
}

// newRouter mounts the REST API and the /mcp endpoint.
func newRouter(a *app, baseURL string) http.Handler {
	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", api.NewServer(a.service, a.hub))
	mainRouter.HandleFunc("/mcp", mcpHandler(mcp.NewClient(baseURL)))
	return mainRouter
}

// runHTTPServer serves until ctx is canceled. If ngrok is enabled it also
// provisions a public tunnel.
func runHTTPServer(ctx context.Context, a *app, opts options) error {
	addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
	handler := newRouter(a, fmt.Sprintf("http://%s", addr))

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		log.Printf("HTTP server listening on %s", addr)
		log.Printf("REST API: http://%s/api", addr)
		log.Printf("WebSocket: ws://%s/ws?session=<session_id>", addr)
		log.Printf("MCP endpoint: http://%s/mcp", addr)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- fmt.Errorf("HTTP server failed: %w", err)
			cancel()
		}
	}()

	if opts.Ngrok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrokTunnel(ctx, handler, opts)
		}()
	}

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	wg.Wait()
	log.Println("Server stopped")

	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}

// runNgrokTunnel serves handler through an ngrok endpoint until ctx ends.
func runNgrokTunnel(ctx context.Context, handler http.Handler, opts options) {
	if opts.NgrokAuth == "" {
		log.Println("WARNING: Ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	log.Println("Starting ngrok tunnel...")

	var tunnel ngrokConfig.Tunnel
	if opts.NgrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(opts.NgrokDomain))
		log.Printf("Using custom ngrok domain: %s", opts.NgrokDomain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(opts.NgrokAuth))
	if err != nil {
		log.Printf("Failed to start ngrok tunnel: %v", err)
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			log.Printf("Failed to close ngrok tunnel: %v", err)
		}
	}()

	ngrokURL := tun.URL()
	log.Printf("Ngrok tunnel established: %s", ngrokURL)
	log.Printf("  REST API (ngrok): %s/api", ngrokURL)
	log.Printf("  WebSocket (ngrok): %s/ws?session=<session_id>", ngrokURL)
	log.Printf("  MCP endpoint (ngrok): %s/mcp", ngrokURL)

	if err := http.Serve(tun, handler); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
		log.Printf("Ngrok server error: %v", err)
	}
	log.Println("Ngrok tunnel closed")
}

// runStdioMCPWithInternalServer runs an MCP stdio server. It reuses an
// external API at the configured address when one answers; otherwise it
// starts an internal HTTP API on a random loopback port.
func runStdioMCPWithInternalServer(ctx context.Context, a *app, opts options) error {
	externalURL := fmt.Sprintf("http://%s:%d", opts.Host, opts.Port)
	baseURL := externalURL

	log.Printf("Checking for external API server at %s...", externalURL)
	testClient := &http.Client{Timeout: 2 * time.Second}
	resp, err := testClient.Get(externalURL + "/health")
	if err == nil && resp.StatusCode < 500 {
		resp.Body.Close()
		log.Printf("External API server found at %s, using it for MCP", externalURL)
	} else {
		log.Printf("No external API server found, starting internal HTTP server")

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		internalAddr := listener.Addr().String()
		baseURL = fmt.Sprintf("http://%s", internalAddr)

		httpServer := &http.Server{Handler: api.NewServer(a.service, a.hub)}
		go func() {
			if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
				log.Printf("Internal HTTP server error: %v", err)
			}
		}()
		defer httpServer.Close()

		log.Printf("Internal HTTP server on %s for MCP stdio", internalAddr)
	}

	mcpClient := mcp.NewClient(baseURL)
	log.Printf("MCP stdio server ready (API: %s)", baseURL)

	stdio := server.NewStdioServer(mcpClient.GetMCPServer())
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}
