package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/driftworks/playdeck/internal/config"
	"github.com/driftworks/playdeck/internal/database"
	"github.com/driftworks/playdeck/internal/jellyfin"
	"github.com/driftworks/playdeck/internal/library"
	"github.com/driftworks/playdeck/internal/logging"
	"github.com/driftworks/playdeck/internal/playback"
	"github.com/driftworks/playdeck/internal/scheduler"
	"github.com/driftworks/playdeck/internal/web"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI flags
var (
	port        int
	bind        string
	allowSubnet string
	dbPath      string
	serverURL   string
	apiKey      string
	userID      string
	verbosity   int

	// Timeout flags (advanced)
	httpTimeout    time.Duration
	websocketPing  time.Duration
	resolveTimeout time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "playdeck",
		Short: "Playdeck - Media playback session server",
		Long:  `Playdeck resolves playback sessions against a Jellyfin server: stream URL and track selection, play queue navigation, and a local watch-state mirror, exposed over a JSON API with server-sent events.`,
		RunE:  run,
	}

	// Flags
	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP server port (required, or set PORT env var)")
	rootCmd.Flags().StringVarP(&bind, "bind", "b", "", "IP address to bind to (e.g., 127.0.0.1, 0.0.0.0)")
	rootCmd.Flags().StringVarP(&allowSubnet, "allow-subnet", "a", "", "CIDR subnet allowed to connect (e.g., 192.168.1.0/24)")
	rootCmd.Flags().StringVarP(&dbPath, "db", "d", "./playdeck.db", "SQLite database path (or set DB_PATH env var)")
	rootCmd.Flags().StringVarP(&serverURL, "server", "s", "", "Jellyfin server URL (required, or set JELLYFIN_URL env var)")
	rootCmd.Flags().StringVarP(&apiKey, "api-key", "k", "", "Jellyfin access token (required, or set JELLYFIN_API_KEY env var)")
	rootCmd.Flags().StringVarP(&userID, "user", "u", "", "Jellyfin user id playback runs as (required, or set JELLYFIN_USER_ID env var)")
	rootCmd.Flags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")

	// Advanced timeout flags
	rootCmd.Flags().DurationVar(&httpTimeout, "http-timeout", 30*time.Second, "Timeout for HTTP client requests to the media server")
	rootCmd.Flags().DurationVar(&websocketPing, "websocket-ping", 30*time.Second, "Interval between WebSocket keepalive pings")
	rootCmd.Flags().DurationVar(&resolveTimeout, "resolve-timeout", 45*time.Second, "Timeout for resolving a playback session")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("playdeck %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// Check for PORT env var if flag not set
	if port == 0 {
		if envPort := os.Getenv("PORT"); envPort != "" {
			if _, err := fmt.Sscanf(envPort, "%d", &port); err != nil {
				return fmt.Errorf("invalid PORT environment variable %q: %w", envPort, err)
			}
		}
	}

	// Check for DB_PATH env var if using default
	if dbPath == "./playdeck.db" {
		if envDB := os.Getenv("DB_PATH"); envDB != "" {
			dbPath = envDB
		}
	}

	// Jellyfin connection details fall back to env vars
	if serverURL == "" {
		serverURL = os.Getenv("JELLYFIN_URL")
	}
	if apiKey == "" {
		apiKey = os.Getenv("JELLYFIN_API_KEY")
	}
	if userID == "" {
		userID = os.Getenv("JELLYFIN_USER_ID")
	}

	// Validate required settings
	if port == 0 {
		return fmt.Errorf("--port flag or PORT environment variable is required")
	}
	if serverURL == "" {
		return fmt.Errorf("--server flag or JELLYFIN_URL environment variable is required")
	}
	if apiKey == "" {
		return fmt.Errorf("--api-key flag or JELLYFIN_API_KEY environment variable is required")
	}
	if userID == "" {
		return fmt.Errorf("--user flag or JELLYFIN_USER_ID environment variable is required")
	}

	// Validate bind address if provided
	if bind != "" {
		if ip := net.ParseIP(bind); ip == nil {
			return fmt.Errorf("invalid bind address: %s", bind)
		}
	}

	// Validate and parse allow-subnet if provided
	var allowedNet *net.IPNet
	if allowSubnet != "" {
		_, parsedNet, err := net.ParseCIDR(allowSubnet)
		if err != nil {
			return fmt.Errorf("invalid allow-subnet CIDR: %s", allowSubnet)
		}
		allowedNet = parsedNet
	}

	// Setup logging
	setupLogging(verbosity)

	// Configure global timeouts
	config.SetGlobalTimeouts(&config.TimeoutConfig{
		HTTPClient:    httpTimeout,
		WebSocketPing: websocketPing,
		Resolve:       resolveTimeout,
	})

	// Warn if binding to all interfaces without an allow list
	if (bind == "" || bind == "0.0.0.0" || bind == "::") && allowSubnet == "" {
		log.Warn().Msg("Server is accessible from all interfaces without subnet restrictions. Consider using --bind or --allow-subnet for security.")
	}

	log.Info().
		Str("version", version).
		Int("port", port).
		Str("bind", bind).
		Str("allow_subnet", allowSubnet).
		Str("database", dbPath).
		Str("server", serverURL).
		Msg("Starting Playdeck")

	// Initialize database
	db, err := database.New(dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Seed settings defaults on first run
	if err := db.InitializeDefaults(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize default settings")
	}

	loader := config.NewLoader(db)

	// File logging follows the stored settings; -v overrides the stored level
	if verbosity == 0 {
		logging.Apply(loader.String("log.level", "info"), loader, logging.FilePathForDB(db.Path()))
	}

	// The device id identifies this installation to the media server and is
	// baked into stream URLs; generate once and persist.
	deviceID, err := db.GetSetting("server.device_id")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load device id")
	}
	if deviceID == "" {
		deviceID = uuid.NewString()
		if err := db.SetSetting("server.device_id", deviceID); err != nil {
			log.Fatal().Err(err).Msg("Failed to persist device id")
		}
		log.Info().Str("device_id", deviceID).Msg("Generated new device id")
	}

	client := jellyfin.NewClient(serverURL, apiKey, deviceID)

	// Playback engine
	store := playback.NewStore()
	queue := playback.NewQueue()
	loading := playback.NewLoadingStore()
	resolver := playback.NewResolver(client, store, queue, loading, db)

	// Latest-media cache and its refresh scheduler
	libraryCache := library.NewCache(client, userID, loader.Int("library.latest_limit", 16))
	sched := scheduler.New(db, loader, libraryCache)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}
	defer sched.Stop()

	// Remote play: the media server can push Play commands over its websocket
	if loader.BoolDefaultTrue("remote_control.enabled") {
		go func() {
			err := client.WatchCommands(ctx, func(pc jellyfin.PlayCommand) {
				if len(pc.ItemIDs) == 0 {
					return
				}
				playCtx, playCancel := context.WithTimeout(ctx, config.GetTimeouts().Resolve)
				defer playCancel()

				remoteUser := pc.ControllingUserID
				if remoteUser == "" {
					remoteUser = userID
				}

				// The full item list seeds the queue so next/previous walk
				// the remote playlist. Items that fail to fetch are skipped.
				items := make([]jellyfin.BaseItem, 0, len(pc.ItemIDs))
				for _, id := range pc.ItemIDs {
					item, err := client.Item(playCtx, id, remoteUser)
					if err != nil || item == nil {
						log.Warn().Err(err).Str("item_id", id).Msg("Skipping unfetchable item in remote play command")
						continue
					}
					items = append(items, *item)
				}
				if len(items) == 0 {
					log.Error().Msg("Remote play command had no playable items")
					return
				}
				index := pc.StartIndex
				if index < 0 || index >= len(items) {
					index = 0
				}

				req := playback.PlayRequest{
					ItemID:     items[index].ID,
					UserID:     remoteUser,
					ItemType:   items[index].Type,
					Queue:      items,
					QueueIndex: index,
				}
				if pc.StartPositionTicks > 0 {
					req.StartPositionTicks = &pc.StartPositionTicks
				}
				if err := resolver.ResolveAndPlay(playCtx, req); err != nil {
					log.Error().Err(err).Str("item_id", req.ItemID).Msg("Remote play command failed")
				}
			})
			if err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Remote command watcher stopped")
			}
		}()
	} else {
		log.Debug().Msg("Remote control disabled")
	}

	server := web.NewServer(db, port, bind, allowedNet, resolver, store, queue, loading, libraryCache, userID)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	// Start server
	if err := server.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}

	log.Info().Msg("Playdeck stopped")
	return nil
}

func setupLogging(verbosity int) {
	// Pretty console output
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"}

	switch verbosity {
	case 0:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case 1:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default: // 2+
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}
