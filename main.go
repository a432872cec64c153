package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hannes/stoat-bridge/bridge"
	"github.com/hannes/stoat-bridge/config"
	"github.com/hannes/stoat-bridge/discord"
	"github.com/hannes/stoat-bridge/server"
	"github.com/hannes/stoat-bridge/stoat"
	"github.com/hannes/stoat-bridge/store"
)

func main() {
	// Load .env if present; real environment variables take precedence.
	_ = godotenv.Load()

	// Load configuration
	cfg := config.DefaultConfig()

	// Override configuration with environment variables
	if err := loadConfigFromEnv(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Printf("Bridge exited with error: %v", err)
		os.Exit(1)
	}
	log.Println("Bridge stopped")
}

func run(cfg *config.Config) error {
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			log.Printf("Sentry initialization failed: %v", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	links := openLinkStore(cfg)
	defer func() {
		if err := links.Close(); err != nil {
			log.Printf("[Store] Close failed: %v", err)
		}
	}()

	table, err := bridge.NewTable(cfg.Discord.ChannelIDs, cfg.Stoat.ChannelIDs)
	if err != nil {
		return err
	}
	log.Printf("Bridging %d channel pair(s)", table.Len())

	discordClient, err := discord.NewClient(discord.ClientConfig{
		Token:       cfg.Discord.Token,
		BaseURL:     cfg.Discord.APIURL,
		SendLimiter: rate.NewLimiter(rate.Limit(cfg.Rate.SendRate), cfg.Rate.SendBurst),
	})
	if err != nil {
		return err
	}
	stoatClient, err := stoat.NewClient(stoat.ClientConfig{
		Token:       cfg.Stoat.Token,
		BaseURL:     cfg.Stoat.APIURL,
		SendLimiter: rate.NewLimiter(rate.Limit(cfg.Rate.SendRate), cfg.Rate.SendBurst),
	})
	if err != nil {
		return err
	}

	gateway, err := discord.NewGateway(discord.GatewayConfig{
		Token:      cfg.Discord.Token,
		GatewayURL: cfg.Discord.GatewayURL,
		Debug:      cfg.Logging.DebugMode,
	})
	if err != nil {
		return err
	}
	socket, err := stoat.NewSocket(stoat.SocketConfig{
		Token:     cfg.Stoat.Token,
		EventsURL: cfg.Stoat.EventsURL,
		Debug:     cfg.Logging.DebugMode,
	})
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	relay, err := bridge.NewRelay(bridge.RelayConfig{
		Discord:     discordClient,
		Stoat:       stoatClient,
		Table:       table,
		Links:       links,
		Metrics:     bridge.NewMetrics(registry),
		LogMessages: cfg.Logging.LogMessages,
		Sentry:      cfg.SentryDSN != "",
	})
	if err != nil {
		return err
	}

	admin := server.NewServer(cfg.AdminPort, table, registry)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return gateway.Run(ctx) })
	group.Go(func() error { return socket.Run(ctx) })
	group.Go(func() error { return relay.Run(ctx, gateway.Events(), socket.Events()) })
	group.Go(func() error { return admin.Run(ctx) })
	if cfg.Database.CleanupHours > 0 {
		group.Go(func() error {
			runLinkCleanup(ctx, links, time.Hour, time.Duration(cfg.Database.CleanupHours)*time.Hour)
			return nil
		})
	}
	return group.Wait()
}

// openLinkStore opens the configured message-link store. A database
// connection failure falls back to in-memory storage so the bridge
// still relays, losing only edit and delete propagation across
// restarts.
func openLinkStore(cfg *config.Config) store.LinkStore {
	if !cfg.Database.Enabled {
		log.Println("[Store] Using in-memory message link storage")
		return store.NewMemoryLinkStore()
	}

	pg, err := store.NewPostgresLinkStore(store.DatabaseConfig{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		Database:     cfg.Database.Database,
		Username:     cfg.Database.Username,
		Password:     cfg.Database.Password,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxLifetime:  time.Duration(cfg.Database.MaxLifetime) * time.Second,
	})
	if err != nil {
		log.Printf("[Store] Database connection failed, using in-memory storage: %v", err)
		return store.NewMemoryLinkStore()
	}

	log.Println("[Store] Database storage enabled")
	if cfg.Database.UseCache {
		return store.NewCachedLinkStore(pg)
	}
	return pg
}

// runLinkCleanup removes message links older than maxAge on every
// interval tick. It runs for the in-memory store too, which would
// otherwise grow for the whole process lifetime.
func runLinkCleanup(ctx context.Context, links store.LinkStore, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := links.CleanupOldLinks(ctx, maxAge)
			if err != nil {
				log.Printf("[Store] Link cleanup failed: %v", err)
				continue
			}
			if removed > 0 {
				log.Printf("[Store] Cleaned up %d old message link(s)", removed)
			}
		}
	}
}

// loadConfigFromEnv loads configuration from environment variables
func loadConfigFromEnv(cfg *config.Config) error {
	// Discord configuration
	if token := os.Getenv("DISCORD_BOT_TOKEN"); token != "" {
		cfg.Discord.Token = token
	}

	if apiURL := os.Getenv("DISCORD_API_URL"); apiURL != "" {
		cfg.Discord.APIURL = apiURL
	}

	if gatewayURL := os.Getenv("DISCORD_GATEWAY_URL"); gatewayURL != "" {
		cfg.Discord.GatewayURL = gatewayURL
	}

	if channels := os.Getenv("DISCORD_CHANNEL_IDS"); channels != "" {
		ids, err := config.ParseSnowflakeList(channels)
		if err != nil {
			return err
		}
		cfg.Discord.ChannelIDs = ids
	}

	// Stoat configuration
	if token := os.Getenv("STOAT_BOT_TOKEN"); token != "" {
		cfg.Stoat.Token = token
	}

	if apiURL := os.Getenv("STOAT_API_URL"); apiURL != "" {
		cfg.Stoat.APIURL = apiURL
	}

	if eventsURL := os.Getenv("STOAT_EVENTS_URL"); eventsURL != "" {
		cfg.Stoat.EventsURL = eventsURL
	}

	if channels := os.Getenv("STOAT_CHANNEL_IDS"); channels != "" {
		cfg.Stoat.ChannelIDs = config.ParseChannelList(channels)
	}

	// Database configuration
	if dbEnabled := os.Getenv("DB_ENABLED"); dbEnabled != "" {
		cfg.Database.Enabled = dbEnabled == "true"
	}

	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Database.Port = p
		}
	}

	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		cfg.Database.Database = dbName
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.Database.Username = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}

	if sslMode := os.Getenv("DB_SSL_MODE"); sslMode != "" {
		cfg.Database.SSLMode = sslMode
	}

	if useCache := os.Getenv("DB_USE_CACHE"); useCache != "" {
		cfg.Database.UseCache = useCache == "true"
	}

	if cleanupHours := os.Getenv("DB_CLEANUP_HOURS"); cleanupHours != "" {
		if hours, err := strconv.Atoi(cleanupHours); err == nil {
			cfg.Database.CleanupHours = hours
		}
	}

	// Application configuration
	if adminPort := os.Getenv("ADMIN_PORT"); adminPort != "" {
		cfg.AdminPort = adminPort
	}

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		cfg.SentryDSN = dsn
	}

	if sendRate := os.Getenv("SEND_RATE"); sendRate != "" {
		if r, err := strconv.ParseFloat(sendRate, 64); err == nil {
			cfg.Rate.SendRate = r
		}
	}

	if sendBurst := os.Getenv("SEND_BURST"); sendBurst != "" {
		if b, err := strconv.Atoi(sendBurst); err == nil {
			cfg.Rate.SendBurst = b
		}
	}

	// Logging configuration
	if logMessages := os.Getenv("LOG_MESSAGES"); logMessages != "" {
		cfg.Logging.LogMessages = logMessages == "true"
	}

	if debugMode := os.Getenv("DEBUG_MODE"); debugMode != "" {
		cfg.Logging.DebugMode = debugMode == "true"
	}

	return nil
}
