package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.uber.org/zap"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	apihttp "soilwatch/internal/api/http"
	"soilwatch/internal/audit"
	"soilwatch/internal/auth"
	dashboardapp "soilwatch/internal/dashboard/application"
	"soilwatch/internal/export"
	masterdatarepo "soilwatch/internal/masterdata/infrastructure/postgres"
	"soilwatch/internal/observability/logging"
	"soilwatch/internal/observability/metrics"
	telemetry "soilwatch/internal/telemetry/domain"
	influxquery "soilwatch/internal/telemetry/infrastructure/influx"
	mqttfeed "soilwatch/internal/telemetry/infrastructure/mqtt"
	"soilwatch/internal/telemetry/infrastructure/pgnotify"
	telemetrypostgres "soilwatch/internal/telemetry/infrastructure/postgres"
	"soilwatch/internal/telemetry/interfaces/changefeed"
)

func main() {
	_ = godotenv.Load()

	logger := logging.New(logging.Config{
		Level:  getenvDefault("LOG_LEVEL", "info"),
		Format: getenvDefault("LOG_FORMAT", "json"),
		Output: getenvDefault("LOG_OUTPUT", "stdout"),
	})
	defer func() { _ = logger.Sync() }()

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal("config error", zap.Error(err))
	}
	dashCfg, err := dashboardapp.LoadConfig()
	if err != nil {
		logger.Fatal("dashboard config error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db open error", zap.Error(err))
	}
	defer db.Close()
	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		logger.Fatal("db ping error", zap.Error(err))
	}
	cancelPing()
	metrics.Init(db, logger)

	devices := masterdatarepo.NewDeviceRepository(db)
	pgReadings := telemetrypostgres.NewReadingQuery(db)
	var readings telemetry.ReadingQuery = pgReadings
	if cfg.ReadingStore == "influx" {
		client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
		defer client.Close()
		readings, err = influxquery.NewReadingQuery(client, cfg.InfluxOrg, cfg.InfluxBucket,
			influxquery.WithMeasurement(cfg.InfluxMeasurement))
		if err != nil {
			logger.Fatal("influx reading query error", zap.Error(err))
		}
	}

	source, err := buildChangeSource(cfg, logger)
	if err != nil {
		logger.Fatal("change feed error", zap.Error(err))
	}
	hub := changefeed.NewHub(source, logger.Named("changefeed"), changefeed.WithSubscriberBuffer(cfg.SubscriberBuffer))
	go func() {
		if err := hub.Run(ctx); err != nil {
			logger.Error("change feed stopped", zap.Error(err))
		}
	}()

	var auditLogger audit.Logger = audit.NewRepository(db)
	if cfg.AuditSink == "log" {
		auditLogger = audit.NewZapLogger(logger)
	}

	revocations, err := buildRevocationStore(ctx, cfg)
	if err != nil {
		logger.Fatal("revocation store error", zap.Error(err))
	}
	gate, err := auth.NewGate([]byte(cfg.JWTSecret), auth.NewUserRepository(db), revocations,
		auth.WithTokenTTL(cfg.TokenTTL),
		auth.WithGateAudit(auditLogger),
		auth.WithGateLogger(logger.Named("auth")),
	)
	if err != nil {
		logger.Fatal("auth gate error", zap.Error(err))
	}
	go func() {
		if err := gate.Run(ctx); err != nil {
			logger.Error("revocation feed stopped", zap.Error(err))
		}
	}()

	service, err := dashboardapp.NewService(devices, readings, hub, dashCfg,
		dashboardapp.WithSessionWatcher(gate),
		dashboardapp.WithLogger(logger.Named("dashboard")),
	)
	if err != nil {
		logger.Fatal("dashboard service error", zap.Error(err))
	}
	exporter, err := export.NewExporter(pgReadings, dashCfg.Location(),
		export.WithAuditLogger(auditLogger),
		export.WithLogger(logger.Named("export")),
	)
	if err != nil {
		logger.Fatal("exporter error", zap.Error(err))
	}

	authHandler, err := apihttp.NewAuthHandler(gate)
	if err != nil {
		logger.Fatal("auth handler error", zap.Error(err))
	}
	devicesHandler, err := apihttp.NewDevicesHandler(service)
	if err != nil {
		logger.Fatal("devices handler error", zap.Error(err))
	}
	streamHandler, err := apihttp.NewStreamHandler(service, logger.Named("stream"))
	if err != nil {
		logger.Fatal("stream handler error", zap.Error(err))
	}
	exportHandler, err := apihttp.NewExportHandler(exporter)
	if err != nil {
		logger.Fatal("export handler error", zap.Error(err))
	}

	mux := http.NewServeMux()
	apihttp.Handlers{
		Auth:    authHandler,
		Devices: devicesHandler,
		Stream:  streamHandler,
		Export:  exportHandler,
		Metrics: promhttp.Handler(),
	}.Mount(mux)

	authMiddleware := auth.NewMiddleware(gate, auth.NewDefaultPolicy(apihttp.PublicPaths, nil))
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition", "X-Export-Rows"},
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apihttp.LoggingMiddleware(corsHandler.Handler(authMiddleware.Wrap(mux)), logger.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("http listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("reading_store", cfg.ReadingStore),
		zap.String("change_feed", cfg.ChangeFeed),
		zap.String("timezone", dashCfg.Location().String()),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server error", zap.Error(err))
	}
}

type config struct {
	DatabaseURL       string
	HTTPAddr          string
	JWTSecret         string
	TokenTTL          time.Duration
	ReadingStore      string
	InfluxURL         string
	InfluxToken       string
	InfluxOrg         string
	InfluxBucket      string
	InfluxMeasurement string
	ChangeFeed        string
	NotifyChannel     string
	MQTTBroker        string
	MQTTTopic         string
	MQTTClientID      string
	FeedRetryDelay    time.Duration
	SubscriberBuffer  int
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	AuditSink         string
	CORSOrigins       []string
}

func loadConfig() (config, error) {
	cfg := config{
		DatabaseURL:       getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:          getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:         getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		TokenTTL:          getenvDuration("AUTH_TOKEN_TTL", 12*time.Hour),
		ReadingStore:      strings.ToLower(getenvDefault("READING_STORE", "postgres")),
		InfluxURL:         getenvDefault("INFLUX_URL", ""),
		InfluxToken:       getenvDefault("INFLUX_TOKEN", ""),
		InfluxOrg:         getenvDefault("INFLUX_ORG", ""),
		InfluxBucket:      getenvDefault("INFLUX_BUCKET", ""),
		InfluxMeasurement: getenvDefault("INFLUX_MEASUREMENT", "readings"),
		ChangeFeed:        strings.ToLower(getenvDefault("CHANGE_FEED", "postgres")),
		NotifyChannel:     getenvDefault("NOTIFY_CHANNEL", pgnotify.DefaultChannel),
		MQTTBroker:        getenvDefault("MQTT_BROKER", ""),
		MQTTTopic:         getenvDefault("MQTT_TOPIC", "soilwatch/readings/changes"),
		MQTTClientID:      getenvDefault("MQTT_CLIENT_ID", ""),
		FeedRetryDelay:    getenvDuration("FEED_RETRY_DELAY", 5*time.Second),
		SubscriberBuffer:  getenvIntDefault("SUBSCRIBER_BUFFER", 64),
		RedisAddr:         getenvDefault("REDIS_ADDR", ""),
		RedisPassword:     getenvDefault("REDIS_PASSWORD", ""),
		RedisDB:           getenvIntDefault("REDIS_DB", 0),
		AuditSink:         strings.ToLower(getenvDefault("AUDIT_SINK", "db")),
		CORSOrigins:       splitCSV(getenvDefault("CORS_ALLOWED_ORIGINS", "*")),
	}
	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		return cfg, errors.New("AUTH_JWT_SECRET is required")
	}
	switch cfg.ReadingStore {
	case "postgres":
	case "influx":
		if cfg.InfluxURL == "" || cfg.InfluxOrg == "" || cfg.InfluxBucket == "" {
			return cfg, errors.New("INFLUX_URL, INFLUX_ORG and INFLUX_BUCKET are required for READING_STORE=influx")
		}
	default:
		return cfg, fmt.Errorf("unknown READING_STORE %q", cfg.ReadingStore)
	}
	switch cfg.ChangeFeed {
	case "postgres", "none":
	case "mqtt":
		if cfg.MQTTBroker == "" {
			return cfg, errors.New("MQTT_BROKER is required for CHANGE_FEED=mqtt")
		}
	default:
		return cfg, fmt.Errorf("unknown CHANGE_FEED %q", cfg.ChangeFeed)
	}
	return cfg, nil
}

// buildChangeSource returns nil for CHANGE_FEED=none; sessions then rely on
// polling alone.
func buildChangeSource(cfg config, logger *zap.Logger) (changefeed.Source, error) {
	switch cfg.ChangeFeed {
	case "mqtt":
		return mqttfeed.NewSubscriber(cfg.MQTTBroker, logger.Named("mqtt"),
			mqttfeed.WithTopic(cfg.MQTTTopic),
			mqttfeed.WithClientID(cfg.MQTTClientID),
			mqttfeed.WithReconnectDelay(cfg.FeedRetryDelay),
		)
	case "none":
		return nil, nil
	default:
		return pgnotify.NewListener(cfg.DatabaseURL, logger.Named("pgnotify"),
			pgnotify.WithChannel(cfg.NotifyChannel),
			pgnotify.WithReconnectDelay(cfg.FeedRetryDelay),
		)
	}
}

func buildRevocationStore(ctx context.Context, cfg config) (auth.RevocationStore, error) {
	if cfg.RedisAddr == "" {
		return auth.NewMemoryRevocationStore(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return auth.NewRedisRevocationStore(client)
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
