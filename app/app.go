package app

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"fibo_store/auth"
	"fibo_store/catalog"
	"fibo_store/db"
	"fibo_store/session"
	"fibo_store/storage"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// H is the JSON body shorthand used by handlers.
type H = gin.H

// App aggregates the long-lived dependencies.
type App struct {
	Router *gin.Engine
	DB     *gorm.DB
	RDB    *redis.Client
	WA     *webauthn.WebAuthn
	Config Config
	Log    *zap.Logger

	Gate   *auth.Gate
	Tokens *auth.TokenIssuer
	Google auth.IdentityProvider
	Images storage.ImageStore

	appSess *session.AppSessionStore
}

// Config is read from the environment once at startup (see LoadConfig).
type Config struct {
	Port        string
	DatabaseURL string
	RedisAddr   string
	RedisPwd    string
	WebOrigin   string
	RPID        string
	RPOrigins   []string
	SessionTTL  time.Duration // OAuth state and passkey ceremonies
	RefreshTTL  time.Duration
	AccessTTL   time.Duration
	JWTSecret   string

	AllowedDomain string
	AdminEmails   []string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	Storage           storage.Config
	LowStockThreshold int

	LogLevel string
	Env      string
}

func (c Config) GateConfig() auth.GateConfig {
	return auth.GateConfig{AllowedDomain: c.AllowedDomain, AdminEmails: c.AdminEmails}
}

func (a *App) AppSessions() *session.AppSessionStore { return a.appSess }

// MustNew connects Postgres and Redis and wires everything else.
func MustNew(cfg Config, log *zap.Logger) *App {
	dbConn, err := db.ConnectDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis", zap.Error(err))
	}

	images, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatal("image storage", zap.Error(err))
	}

	a, err := New(cfg, dbConn, rdb, images, log)
	if err != nil {
		log.Fatal("app", zap.Error(err))
	}
	return a
}

// New wires an App around already opened connections.
func New(cfg Config, dbConn *gorm.DB, rdb *redis.Client, images storage.ImageStore, log *zap.Logger) (*App, error) {
	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: "FIBO Store Passkeys",
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("webauthn: %w", err)
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), RequestLogger(log))
	useCORS(r, append([]string{cfg.WebOrigin}, cfg.RPOrigins...))

	a := &App{
		Router: r, DB: dbConn, RDB: rdb, WA: wa, Config: cfg, Log: log,
		Gate:   auth.NewGate(cfg.GateConfig()),
		Tokens: auth.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTTL),
		Google: auth.NewGoogleProvider(auth.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Domain:       cfg.AllowedDomain,
		}),
		Images:  images,
		appSess: session.NewAppSessionStore(rdb, cfg.RefreshTTL),
	}
	return a, nil
}

func (a *App) Close() {
	_ = a.RDB.Close()
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func LoadConfig() Config {
	get := func(k, def string) string {
		v := os.Getenv(k)
		if v == "" {
			return def
		}
		return v
	}
	seconds := func(k string, def time.Duration) time.Duration {
		if d, err := time.ParseDuration(get(k, "") + "s"); err == nil && d > 0 {
			return d
		}
		return def
	}
	number := func(k string, def int) int {
		if n, err := strconv.Atoi(get(k, "")); err == nil && n > 0 {
			return n
		}
		return def
	}

	return Config{
		Port:        get("PORT", "8000"),
		DatabaseURL: db.DSN(),
		RedisAddr:   get("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPwd:    os.Getenv("REDIS_PASSWORD"),
		WebOrigin:   get("WEB_ORIGIN", "http://localhost:3000"),
		RPID:        get("RP_ID", "localhost"),
		RPOrigins:   splitCSV(get("RP_ORIGINS", "http://localhost:3000"), false),
		SessionTTL:  seconds("SESSION_TTL_SECONDS", 10*time.Minute),
		RefreshTTL:  time.Duration(number("REFRESH_TTL_HOURS", 24)) * time.Hour,
		AccessTTL:   time.Duration(number("ACCESS_TTL_MINUTES", 15)) * time.Minute,
		JWTSecret:   os.Getenv("JWT_SECRET"),

		AllowedDomain: get("ALLOWED_EMAIL_DOMAIN", "student.fibo.edu"),
		AdminEmails:   splitCSV(os.Getenv("ADMIN_EMAILS"), true), // "admin@x.edu,ops@x.edu"

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  get("GOOGLE_REDIRECT_URL", "http://localhost:8000/auth/google/callback"),

		Storage: storage.Config{
			Driver:         get("STORAGE_DRIVER", "disk"),
			UploadDir:      get("UPLOAD_DIR", "uploads"),
			PublicBaseURL:  get("PUBLIC_BASE_URL", "http://localhost:8000"),
			MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
			MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
			MinioBucket:    get("MINIO_BUCKET", "item-images"),
			MinioUseSSL:    get("MINIO_USE_SSL", "false") == "true",
			MinioPublicURL: os.Getenv("MINIO_PUBLIC_URL"),
		},
		LowStockThreshold: number("LOW_STOCK_THRESHOLD", catalog.DefaultLowStockThreshold),

		LogLevel: get("LOG_LEVEL", "info"),
		Env:      get("APP_ENV", "production"),
	}
}

func splitCSV(csv string, lower bool) []string {
	var out []string
	for _, s := range strings.Split(csv, ",") {
		if t := strings.TrimSpace(s); t != "" {
			if lower {
				t = strings.ToLower(t)
			}
			out = append(out, t)
		}
	}
	return out
}
