package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"

	"github.com/tendant/simple-presign/pkg/simplepresign"
	"github.com/tendant/simple-presign/pkg/simplepresign/audit"
	"github.com/tendant/simple-presign/pkg/simplepresign/auth"
	"github.com/tendant/simple-presign/pkg/simplepresign/policy"
	"github.com/tendant/simple-presign/pkg/simplepresign/presigned"
	"github.com/tendant/simple-presign/pkg/simplepresign/ratelimit"
	memorystorage "github.com/tendant/simple-presign/pkg/simplepresign/storage/memory"
	s3storage "github.com/tendant/simple-presign/pkg/simplepresign/storage/s3"
)

// Config is the server configuration, read from the environment
type Config struct {
	Port        string `env:"PORT" env-default:"8000"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`
	Version     string `env:"APP_VERSION" env-default:"1.0.0"`

	Auth      AuthConfig
	Storage   StorageConfig
	S3        S3Config
	Presign   PresignConfig
	RateLimit RateLimitConfig
	Files     FileConfig
	Audit     AuditConfig
	HTTP      HTTPConfig
}

type AuthConfig struct {
	JWTSecretKey       string `env:"JWT_SECRET_KEY"`
	JWTExpirationHours int    `env:"JWT_EXPIRATION_HOURS" env-default:"24"`
}

type StorageConfig struct {
	Backend string `env:"STORAGE_BACKEND" env-default:"s3"` // "s3" or "memory"
	// Signing key and base URL for capabilities issued by the memory backend
	MemorySigningKey string `env:"MEMORY_SIGNING_KEY"`
	MemoryBaseURL    string `env:"MEMORY_BASE_URL" env-default:"http://localhost:8000/blobs"`
}

type S3Config struct {
	Region          string `env:"AWS_REGION" env-default:"us-east-1"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	BucketName      string `env:"S3_BUCKET_NAME"`
	Endpoint        string `env:"S3_ENDPOINT"`
	UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" env-default:"false"`
	EnableSSE       bool   `env:"S3_ENABLE_SSE" env-default:"false"`
	SSEAlgorithm    string `env:"S3_SSE_ALGORITHM" env-default:"AES256"`
	SSEKMSKeyID     string `env:"S3_SSE_KMS_KEY_ID"`
	CreateBucket    bool   `env:"S3_CREATE_BUCKET" env-default:"false"`
}

type PresignConfig struct {
	ExpirationSeconds int    `env:"PRESIGNED_URL_EXPIRATION" env-default:"600"`
	MaxFileSize       int64  `env:"MAX_FILE_SIZE" env-default:"52428800"`
	UploadPrefix      string `env:"UPLOAD_PREFIX" env-default:"uploads"`
}

type RateLimitConfig struct {
	Upload   int `env:"RATE_LIMIT_UPLOAD" env-default:"10"`
	Download int `env:"RATE_LIMIT_DOWNLOAD" env-default:"30"`
	List     int `env:"RATE_LIMIT_LIST" env-default:"5"`
	Delete   int `env:"RATE_LIMIT_DELETE" env-default:"5"`
	Default  int `env:"RATE_LIMIT_DEFAULT" env-default:"60"`

	// Shared windows across replicas; empty keeps windows in process
	RedisAddr     string `env:"RATE_LIMIT_REDIS_ADDR"`
	RedisPassword string `env:"RATE_LIMIT_REDIS_PASSWORD"`
	RedisDB       int    `env:"RATE_LIMIT_REDIS_DB" env-default:"0"`
}

type FileConfig struct {
	Allowed map[string]string `env:"ALLOWED_FILE_TYPES" env-default:".jpg:image/jpeg,.jpeg:image/jpeg,.png:image/png,.gif:image/gif,.pdf:application/pdf,.txt:text/plain,.doc:application/msword,.docx:application/vnd.openxmlformats-officedocument.wordprocessingml.document,.mp4:video/mp4,.mp3:audio/mpeg,.zip:application/zip"`
	Blocked []string          `env:"BLOCKED_FILE_TYPES" env-default:".exe,.bat,.cmd,.sh,.ps1,.msi,.dll,.scr,.com,.vbs,.jar"`
	// Reported by the index endpoint; scanning itself happens downstream
	VirusScanEnabled bool `env:"VIRUS_SCAN_ENABLED" env-default:"false"`
}

type AuditConfig struct {
	LogFile string `env:"AUDIT_LOG_FILE" env-default:"logs/audit.log"`
}

type HTTPConfig struct {
	CORSOrigins  []string `env:"CORS_ORIGINS" env-default:"*"`
	AllowedHosts []string `env:"ALLOWED_HOSTS"`
	// Largest accepted request body in bytes
	MaxBodyBytes int64 `env:"MAX_BODY_BYTES" env-default:"1048576"`
}

// Load reads an optional dotenv file, then the environment, and validates the result
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadAuth reads only the token settings, for tools that mint credentials
func LoadAuth(envFiles ...string) (*AuthConfig, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	var cfg AuthConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	if cfg.JWTSecretKey == "" {
		return nil, errors.New("JWT_SECRET_KEY is required")
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.HTTP.CORSOrigins = trimAll(c.HTTP.CORSOrigins)
	c.HTTP.AllowedHosts = trimAll(c.HTTP.AllowedHosts)
	c.Files.Blocked = trimAll(c.Files.Blocked)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.Auth.JWTSecretKey == "" {
		return errors.New("JWT_SECRET_KEY is required")
	}
	if c.Auth.JWTExpirationHours <= 0 {
		return errors.New("JWT_EXPIRATION_HOURS must be positive")
	}

	switch c.Storage.Backend {
	case "s3":
		if c.S3.BucketName == "" {
			return errors.New("S3_BUCKET_NAME is required when STORAGE_BACKEND is s3")
		}
		if c.S3.EnableSSE && c.S3.SSEAlgorithm != "AES256" && c.S3.SSEAlgorithm != "aws:kms" {
			return fmt.Errorf("unsupported S3_SSE_ALGORITHM %q (use AES256 or aws:kms)", c.S3.SSEAlgorithm)
		}
	case "memory":
		if c.IsProduction() {
			return errors.New("memory storage backend is not allowed in production")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q (use s3 or memory)", c.Storage.Backend)
	}

	if c.Presign.ExpirationSeconds <= 0 {
		return errors.New("PRESIGNED_URL_EXPIRATION must be positive")
	}
	if c.Presign.MaxFileSize < 0 {
		return errors.New("MAX_FILE_SIZE must not be negative")
	}

	for name, n := range map[string]int{
		"RATE_LIMIT_UPLOAD":   c.RateLimit.Upload,
		"RATE_LIMIT_DOWNLOAD": c.RateLimit.Download,
		"RATE_LIMIT_LIST":     c.RateLimit.List,
		"RATE_LIMIT_DELETE":   c.RateLimit.Delete,
		"RATE_LIMIT_DEFAULT":  c.RateLimit.Default,
	} {
		if n <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if len(c.Files.Allowed) == 0 {
		return errors.New("ALLOWED_FILE_TYPES must not be empty")
	}
	if c.IsProduction() && len(c.HTTP.AllowedHosts) == 0 {
		return errors.New("ALLOWED_HOSTS is required in production")
	}
	return nil
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// PresignExpiry is the capability validity window
func (c *Config) PresignExpiry() time.Duration {
	return time.Duration(c.Presign.ExpirationSeconds) * time.Second
}

// TokenTTL is the lifetime of issued credentials
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.JWTExpirationHours) * time.Hour
}

// Limits returns the per-operation admission ceilings
func (c *Config) Limits() ratelimit.Limits {
	return ratelimit.Limits{
		PerOperation: map[string]int{
			string(auth.PermUpload):   c.RateLimit.Upload,
			string(auth.PermDownload): c.RateLimit.Download,
			string(auth.PermList):     c.RateLimit.List,
			string(auth.PermDelete):   c.RateLimit.Delete,
		},
		Default: c.RateLimit.Default,
	}
}

// PolicyEngine builds the file policy
func (c *Config) PolicyEngine() *policy.Engine {
	return policy.New(c.Files.Allowed, c.Files.Blocked)
}

// BuildBlobStore creates the configured storage backend
func (c *Config) BuildBlobStore(ctx context.Context) (simplepresign.BlobStore, error) {
	switch c.Storage.Backend {
	case "memory":
		key := c.Storage.MemorySigningKey
		if key == "" {
			key = c.Auth.JWTSecretKey
		}
		signer := presigned.New(presigned.WithSecretKey(key), presigned.WithBaseURL(c.Storage.MemoryBaseURL))
		return memorystorage.New(signer), nil
	case "s3":
		backend, err := s3storage.New(ctx, s3storage.Config{
			Region:                 c.S3.Region,
			Bucket:                 c.S3.BucketName,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			EnableSSE:              c.S3.EnableSSE,
			SSEAlgorithm:           c.S3.SSEAlgorithm,
			SSEKMSKeyID:            c.S3.SSEKMSKeyID,
			CreateBucketIfNotExist: c.S3.CreateBucket,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 backend: %w", err)
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", c.Storage.Backend)
	}
}

// BuildRateStore creates the window store. The returned close function
// releases the Redis connection when one is used.
func (c *Config) BuildRateStore() (ratelimit.Store, func() error) {
	if c.RateLimit.RedisAddr == "" {
		return ratelimit.NewMemoryStore(), func() error { return nil }
	}
	client := redis.NewClient(&redis.Options{
		Addr:     c.RateLimit.RedisAddr,
		Password: c.RateLimit.RedisPassword,
		DB:       c.RateLimit.RedisDB,
	})
	return ratelimit.NewRedisStore(client), client.Close
}

// Components are the parts a server is assembled from
type Components struct {
	Service simplepresign.Service
	Store   simplepresign.BlobStore
	Close   func() error
}

// BuildService wires every component of the issuer, sending audit records to emitter
func (c *Config) BuildService(ctx context.Context, emitter audit.Emitter) (*Components, error) {
	store, err := c.BuildBlobStore(ctx)
	if err != nil {
		return nil, err
	}

	verifier, err := auth.NewVerifier(c.Auth.JWTSecretKey, auth.WithEmitter(emitter))
	if err != nil {
		return nil, err
	}

	rateStore, closeRate := c.BuildRateStore()
	controller := ratelimit.NewController(
		ratelimit.WithLimits(c.Limits()),
		ratelimit.WithStore(rateStore),
		ratelimit.WithEmitter(emitter),
	)

	svc, err := simplepresign.New(
		simplepresign.WithBlobStore(store),
		simplepresign.WithAuthenticator(verifier),
		simplepresign.WithAdmitter(controller),
		simplepresign.WithClassifier(c.PolicyEngine()),
		simplepresign.WithEmitter(emitter),
		simplepresign.WithPresignExpiry(c.PresignExpiry()),
		simplepresign.WithMaxFileSize(c.Presign.MaxFileSize),
		simplepresign.WithUploadPrefix(c.Presign.UploadPrefix),
	)
	if err != nil {
		_ = closeRate()
		return nil, err
	}
	return &Components{Service: svc, Store: store, Close: closeRate}, nil
}

func trimAll(in []string) []string {
	return lo.FilterMap(in, func(s string, _ int) (string, bool) {
		s = strings.TrimSpace(s)
		return s, s != ""
	})
}
