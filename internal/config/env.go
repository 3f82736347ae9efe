package config

import (
    "fmt"
    "os"
    "path/filepath"
    "strconv"
    "strings"
    "time"

    "github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level      string `yaml:"level"`
    Pretty     bool   `yaml:"pretty"`
    File       string `yaml:"file"`
    MaxSizeMB  int    `yaml:"max_size_mb"`
    MaxBackups int    `yaml:"max_backups"`
    MaxAgeDays int    `yaml:"max_age_days"`
    Compress   bool   `yaml:"compress"`
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
    Send          bool          `yaml:"send"`
    APIKey        string        `yaml:"-"`
    OrgID         string        `yaml:"org_id"`
    Dataset       string        `yaml:"dataset"`
    FlushInterval time.Duration `yaml:"flush_interval"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
    Port            string        `yaml:"port"`
    UploadDir       string        `yaml:"upload_dir"`
    MaxUploadMB     int           `yaml:"max_upload_mb"`
    ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ThumbnailConfig controls the preview pipeline.
type ThumbnailConfig struct {
    Scale       float64       `yaml:"scale"`
    Workers     int           `yaml:"workers"`
    PageTimeout time.Duration `yaml:"page_timeout"`
    MaxWidth    int           `yaml:"max_width"`
    MaxHeight   int           `yaml:"max_height"`
    WordWidth   int           `yaml:"word_width"`
    WordHeight  int           `yaml:"word_height"`
    JPEGQuality int           `yaml:"jpeg_quality"`
    Grayscale   bool          `yaml:"grayscale"`
}

// BuildConfig controls export and print builds.
type BuildConfig struct {
    StagingDir  string  `yaml:"staging_dir"`
    PrintScale  float64 `yaml:"print_scale"`
    Fit         string  `yaml:"fit"` // "stretch"|"contain"
    SlideExport bool    `yaml:"slide_export"`
}

// ConverterConfig configures the LibreOffice automation host.
type ConverterConfig struct {
    Binary         string        `yaml:"binary"`
    MaxConcurrent  int           `yaml:"max_concurrent"`
    Timeout        time.Duration `yaml:"timeout"`
    CacheDir       string        `yaml:"cache_dir"`
    // CacheRetention is how long an unused cached conversion is kept.
    CacheRetention time.Duration `yaml:"cache_retention"`
}

// PrintConfig configures the print hand-off.
type PrintConfig struct {
    Dir       string        `yaml:"dir"`
    Viewer    string        `yaml:"viewer"`
    Retention time.Duration `yaml:"retention"`
}

// StorageConfig configures S3 access for remote refs and uploads.
type StorageConfig struct {
    Region          string `yaml:"region"`
    Endpoint        string `yaml:"endpoint"`
    AccessKeyID     string `yaml:"-"`
    SecretAccessKey string `yaml:"-"`
    DefaultBucket   string `yaml:"default_bucket"`
}

// RedisConfig configures the job status store. Empty URL selects the in-memory store.
type RedisConfig struct {
    URL    string        `yaml:"url"`
    JobTTL time.Duration `yaml:"job_ttl"`
}

// CleanupConfig configures the temp-file janitor.
type CleanupConfig struct {
    Interval time.Duration `yaml:"interval"`
    MaxAge   time.Duration `yaml:"max_age"`
}

// Config is the top-level configuration.
type Config struct {
    Logging    LoggingConfig   `yaml:"logging"`
    Axiom      AxiomConfig     `yaml:"axiom"`
    Server     ServerConfig    `yaml:"server"`
    Thumbnails ThumbnailConfig `yaml:"thumbnails"`
    Build      BuildConfig     `yaml:"build"`
    Converter  ConverterConfig `yaml:"converter"`
    Print      PrintConfig     `yaml:"print"`
    Storage    StorageConfig   `yaml:"storage"`
    Redis      RedisConfig     `yaml:"redis"`
    Cleanup    CleanupConfig   `yaml:"cleanup"`
}

// Load reads an optional .env file, builds the config from the environment
// and applies the YAML overlay named by DOCSPLIT_CONFIG, if any.
func Load() (Config, error) {
    // .env is optional; a missing file is not an error
    _ = godotenv.Load()

    cfg := FromEnv()
    if p := os.Getenv("DOCSPLIT_CONFIG"); p != "" {
        if err := ApplyFile(p, &cfg); err != nil {
            return cfg, err
        }
    }
    return cfg, cfg.Validate()
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
    cfg := Config{}

    cfg.Logging = LoggingConfig{
        Level:      getEnv("LOG_LEVEL", "info"),
        Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
        File:       getEnv("LOG_FILE", "logs/docsplit.log"),
        MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
        MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
        MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
        Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
    }

    baseDataset := getEnv("AXIOM_DATASET", "dev")
    cfg.Axiom = AxiomConfig{
        Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
        APIKey:        getEnv("AXIOM_API_KEY", ""),
        OrgID:         getEnv("AXIOM_ORG_ID", ""),
        Dataset:       baseDataset + "_docsplit",
        FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
    }

    tmp := os.TempDir()
    cfg.Server = ServerConfig{
        Port:            getEnv("PORT", "8080"),
        UploadDir:       getEnv("UPLOAD_DIR", filepath.Join("uploads", "documents")),
        MaxUploadMB:     parseInt(getEnv("MAX_UPLOAD_MB", "200"), 200),
        ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
    }

    cfg.Thumbnails = ThumbnailConfig{
        Scale:       parseFloat(getEnv("THUMB_SCALE", "0.5"), 0.5),
        Workers:     parseInt(getEnv("THUMB_WORKERS", "4"), 4),
        PageTimeout: parseDuration(getEnv("THUMB_PAGE_TIMEOUT", "30s"), 30*time.Second),
        MaxWidth:    parseInt(getEnv("THUMB_MAX_WIDTH", "200"), 200),
        MaxHeight:   parseInt(getEnv("THUMB_MAX_HEIGHT", "150"), 150),
        WordWidth:   parseInt(getEnv("THUMB_WORD_WIDTH", "280"), 280),
        WordHeight:  parseInt(getEnv("THUMB_WORD_HEIGHT", "320"), 320),
        JPEGQuality: parseInt(getEnv("THUMB_JPEG_QUALITY", "80"), 80),
        Grayscale:   parseBool(getEnv("THUMB_GRAYSCALE", "false")),
    }

    cfg.Build = BuildConfig{
        StagingDir:  getEnv("STAGING_DIR", filepath.Join(tmp, "docsplit-staging")),
        PrintScale:  parseFloat(getEnv("PRINT_SCALE", "2.0"), 2.0),
        Fit:         strings.ToLower(getEnv("NUP_FIT", "stretch")),
        SlideExport: parseBool(getEnv("SLIDE_EXPORT", "true")),
    }

    cfg.Converter = ConverterConfig{
        Binary:         getEnv("LIBREOFFICE_BIN", "libreoffice"),
        MaxConcurrent:  parseInt(getEnv("CONVERTER_MAX_CONCURRENT", "2"), 2),
        Timeout:        parseDuration(getEnv("CONVERTER_TIMEOUT", "120s"), 120*time.Second),
        CacheDir:       getEnv("CONVERTER_CACHE_DIR", filepath.Join(tmp, "docsplit-converted")),
        CacheRetention: parseDuration(getEnv("CONVERTER_CACHE_RETENTION", "168h"), 168*time.Hour),
    }

    cfg.Print = PrintConfig{
        Dir:       getEnv("PRINT_DIR", filepath.Join(tmp, "docsplit-print")),
        Viewer:    getEnv("PRINT_VIEWER", "xdg-open"),
        Retention: parseDuration(getEnv("PRINT_RETENTION", "1h"), time.Hour),
    }

    cfg.Storage = StorageConfig{
        Region:          getEnv("AWS_REGION", ""),
        Endpoint:        getEnv("S3_ENDPOINT", ""),
        AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
        SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
        DefaultBucket:   getEnv("S3_BUCKET", ""),
    }

    cfg.Redis = RedisConfig{
        URL:    getEnv("REDIS_URL", ""),
        JobTTL: parseDuration(getEnv("JOB_TTL", "24h"), 24*time.Hour),
    }

    cfg.Cleanup = CleanupConfig{
        Interval: parseDuration(getEnv("CLEANUP_INTERVAL", "10m"), 10*time.Minute),
        MaxAge:   parseDuration(getEnv("CLEANUP_MAX_AGE", "6h"), 6*time.Hour),
    }

    return cfg
}

// Validate checks values that would otherwise fail deep inside a build.
func (c Config) Validate() error {
    if c.Thumbnails.Scale <= 0 { return fmt.Errorf("thumbnails.scale must be > 0") }
    if c.Thumbnails.Workers <= 0 { return fmt.Errorf("thumbnails.workers must be > 0") }
    if c.Build.PrintScale <= 0 { return fmt.Errorf("build.print_scale must be > 0") }
    switch c.Build.Fit {
    case "stretch", "contain":
    default:
        return fmt.Errorf("build.fit: unsupported value %q (use stretch or contain)", c.Build.Fit)
    }
    if c.Converter.MaxConcurrent <= 0 { return fmt.Errorf("converter.max_concurrent must be > 0") }
    if c.Server.MaxUploadMB <= 0 { return fmt.Errorf("server.max_upload_mb must be > 0") }
    return nil
}

// MaxUploadBytes returns the upload limit in bytes.
func (c Config) MaxUploadBytes() int64 { return int64(c.Server.MaxUploadMB) << 20 }

// Helpers
func getEnv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func parseInt(s string, def int) int {
    if s == "" { return def }
    if n, err := strconv.Atoi(s); err == nil { return n }
    return def
}

func parseFloat(s string, def float64) float64 {
    if s == "" { return def }
    if f, err := strconv.ParseFloat(s, 64); err == nil { return f }
    return def
}

func parseBool(s string) bool {
    v := strings.ToLower(strings.TrimSpace(s))
    return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
    if s == "" { return def }
    if d, err := time.ParseDuration(s); err == nil { return d }
    return def
}

func devDefaultPretty() string {
    env := strings.ToLower(os.Getenv("ENVIRONMENT"))
    if env == "dev" || env == "development" || env == "local" { return "true" }
    return "false"
}
