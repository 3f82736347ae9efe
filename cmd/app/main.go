package main

import (
    "context"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "path/filepath"
    "syscall"

    "github.com/rs/zerolog/log"

    "github.com/local/docsplit/internal/api"
    "github.com/local/docsplit/internal/compose"
    cfgpkg "github.com/local/docsplit/internal/config"
    "github.com/local/docsplit/internal/converter"
    "github.com/local/docsplit/internal/engine"
    "github.com/local/docsplit/internal/fetch"
    "github.com/local/docsplit/internal/filetype"
    "github.com/local/docsplit/internal/janitor"
    "github.com/local/docsplit/internal/limiter"
    logpkg "github.com/local/docsplit/internal/logger"
    "github.com/local/docsplit/internal/metrics"
    "github.com/local/docsplit/internal/pagesource"
    "github.com/local/docsplit/internal/render"
    "github.com/local/docsplit/internal/session"
    "github.com/local/docsplit/internal/sink"
    "github.com/local/docsplit/internal/statuscheck"
    "github.com/local/docsplit/internal/storage"
    "github.com/local/docsplit/internal/store"
    "github.com/local/docsplit/internal/thumbnail"
)

func main() {
    cfg, err := cfgpkg.Load()
    if err != nil {
        fmt.Fprintf(os.Stderr, "config: %v\n", err)
        os.Exit(1)
    }

    // Init logging
    _ = logpkg.Init(logpkg.Options{
        Level: cfg.Logging.Level,
        Pretty: cfg.Logging.Pretty,
        File: cfg.Logging.File,
        MaxSizeMB: cfg.Logging.MaxSizeMB,
        MaxBackups: cfg.Logging.MaxBackups,
        MaxAgeDays: cfg.Logging.MaxAgeDays,
        Compress: cfg.Logging.Compress,
        SendToAxiom: cfg.Axiom.Send && cfg.Axiom.APIKey != "",
        AxiomAPIKey: cfg.Axiom.APIKey,
        AxiomOrgID: cfg.Axiom.OrgID,
        AxiomDataset: cfg.Axiom.Dataset,
        AxiomFlush: cfg.Axiom.FlushInterval,
    })
    defer logpkg.Close()

    metrics.Init()

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()

    // Job status store: Redis when configured, memory otherwise
    var jobs store.Statuses
    var redisPinger statuscheck.RedisPinger
    if cfg.Redis.URL != "" {
        rs, err := store.NewRedisStatus(cfg.Redis.URL, cfg.Redis.JobTTL)
        if err != nil { log.Fatal().Err(err).Msg("failed to init redis status store") }
        jobs, redisPinger = rs, rs
    } else {
        jobs = store.NewMemoryStatus(cfg.Redis.JobTTL)
        log.Info().Msg("REDIS_URL not set; job status kept in memory")
    }
    defer jobs.Close()

    // S3 for remote refs and exports
    fetcher := &fetch.Fetcher{Dir: cfg.Server.UploadDir}
    var uploader sink.Uploader
    var bucketChecker statuscheck.BucketChecker
    if cfg.Storage.Region != "" || cfg.Storage.Endpoint != "" {
        s3c, err := storage.NewS3Client(ctx, storage.Options{
            Region: cfg.Storage.Region,
            Endpoint: cfg.Storage.Endpoint,
            AccessKeyID: cfg.Storage.AccessKeyID,
            SecretAccessKey: cfg.Storage.SecretAccessKey,
        })
        if err != nil { log.Fatal().Err(err).Msg("failed to init s3 client") }
        fetcher.S3, uploader, bucketChecker = s3c, s3c, s3c
    }

    for _, dir := range []string{cfg.Server.UploadDir, cfg.Build.StagingDir, cfg.Print.Dir, cfg.Converter.CacheDir} {
        if err := os.MkdirAll(dir, 0o755); err != nil {
            log.Fatal().Err(err).Str("dir", dir).Msg("cannot create working directory")
        }
    }

    office := converter.NewLibreOffice(converter.Options{
        Binary: cfg.Converter.Binary,
        MaxConcurrent: cfg.Converter.MaxConcurrent,
        Timeout: cfg.Converter.Timeout,
        CacheDir: cfg.Converter.CacheDir,
    })
    if !office.Available() {
        log.Warn().Str("binary", office.Binary()).Msg("LibreOffice not found; slide decks and word documents cannot be opened")
    }

    fit, err := compose.ParseFit(cfg.Build.Fit)
    if err != nil { log.Fatal().Err(err).Msg("invalid fit") }

    sess := session.New(session.Options{
        Opener: &pagesource.Opener{
            Detector: filetype.New(),
            Converter: office,
            Raster: render.FitzOpener{},
            SlideExport: cfg.Build.SlideExport,
            ExportScale: cfg.Build.PrintScale,
        },
        Fetcher: fetcher,
        Engine: engine.New(engine.Options{
            StagingDir: cfg.Build.StagingDir,
            PrintScale: cfg.Build.PrintScale,
            Fit: fit,
        }),
        Jobs: jobs,
        Slots: limiter.New(limiter.Options{MaxInflight: 1}),
        Thumbnails: thumbnail.Options{
            Scale: cfg.Thumbnails.Scale,
            Workers: cfg.Thumbnails.Workers,
            PageTimeout: cfg.Thumbnails.PageTimeout,
            MaxWidth: cfg.Thumbnails.MaxWidth,
            MaxHeight: cfg.Thumbnails.MaxHeight,
            Quality: cfg.Thumbnails.JPEGQuality,
            Grayscale: cfg.Thumbnails.Grayscale,
        },
        WordWidth: cfg.Thumbnails.WordWidth,
        WordHeight: cfg.Thumbnails.WordHeight,
        Uploader: uploader,
        PrintDir: cfg.Print.Dir,
        PrintViewer: cfg.Print.Viewer,
    })

    checker := statuscheck.New(statuscheck.Options{
        Redis: redisPinger,
        S3: bucketChecker,
        S3Bucket: cfg.Storage.DefaultBucket,
        LibreOfficeBinary: cfg.Converter.Binary,
        ViewerBinary: cfg.Print.Viewer,
    })

    // Temp file janitor
    jan := janitor.New(sess.Holds,
        janitor.Target{Dir: cfg.Server.UploadDir, Prefixes: []string{"upload-", "fetch-"}, MaxAge: cfg.Cleanup.MaxAge},
        janitor.Target{Dir: cfg.Build.StagingDir, Prefixes: []string{"build-"}, MaxAge: cfg.Cleanup.MaxAge},
        janitor.Target{Dir: cfg.Converter.CacheDir, Prefixes: []string{".convert-"}, MaxAge: cfg.Cleanup.MaxAge},
        janitor.Target{Dir: cfg.Converter.CacheDir, Suffixes: []string{".pdf"}, MaxAge: cfg.Converter.CacheRetention},
        janitor.Target{Dir: cfg.Print.Dir, Prefixes: []string{"print-"}, MaxAge: cfg.Print.Retention},
    )
    go jan.Run(ctx, cfg.Cleanup.Interval)

    router := api.New(api.Options{
        Session: sess,
        Health: checker,
        UploadDir: cfg.Server.UploadDir,
        MaxUploadMB: cfg.Server.MaxUploadMB,
    }).Router()

    srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: router}
    go func(){
        log.Info().Msgf("HTTP server listening on :%s", cfg.Server.Port)
        if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            log.Fatal().Err(err).Msg("http server error")
        }
    }()

    // Graceful shutdown
    <-ctx.Done()
    shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
    defer cancel()
    _ = srv.Shutdown(shutdownCtx)
    if err := sess.Shutdown(shutdownCtx); err != nil {
        log.Warn().Err(err).Msg("builds still running at shutdown")
    }
    log.Info().Str("staging", filepath.Clean(cfg.Build.StagingDir)).Msg("shutdown complete")
}
