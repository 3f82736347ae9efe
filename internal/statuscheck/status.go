package statuscheck

import (
    "context"
    "errors"
    "os/exec"
    "time"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
    Ping(ctx context.Context) error
}

// BucketChecker checks that a bucket is reachable.
type BucketChecker interface {
    HeadBucket(ctx context.Context, bucket string) error
}

// Checker aggregates health checks for external dependencies.
type Checker struct {
    redis    RedisPinger
    s3       BucketChecker
    s3Bucket string
    office   string
    viewer   string
    lookPath func(string) (string, error)
}

// Options configures the Checker. A nil Redis or S3 means that dependency is
// not configured, which is reported but not counted as a failure.
type Options struct {
    Redis             RedisPinger
    S3                BucketChecker
    S3Bucket          string
    LibreOfficeBinary string
    ViewerBinary      string
}

// Status represents the readiness of a subsystem.
type Status struct {
    OK       bool   `json:"ok"`
    Disabled bool   `json:"disabled,omitempty"`
    Message  string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
    Redis       Status `json:"redis"`
    S3          Status `json:"s3"`
    LibreOffice Status `json:"libreoffice"`
    Viewer      Status `json:"viewer"`
}

// Healthy is false when a configured dependency is down. A missing
// LibreOffice only degrades deck and word support.
func (s Summary) Healthy() bool {
    for _, st := range []Status{s.Redis, s.S3} {
        if !st.OK && !st.Disabled {
            return false
        }
    }
    return true
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
    if opts.LibreOfficeBinary == "" { opts.LibreOfficeBinary = "libreoffice" }
    return &Checker{
        redis:    opts.Redis,
        s3:       opts.S3,
        s3Bucket: opts.S3Bucket,
        office:   opts.LibreOfficeBinary,
        viewer:   opts.ViewerBinary,
        lookPath: exec.LookPath,
    }
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
    return Summary{
        Redis:       c.checkRedis(ctx),
        S3:          c.checkS3(ctx),
        LibreOffice: c.checkBinary(c.office, "Running"),
        Viewer:      c.checkBinary(c.viewer, "Available"),
    }
}

func (c *Checker) checkRedis(ctx context.Context) Status {
    if c.redis == nil {
        return Status{Disabled: true, Message: "in-memory job store"}
    }
    ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := c.redis.Ping(ctx); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
    if c.s3 == nil {
        return Status{Disabled: true, Message: "Storage not configured"}
    }
    if c.s3Bucket == "" {
        return Status{OK: true, Message: "Client ready, no default bucket"}
    }
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    if err := c.s3.HeadBucket(ctx, c.s3Bucket); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkBinary(name, okMsg string) Status {
    if name == "" {
        return Status{Disabled: true, Message: "Not configured"}
    }
    if _, err := c.lookPath(name); err != nil {
        return Status{OK: false, Message: "Binary not found"}
    }
    return Status{OK: true, Message: okMsg}
}

func trimError(err error) string {
    if err == nil {
        return ""
    }
    var netErr interface{ Timeout() bool }
    if errors.As(err, &netErr) && netErr.Timeout() {
        return "timeout"
    }
    if errors.Is(err, context.DeadlineExceeded) {
        return "timeout"
    }
    msg := err.Error()
    if len(msg) > 120 {
        return msg[:120]
    }
    return msg
}
