package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/docsplit/internal/digest"
	"github.com/local/docsplit/internal/metrics"
)

// ErrHostUnavailable is returned when the LibreOffice binary cannot be found.
var ErrHostUnavailable = errors.New("automation host unavailable")

// LibreOffice turns slide decks and word documents into PDF with a headless
// LibreOffice. Conversions are bounded by a semaphore and cached by content digest.
type LibreOffice struct {
	binary    string
	timeout   time.Duration
	cacheDir  string
	semaphore chan struct{}
	breaker   *breaker

	mu       sync.Mutex
	inflight map[string]*call
}

type call struct {
	done chan struct{}
	res  Result
}

// Options configures the converter.
type Options struct {
	Binary        string
	MaxConcurrent int
	Timeout       time.Duration
	CacheDir      string

	// BreakerThreshold consecutive failures open the breaker for
	// BreakerCooldown, doubling per further failure up to five minutes.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Job represents a document conversion job
type Job struct {
	InputPath  string
	OutputPath string
}

// Result represents the result of a conversion operation
type Result struct {
	Success    bool
	OutputPath string
	Error      string
	Duration   time.Duration
	Cached     bool
}

// NewLibreOffice creates a new LibreOffice converter instance
func NewLibreOffice(opts Options) *LibreOffice {
	if opts.Binary == "" {
		opts.Binary = "libreoffice"
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 180 * time.Second
	}
	if opts.CacheDir == "" {
		opts.CacheDir = filepath.Join(os.TempDir(), "docsplit-converted")
	}
	return &LibreOffice{
		binary:    opts.Binary,
		timeout:   opts.Timeout,
		cacheDir:  opts.CacheDir,
		semaphore: make(chan struct{}, opts.MaxConcurrent),
		breaker:   newBreaker(opts.BreakerThreshold, opts.BreakerCooldown, 5*time.Minute),
		inflight:  map[string]*call{},
	}
}

// Binary returns the configured executable name.
func (l *LibreOffice) Binary() string { return l.binary }

// Available reports whether the binary is on PATH.
func (l *LibreOffice) Available() bool {
	_, err := exec.LookPath(l.binary)
	return err == nil
}

// Convert returns a PDF rendition of inputPath, reusing a cached conversion of
// identical content when one exists. Concurrent requests for the same content
// share one conversion.
func (l *LibreOffice) Convert(ctx context.Context, inputPath string) (Result, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(inputPath)), ".")
	if !IsSupported(ext) {
		return Result{}, fmt.Errorf("convert %s: unsupported extension %q", filepath.Base(inputPath), ext)
	}
	sum, err := digest.File(inputPath)
	if err != nil {
		return Result{}, fmt.Errorf("convert: %w", err)
	}
	target := filepath.Join(l.cacheDir, sum+".pdf")

	if cached(target) {
		metrics.Conversion(ext, "cached")
		log.Debug().Str("input", inputPath).Str("cached", target).Msg("conversion cache hit")
		return Result{Success: true, OutputPath: target, Cached: true}, nil
	}

	l.mu.Lock()
	if c, ok := l.inflight[sum]; ok {
		l.mu.Unlock()
		select {
		case <-c.done:
			return c.res, c.err()
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if cached(target) {
		l.mu.Unlock()
		metrics.Conversion(ext, "cached")
		return Result{Success: true, OutputPath: target, Cached: true}, nil
	}
	if wait, ok := l.breaker.allow(); !ok {
		l.mu.Unlock()
		metrics.Conversion(ext, "rejected")
		return Result{}, fmt.Errorf("%w: cooling down for %v after repeated failures", ErrHostUnavailable, wait.Round(time.Second))
	}
	c := &call{done: make(chan struct{})}
	l.inflight[sum] = c
	l.mu.Unlock()

	c.res = l.ConvertToPDF(ctx, Job{InputPath: inputPath, OutputPath: target})
	if c.res.Success {
		l.breaker.success()
	} else if ctx.Err() == nil {
		l.breaker.failure()
	}
	l.mu.Lock()
	delete(l.inflight, sum)
	l.mu.Unlock()
	close(c.done)

	if c.res.Success {
		metrics.Conversion(ext, "ok")
	} else {
		metrics.Conversion(ext, "failed")
	}
	return c.res, c.err()
}

// cached reports whether target holds a finished conversion. A hit bumps the
// modification time so the retention sweep only removes unused entries.
func cached(target string) bool {
	st, err := os.Stat(target)
	if err != nil || st.Size() == 0 {
		return false
	}
	now := time.Now()
	_ = os.Chtimes(target, now, now)
	return true
}

func (c *call) err() error {
	if c.res.Success {
		return nil
	}
	return errors.New(c.res.Error)
}

// ConvertToPDF converts a document to PDF format
func (l *LibreOffice) ConvertToPDF(ctx context.Context, job Job) Result {
	startTime := time.Now()

	if !l.Available() {
		return Result{Error: fmt.Sprintf("%v: %s not found in PATH", ErrHostUnavailable, l.binary)}
	}

	select {
	case l.semaphore <- struct{}{}:
	case <-ctx.Done():
		return Result{Error: fmt.Sprintf("waiting for conversion slot: %v", ctx.Err()), Duration: time.Since(startTime)}
	}
	defer func() { <-l.semaphore }()

	log.Info().Str("input", job.InputPath).Str("output", job.OutputPath).Msg("starting conversion")

	if err := validateInput(job.InputPath); err != nil {
		return Result{Error: fmt.Sprintf("input validation failed: %v", err), Duration: time.Since(startTime)}
	}

	// isolated profile so parallel conversions do not fight over the user installation lock
	profileDir := filepath.Join(os.TempDir(), fmt.Sprintf("libreoffice_profile_%s", uuid.New().String()))
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return Result{Error: fmt.Sprintf("failed to create profile directory: %v", err), Duration: time.Since(startTime)}
	}
	defer os.RemoveAll(profileDir)

	// work in a private dir and move into place so a half-written PDF never shows up in the cache
	workDir, err := os.MkdirTemp(filepath.Dir(job.OutputPath), ".convert-")
	if err != nil {
		if mkErr := os.MkdirAll(filepath.Dir(job.OutputPath), 0o755); mkErr != nil {
			return Result{Error: fmt.Sprintf("failed to create output directory: %v", mkErr), Duration: time.Since(startTime)}
		}
		if workDir, err = os.MkdirTemp(filepath.Dir(job.OutputPath), ".convert-"); err != nil {
			return Result{Error: fmt.Sprintf("failed to create work directory: %v", err), Duration: time.Since(startTime)}
		}
	}
	defer os.RemoveAll(workDir)

	runCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx,
		l.binary,
		fmt.Sprintf("-env:UserInstallation=file://%s", profileDir),
		"--headless",
		"--convert-to", "pdf",
		"--outdir", workDir,
		job.InputPath,
	)
	cmd.WaitDelay = 2 * time.Second
	log.Debug().Str("cmd", strings.Join(cmd.Args, " ")).Msg("LibreOffice command")

	if out, err := cmd.CombinedOutput(); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return Result{Error: fmt.Sprintf("conversion timeout after %v", l.timeout), Duration: time.Since(startTime)}
		}
		msg := strings.TrimSpace(string(out))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return Result{Error: fmt.Sprintf("conversion failed: %v: %s", err, msg), Duration: time.Since(startTime)}
	}

	produced := expectedOutputPath(job.InputPath, workDir)
	if st, err := os.Stat(produced); err != nil || st.Size() == 0 {
		return Result{Error: fmt.Sprintf("output file not created: %s", filepath.Base(produced)), Duration: time.Since(startTime)}
	}
	if err := os.Rename(produced, job.OutputPath); err != nil {
		return Result{Error: fmt.Sprintf("failed to move output: %v", err), Duration: time.Since(startTime)}
	}

	log.Info().Str("output", job.OutputPath).Dur("duration", time.Since(startTime)).Msg("conversion successful")
	return Result{Success: true, OutputPath: job.OutputPath, Duration: time.Since(startTime)}
}

func validateInput(filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("file not found: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("path is a directory, not a file")
	}
	if info.Size() == 0 {
		return fmt.Errorf("file is empty")
	}
	return nil
}

// expectedOutputPath is where LibreOffice writes the PDF for inputPath.
func expectedOutputPath(inputPath, outputDir string) string {
	baseName := filepath.Base(inputPath)
	nameWithoutExt := strings.TrimSuffix(baseName, filepath.Ext(baseName))
	return filepath.Join(outputDir, nameWithoutExt+".pdf")
}

// SupportedExtensions lists the formats the converter accepts.
func SupportedExtensions() []string {
	return []string{
		"doc", "docx", "rtf", "odt", // word processing
		"ppt", "pptx", "odp", // presentations
	}
}

// IsSupported checks if a file extension is supported for conversion
func IsSupported(extension string) bool {
	ext := strings.ToLower(strings.TrimPrefix(extension, "."))
	for _, s := range SupportedExtensions() {
		if ext == s {
			return true
		}
	}
	return false
}
