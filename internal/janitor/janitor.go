// Package janitor sweeps temporary files the service leaves behind: staged
// builds, uploads, fetched references, print hand-offs and cached conversions.
package janitor

import (
    "context"
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/rs/zerolog"

    "github.com/local/docsplit/internal/logger"
)

// Target is one directory to sweep. Only top-level entries whose name starts
// with one of Prefixes and ends with one of Suffixes are considered; an empty
// list matches everything.
type Target struct {
    Dir      string
    Prefixes []string
    Suffixes []string
    MaxAge   time.Duration
}

// Janitor removes stale entries from its targets.
type Janitor struct {
    targets []Target
    keep    func(path string) bool
    now     func() time.Time
    log     zerolog.Logger
}

// New returns a Janitor. keep, if set, protects paths still in use.
func New(keep func(path string) bool, targets ...Target) *Janitor {
    return &Janitor{targets: targets, keep: keep, now: time.Now, log: logger.Component("janitor")}
}

// Sweep removes every stale entry once and returns how many were removed.
func (j *Janitor) Sweep() int {
    removed := 0
    now := j.now()
    for _, t := range j.targets {
        if t.Dir == "" || t.MaxAge <= 0 { continue }
        entries, err := os.ReadDir(t.Dir)
        if err != nil {
            if !os.IsNotExist(err) {
                j.log.Warn().Err(err).Str("dir", t.Dir).Msg("cannot read directory")
            }
            continue
        }
        for _, e := range entries {
            if !matches(e.Name(), t.Prefixes, strings.HasPrefix) || !matches(e.Name(), t.Suffixes, strings.HasSuffix) { continue }
            info, err := e.Info()
            if err != nil || now.Sub(info.ModTime()) < t.MaxAge { continue }
            path := filepath.Join(t.Dir, e.Name())
            if j.keep != nil && j.keep(path) { continue }
            if err := os.RemoveAll(path); err != nil {
                j.log.Warn().Err(err).Str("path", path).Msg("remove failed")
                continue
            }
            removed++
        }
    }
    if removed > 0 {
        j.log.Info().Int("removed", removed).Msg("sweep")
    }
    return removed
}

// Run sweeps every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
    if interval <= 0 { interval = 10 * time.Minute }
    ticker := time.NewTicker(interval)
    defer ticker.Stop()
    j.Sweep()
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            j.Sweep()
        }
    }
}

func matches(name string, patterns []string, match func(s, pattern string) bool) bool {
    if len(patterns) == 0 { return true }
    for _, p := range patterns {
        if match(name, p) { return true }
    }
    return false
}
