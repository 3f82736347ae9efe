package logger

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "os"
    "path/filepath"
    "sync"
    "time"

    "github.com/axiomhq/axiom-go/axiom"
    "github.com/axiomhq/axiom-go/axiom/ingest"
    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"
    lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const defaultService = "docsplit"

// Options defines logger initialization parameters.
type Options struct {
    Service    string
    Level      string
    Pretty     bool
    File       string
    MaxSizeMB  int
    MaxBackups int
    MaxAgeDays int
    Compress   bool

    // Axiom
    SendToAxiom  bool
    AxiomAPIKey  string
    AxiomOrgID   string
    AxiomDataset string
    AxiomFlush   time.Duration
}

var (
    mu     sync.Mutex
    global zerolog.Logger
    file   *lumberjack.Logger
    ax     *axiomClient
)

// Init sets up the global logger: rotated file, console or JSON stdout, optional Axiom shipping.
func Init(opts Options) error {
    mu.Lock()
    defer mu.Unlock()

    if opts.Service == "" { opts.Service = defaultService }

    var writers []io.Writer

    if opts.File != "" {
        if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
            return fmt.Errorf("create logs dir: %w", err)
        }
        file = &lumberjack.Logger{
            Filename:   opts.File,
            MaxSize:    opts.MaxSizeMB,
            MaxBackups: opts.MaxBackups,
            MaxAge:     opts.MaxAgeDays,
            Compress:   opts.Compress,
        }
        writers = append(writers, file)
    }

    if opts.Pretty {
        writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
    } else {
        writers = append(writers, os.Stdout)
    }

    if opts.SendToAxiom && opts.AxiomAPIKey != "" {
        client, err := newAxiomClient(opts.AxiomAPIKey, opts.AxiomOrgID, opts.AxiomDataset, opts.AxiomFlush)
        if err != nil {
            // keep running without Axiom
            fmt.Fprintf(os.Stderr, "Axiom disabled: %v\n", err)
        } else {
            ax = client
            writers = append(writers, &axiomWriter{client: client})
        }
    }

    zerolog.TimeFieldFormat = time.RFC3339
    lvl, err := zerolog.ParseLevel(opts.Level)
    if err != nil || opts.Level == "" {
        lvl = zerolog.InfoLevel
    }

    global = zerolog.New(io.MultiWriter(writers...)).
        Level(lvl).
        With().Timestamp().Str("service", opts.Service).
        Logger()
    log.Logger = global
    return nil
}

// Close flushes Axiom and closes the rotated file.
func Close() {
    mu.Lock()
    defer mu.Unlock()
    if ax != nil {
        _ = ax.Close()
        ax = nil
    }
    if file != nil {
        _ = file.Close()
        file = nil
    }
}

// Get returns the global logger.
func Get() *zerolog.Logger { return &global }

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
    return log.Logger.With().Str("component", name).Logger()
}

// axiomWriter forwards zerolog JSON lines to Axiom (dropping debug level).
type axiomWriter struct{ client *axiomClient }

func (w *axiomWriter) Write(p []byte) (int, error) {
    var ev map[string]interface{}
    if err := json.Unmarshal(p, &ev); err != nil {
        ev = map[string]interface{}{"message": string(p), "level": "info"}
    }
    if lvl, ok := ev["level"].(string); ok && (lvl == "debug" || lvl == "trace") {
        return len(p), nil
    }
    if _, ok := ev[ingest.TimestampField]; !ok {
        ev[ingest.TimestampField] = time.Now()
    }
    w.client.Send(axiom.Event(ev))
    return len(p), nil
}

// axiomClient batches events and ingests them on size or interval.
type axiomClient struct {
    client  *axiom.Client
    dataset string
    ch      chan axiom.Event
    wg      sync.WaitGroup
    ctx     context.Context
    cancel  context.CancelFunc
}

func newAxiomClient(token, orgID, dataset string, flushEvery time.Duration) (*axiomClient, error) {
    if dataset == "" { dataset = "dev_docsplit" }
    opts := []axiom.Option{axiom.SetToken(token)}
    if orgID != "" { opts = append(opts, axiom.SetOrganizationID(orgID)) }
    c, err := axiom.NewClient(opts...)
    if err != nil { return nil, err }
    ctx, cancel := context.WithCancel(context.Background())
    ac := &axiomClient{
        client:  c,
        dataset: dataset,
        ch:      make(chan axiom.Event, 1000),
        ctx:     ctx,
        cancel:  cancel,
    }
    if flushEvery <= 0 { flushEvery = 10 * time.Second }
    ac.wg.Add(1)
    go ac.loop(flushEvery)
    return ac, nil
}

func (a *axiomClient) Send(ev axiom.Event) {
    select {
    case a.ch <- ev:
    default:
        // buffer full, drop
    }
}

func (a *axiomClient) loop(flushEvery time.Duration) {
    defer a.wg.Done()
    ticker := time.NewTicker(flushEvery)
    defer ticker.Stop()
    batch := make([]axiom.Event, 0, 200)
    flush := func() {
        if len(batch) == 0 { return }
        ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
        _, _ = a.client.IngestEvents(ctx, a.dataset, batch)
        cancel()
        batch = batch[:0]
    }
    for {
        select {
        case <-a.ctx.Done():
            // drain what is already queued
            for {
                select {
                case ev := <-a.ch:
                    batch = append(batch, ev)
                default:
                    flush()
                    return
                }
            }
        case <-ticker.C:
            flush()
        case ev := <-a.ch:
            batch = append(batch, ev)
            if len(batch) >= 200 { flush() }
        }
    }
}

func (a *axiomClient) Close() error {
    a.cancel()
    a.wg.Wait()
    return nil
}
