package metrics

import (
    "net/http"
    "strconv"
    "sync"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    documentsOpened = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "docsplit",
            Name:      "documents_opened_total",
            Help:      "Documents opened by source kind and result",
        },
        []string{"kind", "result"},
    )

    thumbnails = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "docsplit",
            Name:      "thumbnails_total",
            Help:      "Thumbnail render attempts by result (rendered, failed)",
        },
        []string{"result"},
    )

    thumbnailLatency = prometheus.NewHistogram(
        prometheus.HistogramOpts{
            Namespace: "docsplit",
            Name:      "thumbnail_render_duration_seconds",
            Help:      "Duration of a single page preview render",
            Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
        },
    )

    thumbnailRuns = prometheus.NewGauge(
        prometheus.GaugeOpts{
            Namespace: "docsplit",
            Name:      "thumbnail_runs_active",
            Help:      "Thumbnail pipeline runs currently in flight",
        },
    )

    builds = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "docsplit",
            Name:      "builds_total",
            Help:      "Export and print builds by mode and result",
        },
        []string{"mode", "result"},
    )

    buildLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "docsplit",
            Name:      "build_duration_seconds",
            Help:      "Duration of builds by mode",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"mode"},
    )

    buildsActive = prometheus.NewGauge(
        prometheus.GaugeOpts{
            Namespace: "docsplit",
            Name:      "builds_active",
            Help:      "Builds currently in flight",
        },
    )

    conversions = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "docsplit",
            Name:      "conversions_total",
            Help:      "Automation host conversions by extension and result (ok, failed, cached, rejected)",
        },
        []string{"ext", "result"},
    )

    httpRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "docsplit",
            Name:      "http_requests_total",
            Help:      "HTTP requests by method, route pattern and status code",
        },
        []string{"method", "route", "code"},
    )
)

var once sync.Once

// Init registers collectors. Safe to call more than once.
func Init() {
    once.Do(func() {
        prometheus.MustRegister(documentsOpened, thumbnails, thumbnailLatency, thumbnailRuns,
            builds, buildLatency, buildsActive, conversions, httpRequests)
    })
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func DocumentOpened(kind, result string) { documentsOpened.WithLabelValues(kind, result).Inc() }

func ThumbnailRendered(dur time.Duration) {
    thumbnails.WithLabelValues("rendered").Inc()
    thumbnailLatency.Observe(dur.Seconds())
}

func ThumbnailFailed() { thumbnails.WithLabelValues("failed").Inc() }

func ThumbnailRunStarted()  { thumbnailRuns.Inc() }
func ThumbnailRunFinished() { thumbnailRuns.Dec() }

// BuildStarted marks a build in flight and returns the func that records its outcome.
func BuildStarted(mode string) func(result string) {
    buildsActive.Inc()
    start := time.Now()
    return func(result string) {
        buildsActive.Dec()
        builds.WithLabelValues(mode, result).Inc()
        buildLatency.WithLabelValues(mode).Observe(time.Since(start).Seconds())
    }
}

func Conversion(ext, result string) { conversions.WithLabelValues(ext, result).Inc() }

func HTTPRequest(method, route string, code int) {
    httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}
