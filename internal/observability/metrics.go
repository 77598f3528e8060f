package observability

import (
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Metrics holds the pipeline counters. All methods are safe on a nil
// receiver so components can run without metrics wired.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec

	eventsEnqueued  *CounterVec
	eventsProcessed *CounterVec
	drainRuns       *Counter
	drainLatency    *HistogramVec
	eventsCleaned   *Counter
	validationFail  *CounterVec
	outboxPublish   *CounterVec
	queueDepth      *GaugeVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Init builds the process-wide metrics set once.
func Init() *Metrics {
	initOnce.Do(func() { instance = New() })
	return instance
}

func Current() *Metrics { return instance }

func New() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("corrowatch_api_requests_total", "HTTP requests by method, route and status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec("corrowatch_api_request_duration_seconds", "HTTP request latency.", []string{"method", "route"},
			[]float64{0.005, 0.025, 0.1, 0.25, 1, 2.5, 10}),
		eventsEnqueued:  NewCounterVec("corrowatch_events_enqueued_total", "Ingestion events offered to the central queue.", []string{"source_site", "result"}),
		eventsProcessed: NewCounterVec("corrowatch_events_drained_total", "Drained events by outcome.", []string{"outcome"}),
		drainRuns:       NewCounter("corrowatch_drain_runs_total", "Completed drain passes."),
		drainLatency: NewHistogramVec("corrowatch_drain_duration_seconds", "Duration of one drain pass.", []string{"result"},
			[]float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30}),
		eventsCleaned:  NewCounter("corrowatch_events_cleaned_total", "Processed events deleted by cleanup."),
		validationFail: NewCounterVec("corrowatch_validation_rejections_total", "Measurement batches rejected at submission.", []string{"kind"}),
		outboxPublish:  NewCounterVec("corrowatch_outbox_publish_total", "Site outbox publications by result.", []string{"site", "result"}),
		queueDepth:     NewGaugeVec("corrowatch_queue_events", "Central queue size by state.", []string{"state"}),
	}
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.Inc(method, route, strconv.Itoa(status))
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

// IncEnqueued records an enqueue attempt; result is "created" or "duplicate".
func (m *Metrics) IncEnqueued(sourceSite, result string) {
	if m == nil {
		return
	}
	m.eventsEnqueued.Inc(sourceSite, result)
}

func (m *Metrics) ObserveDrain(processed, stale, skipped int, dur time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.drainRuns.Inc()
	m.drainLatency.Observe(dur.Seconds(), result)
	m.eventsProcessed.Add(float64(processed), "applied")
	m.eventsProcessed.Add(float64(stale), "stale")
	m.eventsProcessed.Add(float64(skipped), "skipped")
}

func (m *Metrics) AddCleaned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsCleaned.Add(float64(n))
}

func (m *Metrics) IncValidationRejected(kind string) {
	if m == nil {
		return
	}
	m.validationFail.Inc(kind)
}

func (m *Metrics) IncOutboxPublish(site, result string) {
	if m == nil {
		return
	}
	m.outboxPublish.Inc(site, result)
}

func (m *Metrics) SetQueueDepth(pending, failed, processed int64) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(pending), "pending")
	m.queueDepth.Set(float64(failed), "failed")
	m.queueDepth.Set(float64(processed), "processed")
}

func (m *Metrics) DrainedTotal(outcome string) float64 {
	if m == nil {
		return 0
	}
	return m.eventsProcessed.Value(outcome)
}

func (m *Metrics) EnqueuedTotal(sourceSite, result string) float64 {
	if m == nil {
		return 0
	}
	return m.eventsEnqueued.Value(sourceSite, result)
}

func (m *Metrics) Gather() []*dto.MetricFamily {
	if m == nil {
		return nil
	}
	fams := []family{
		m.apiRequests, m.apiLatency,
		m.eventsEnqueued, m.eventsProcessed, m.drainRuns, m.drainLatency,
		m.eventsCleaned, m.validationFail, m.outboxPublish, m.queueDepth,
	}
	out := make([]*dto.MetricFamily, 0, len(fams))
	for _, f := range fams {
		mf := f.family()
		if len(mf.Metric) == 0 {
			continue
		}
		out = append(out, mf)
	}
	return out
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))
	_ = m.writeFormat(w, format)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	return m.writeFormat(w, expfmt.NewFormat(expfmt.TypeTextPlain))
}

func (m *Metrics) writeFormat(w io.Writer, format expfmt.Format) error {
	if m == nil {
		return nil
	}
	enc := expfmt.NewEncoder(w, format)
	for _, mf := range m.Gather() {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
