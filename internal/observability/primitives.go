package observability

import (
	"sort"
	"strings"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"google.golang.org/protobuf/proto"
)

// ---- lightweight metric primitives, exported as client_model families ----

type family interface {
	family() *dto.MetricFamily
}

type CounterVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]*labeled
}

type labeled struct {
	labels []string
	val    float64
}

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{name: name, help: help, labelNames: labels, values: map[string]*labeled{}}
}

func (c *CounterVec) Inc(values ...string) { c.Add(1, values...) }

func (c *CounterVec) Add(v float64, values ...string) {
	if c == nil {
		return
	}
	key := strings.Join(values, "\xff")
	c.mu.Lock()
	row, ok := c.values[key]
	if !ok {
		row = &labeled{labels: append([]string(nil), values...)}
		c.values[key] = row
	}
	row.val += v
	c.mu.Unlock()
}

func (c *CounterVec) Value(values ...string) float64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if row, ok := c.values[strings.Join(values, "\xff")]; ok {
		return row.val
	}
	return 0
}

func (c *CounterVec) family() *dto.MetricFamily {
	c.mu.RLock()
	defer c.mu.RUnlock()
	mf := newFamily(c.name, c.help, dto.MetricType_COUNTER)
	for _, key := range sortedKeys(c.values) {
		row := c.values[key]
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label:   labelPairs(c.labelNames, row.labels),
			Counter: &dto.Counter{Value: proto.Float64(row.val)},
		})
	}
	return mf
}

type Counter struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

func (c *Counter) Inc() { c.Add(1) }

func (c *Counter) Add(v float64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.val += v
	c.mu.Unlock()
}

func (c *Counter) Value() float64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.val
}

func (c *Counter) family() *dto.MetricFamily {
	mf := newFamily(c.name, c.help, dto.MetricType_COUNTER)
	mf.Metric = []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(c.Value())}}}
	return mf
}

type GaugeVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]*labeled
}

func NewGaugeVec(name, help string, labels []string) *GaugeVec {
	return &GaugeVec{name: name, help: help, labelNames: labels, values: map[string]*labeled{}}
}

func (g *GaugeVec) Set(v float64, values ...string) {
	if g == nil {
		return
	}
	key := strings.Join(values, "\xff")
	g.mu.Lock()
	g.values[key] = &labeled{labels: append([]string(nil), values...), val: v}
	g.mu.Unlock()
}

func (g *GaugeVec) family() *dto.MetricFamily {
	g.mu.RLock()
	defer g.mu.RUnlock()
	mf := newFamily(g.name, g.help, dto.MetricType_GAUGE)
	for _, key := range sortedKeys(g.values) {
		row := g.values[key]
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label: labelPairs(g.labelNames, row.labels),
			Gauge: &dto.Gauge{Value: proto.Float64(row.val)},
		})
	}
	return mf
}

type HistogramVec struct {
	name       string
	help       string
	labelNames []string
	buckets    []float64
	mu         sync.Mutex
	series     map[string]*histSeries
}

type histSeries struct {
	labels []string
	counts []uint64
	count  uint64
	sum    float64
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	b := append([]float64(nil), buckets...)
	sort.Float64s(b)
	return &HistogramVec{name: name, help: help, labelNames: labels, buckets: b, series: map[string]*histSeries{}}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	key := strings.Join(values, "\xff")
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.series[key]
	if !ok {
		s = &histSeries{labels: append([]string(nil), values...), counts: make([]uint64, len(h.buckets))}
		h.series[key] = s
	}
	for i, ub := range h.buckets {
		if v <= ub {
			s.counts[i]++
		}
	}
	s.count++
	s.sum += v
}

func (h *HistogramVec) family() *dto.MetricFamily {
	h.mu.Lock()
	defer h.mu.Unlock()
	mf := newFamily(h.name, h.help, dto.MetricType_HISTOGRAM)
	for _, key := range sortedKeys(h.series) {
		s := h.series[key]
		hist := &dto.Histogram{
			SampleCount: proto.Uint64(s.count),
			SampleSum:   proto.Float64(s.sum),
		}
		for i, ub := range h.buckets {
			hist.Bucket = append(hist.Bucket, &dto.Bucket{
				UpperBound:      proto.Float64(ub),
				CumulativeCount: proto.Uint64(s.counts[i]),
			})
		}
		mf.Metric = append(mf.Metric, &dto.Metric{Label: labelPairs(h.labelNames, s.labels), Histogram: hist})
	}
	return mf
}

func newFamily(name, help string, typ dto.MetricType) *dto.MetricFamily {
	return &dto.MetricFamily{Name: proto.String(name), Help: proto.String(help), Type: typ.Enum()}
}

func labelPairs(names, values []string) []*dto.LabelPair {
	out := make([]*dto.LabelPair, 0, len(names))
	for i, n := range names {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		out = append(out, &dto.LabelPair{Name: proto.String(n), Value: proto.String(v)})
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
