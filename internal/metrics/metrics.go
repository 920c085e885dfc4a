// Package metrics exposes scheduler activity as Prometheus metrics.
//
// The collectors live in a private registry fed from event bus task events;
// the management server serves it at /actuator/prometheus and summarizes it
// at /actuator/metrics.
package metrics

import (
	"context"
	"net/http"
	"runtime"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"taskbeat/internal/eventbus"
	"taskbeat/internal/task"
)

const namespace = "taskbeat"

type Metrics struct {
	reg *prometheus.Registry

	executions  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	running     *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
}

// New builds the registry with Go runtime, process and build info collectors.
// busDropped, when non-nil, is exported as the event bus drop counter.
func New(version string, busDropped func() float64) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_executions_total",
			Help:      "Completed task executions by status.",
		}, []string{"task", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task execution duration.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30, 120},
		}, []string{"task"}),
		running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_running",
			Help:      "1 while a task execution is in progress.",
		}, []string{"task"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_last_success_timestamp_seconds",
			Help:      "Start time of the last successful execution.",
		}, []string{"task"}),
	}
	info := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build information.",
	}, []string{"version", "goversion"})
	info.WithLabelValues(version, runtime.Version()).Set(1)

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.executions, m.duration, m.running, m.lastSuccess, info,
	)
	if busDropped != nil {
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eventbus_dropped_total",
			Help:      "Events dropped because a subscriber was full.",
		}, busDropped))
	}
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Observe updates collectors from one task event.
func (m *Metrics) Observe(ev eventbus.Event) {
	ex, ok := ev.Data.(task.Execution)
	if !ok {
		return
	}
	switch ev.Type {
	case eventbus.TaskStarted:
		m.running.WithLabelValues(ex.Task).Set(1)
	case eventbus.TaskFinished, eventbus.TaskFailed:
		m.running.WithLabelValues(ex.Task).Set(0)
		m.executions.WithLabelValues(ex.Task, string(ex.Status)).Inc()
		m.duration.WithLabelValues(ex.Task).Observe(ex.Duration.Seconds())
		if ex.Status == task.StatusSuccess {
			m.lastSuccess.WithLabelValues(ex.Task).Set(float64(ex.Started.UnixNano()) / 1e9)
		}
	}
}

// Run feeds task events from bus into the collectors until ctx is done.
func (m *Metrics) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(256, eventbus.TaskStarted, eventbus.TaskFinished, eventbus.TaskFailed)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			m.Observe(ev)
		}
	}
}

// Names lists the registered metric family names, sorted.
func (m *Metrics) Names() ([]string, error) {
	mfs, err := m.reg.Gather()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(mfs))
	for _, mf := range mfs {
		out = append(out, mf.GetName())
	}
	sort.Strings(out)
	return out, nil
}

// Measurement is one statistic of a metric family.
type Measurement struct {
	Statistic string  `json:"statistic"`
	Value     float64 `json:"value"`
}

// Tag lists the values seen for one label.
type Tag struct {
	Tag    string   `json:"tag"`
	Values []string `json:"values"`
}

type Family struct {
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	Measurements  []Measurement `json:"measurements"`
	AvailableTags []Tag         `json:"availableTags"`
}

// Family aggregates all series of one metric family. ok is false when the
// name is not registered.
func (m *Metrics) Family(name string) (Family, bool, error) {
	mfs, err := m.reg.Gather()
	if err != nil {
		return Family{}, false, err
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return summarize(mf), true, nil
		}
	}
	return Family{}, false, nil
}

func summarize(mf *dto.MetricFamily) Family {
	f := Family{Name: mf.GetName(), Description: mf.GetHelp()}
	tags := map[string]map[string]struct{}{}
	var value, count, total float64
	for _, mt := range mf.GetMetric() {
		for _, lp := range mt.GetLabel() {
			if tags[lp.GetName()] == nil {
				tags[lp.GetName()] = map[string]struct{}{}
			}
			tags[lp.GetName()][lp.GetValue()] = struct{}{}
		}
		switch mf.GetType() {
		case dto.MetricType_COUNTER:
			value += mt.GetCounter().GetValue()
		case dto.MetricType_GAUGE:
			value += mt.GetGauge().GetValue()
		case dto.MetricType_UNTYPED:
			value += mt.GetUntyped().GetValue()
		case dto.MetricType_HISTOGRAM:
			count += float64(mt.GetHistogram().GetSampleCount())
			total += mt.GetHistogram().GetSampleSum()
		case dto.MetricType_SUMMARY:
			count += float64(mt.GetSummary().GetSampleCount())
			total += mt.GetSummary().GetSampleSum()
		}
	}
	switch mf.GetType() {
	case dto.MetricType_COUNTER:
		f.Measurements = []Measurement{{Statistic: "COUNT", Value: value}}
	case dto.MetricType_HISTOGRAM, dto.MetricType_SUMMARY:
		f.Measurements = []Measurement{{Statistic: "COUNT", Value: count}, {Statistic: "TOTAL", Value: total}}
	default:
		f.Measurements = []Measurement{{Statistic: "VALUE", Value: value}}
	}

	names := make([]string, 0, len(tags))
	for n := range tags {
		names = append(names, n)
	}
	sort.Strings(names)
	f.AvailableTags = make([]Tag, 0, len(names))
	for _, n := range names {
		vals := make([]string, 0, len(tags[n]))
		for v := range tags[n] {
			vals = append(vals, v)
		}
		sort.Strings(vals)
		f.AvailableTags = append(f.AvailableTags, Tag{Tag: n, Values: vals})
	}
	return f
}
