// Package stats tracks and exports transfer and cache metrics
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"io"
	"net/http"
	"strings"
	ratomic "sync/atomic"
	"time"

	"github.com/IATkachenko/arc-sub001/cmn/debug"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

type (
	iprom interface {
		inc(parent *statsValue)
		add(parent *statsValue, val int64)
		incWith(parent *statsValue, lv string)
		observe(parent *statsValue, val float64)
	}

	counter    struct{ prometheus.Counter }
	counterVec struct{ *prometheus.CounterVec }
	gauge      struct{ prometheus.Gauge }
	histogram  struct{ prometheus.Histogram }

	statsValue struct {
		iprom      iprom
		kind       string
		Value      int64
		numSamples int64
	}

	// Prom keeps its own registry: several instances may coexist (tests)
	Prom struct {
		reg     *prometheus.Registry
		tracker map[string]*statsValue
	}
)

// interface guard
var (
	_ iprom = (*counter)(nil)
	_ iprom = (*counterVec)(nil)
	_ iprom = (*gauge)(nil)
	_ iprom = (*histogram)(nil)
)

func (v counter) inc(parent *statsValue) {
	ratomic.AddInt64(&parent.Value, 1)
	v.Inc()
}

func (v counter) add(parent *statsValue, val int64) {
	ratomic.AddInt64(&parent.Value, val)
	v.Add(float64(val))
}

func (v counterVec) incWith(parent *statsValue, lv string) {
	ratomic.AddInt64(&parent.Value, 1)
	v.WithLabelValues(lv).Inc()
}

func (v gauge) add(parent *statsValue, val int64) {
	ratomic.AddInt64(&parent.Value, val)
	v.Add(float64(val))
}

func (v gauge) inc(parent *statsValue) { v.add(parent, 1) }

func (h histogram) observe(parent *statsValue, val float64) {
	ratomic.AddInt64(&parent.numSamples, 1)
	h.Observe(val)
}

// illegal impl. placeholders

func (counter) incWith(*statsValue, string)     { debug.Assert(false) }
func (counter) observe(*statsValue, float64)    { debug.Assert(false) }
func (counterVec) inc(*statsValue)              { debug.Assert(false) }
func (counterVec) add(*statsValue, int64)       { debug.Assert(false) }
func (counterVec) observe(*statsValue, float64) { debug.Assert(false) }
func (gauge) incWith(*statsValue, string)       { debug.Assert(false) }
func (gauge) observe(*statsValue, float64)      { debug.Assert(false) }
func (histogram) inc(*statsValue)               { debug.Assert(false) }
func (histogram) add(*statsValue, int64)        { debug.Assert(false) }
func (histogram) incWith(*statsValue, string)   { debug.Assert(false) }

//////////
// Prom //
//////////

// e.g. "xfer.n" => "dstage_xfer_total", "xfer.ns" => "dstage_xfer_seconds"
func promName(name string) string {
	switch {
	case strings.HasSuffix(name, ".n"):
		name = strings.TrimSuffix(name, ".n") + ".total"
	case strings.HasSuffix(name, ".ns"):
		name = strings.TrimSuffix(name, ".ns") + ".seconds"
	case strings.HasSuffix(name, ".size"):
		name += ".bytes"
	}
	return strings.ReplaceAll(name, ".", "_")
}

func NewProm(namespace string) *Prom {
	p := &Prom{reg: prometheus.NewRegistry(), tracker: make(map[string]*statsValue, len(descs))}
	for _, d := range descs {
		var (
			v    = &statsValue{kind: d.kind}
			name = promName(d.name)
			c    prometheus.Collector
		)
		switch d.kind {
		case KindCounter:
			m := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: d.help})
			v.iprom, c = counter{m}, m
		case KindCounterVec:
			m := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: d.help}, []string{d.label})
			v.iprom, c = counterVec{m}, m
		case KindGauge:
			m := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: d.help})
			v.iprom, c = gauge{m}, m
		case KindLatency:
			m := prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      name,
				Help:      d.help,
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
			})
			v.iprom, c = histogram{m}, m
		default:
			debug.Assert(false, d.kind)
		}
		p.reg.MustRegister(c)
		p.tracker[d.name] = v
	}
	return p
}

func (p *Prom) get(name string) *statsValue {
	v, ok := p.tracker[name]
	debug.Assertf(ok, "invalid metric name %q", name)
	return v
}

func (p *Prom) Inc(name string) {
	v := p.get(name)
	v.iprom.inc(v)
}

// Dec is for gauges only
func (p *Prom) Dec(name string) { p.Add(name, -1) }

func (p *Prom) Add(name string, val int64) {
	v := p.get(name)
	v.iprom.add(v, val)
}

func (p *Prom) IncWith(name, lv string) {
	v := p.get(name)
	v.iprom.incWith(v, lv)
}

func (p *Prom) Observe(name string, d time.Duration) {
	v := p.get(name)
	v.iprom.observe(v, d.Seconds())
}

// Get returns the running total (the number of samples, for latencies)
func (p *Prom) Get(name string) int64 {
	v := p.get(name)
	if v.kind == KindLatency {
		return ratomic.LoadInt64(&v.numSamples)
	}
	return ratomic.LoadInt64(&v.Value)
}

func (p *Prom) Registry() *prometheus.Registry { return p.reg }

func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

// WriteText renders all metrics in the Prometheus text format
func (p *Prom) WriteText(w io.Writer) error {
	families, err := p.reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
