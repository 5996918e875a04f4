// Package dbuf implements the bounded transfer buffer between a reader and a writer
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package dbuf

import "time"

type (
	SpeedConf struct {
		MinSpeed      int64         // bytes per second, averaged over MinSpeedTime
		MinSpeedTime  time.Duration // trailing window
		MinAvgSpeed   int64         // bytes per second, since the start
		MaxInactivity time.Duration // longest allowed gap between two transfers
		Progress      time.Duration // progress callback interval
	}

	Progress struct {
		Bytes   int64         // transferred so far
		Elapsed time.Duration // since the start
		Speed   float64       // bytes per second over the trailing window
		Average float64       // bytes per second since the start
	}

	sample struct {
		t     int64
		bytes int64
	}

	// transfer speed tracker; not thread-safe (owner's lock)
	speed struct {
		conf      SpeedConf
		hist      []sample
		started   int64
		last      int64 // last transfer
		progress  int64 // last progress report
		bytes     int64
		violation string
	}
)

func (c *SpeedConf) enabled() bool {
	return c.MinSpeed > 0 || c.MinAvgSpeed > 0 || c.MaxInactivity > 0
}

func newSpeed(conf SpeedConf, now int64) *speed {
	return &speed{conf: conf, started: now, last: now, progress: now, hist: []sample{{now, 0}}}
}

func (s *speed) transfer(n, now int64) {
	s.bytes += n
	s.last = now
}

// check returns a non-empty reason upon violation
func (s *speed) check(now int64) string {
	if s.violation != "" {
		return s.violation
	}
	s.hist = append(s.hist, sample{now, s.bytes})
	elapsed := time.Duration(now - s.started)
	switch {
	case s.conf.MaxInactivity > 0 && time.Duration(now-s.last) > s.conf.MaxInactivity:
		s.violation = "no data transferred for " + time.Duration(now-s.last).Truncate(time.Millisecond).String()
	case s.conf.MinSpeed > 0 && elapsed >= s.conf.MinSpeedTime && s.current(now) < float64(s.conf.MinSpeed):
		s.violation = "transfer speed below minimum over " + s.conf.MinSpeedTime.String()
	case s.conf.MinAvgSpeed > 0 && elapsed >= s.conf.MinSpeedTime && s.average(now) < float64(s.conf.MinAvgSpeed):
		s.violation = "average transfer speed below minimum"
	}
	return s.violation
}

// over the trailing window; trims samples older than the window (keeping the boundary one)
func (s *speed) current(now int64) float64 {
	window := s.conf.MinSpeedTime.Nanoseconds()
	if window <= 0 {
		return s.average(now)
	}
	i := 0
	for i < len(s.hist)-1 && s.hist[i+1].t <= now-window {
		i++
	}
	s.hist = s.hist[i:]
	oldest := s.hist[0]
	if now <= oldest.t {
		return 0
	}
	return float64(s.bytes-oldest.bytes) / (float64(now-oldest.t) / float64(time.Second))
}

func (s *speed) average(now int64) float64 {
	if now <= s.started {
		return 0
	}
	return float64(s.bytes) / (float64(now-s.started) / float64(time.Second))
}

func (s *speed) report(now int64) (p Progress, due bool) {
	if s.conf.Progress <= 0 || time.Duration(now-s.progress) < s.conf.Progress {
		return
	}
	s.progress = now
	return Progress{
		Bytes:   s.bytes,
		Elapsed: time.Duration(now - s.started),
		Speed:   s.current(now),
		Average: s.average(now),
	}, true
}
