// Package metrics reports to a datadog agent over dogstatsd.
//
// Keys are prefixed with the name given to New, so metrics.New("auction")
// turns BumpSum("bid.accepted", 1) into auction.bid.accepted. Suffixes used
// across the service:
//   - *.time for time spent inside the process
//   - *.latency for time spent waiting on a dependency
//   - *.err and *.warn for failures
//
// Tags are passed as key, value pairs.
package metrics

import (
	"strings"
	"time"

	"github.com/x-xyz/goauction/base/log"
)

// Ender stops a timer started by BumpTime
type Ender interface {
	End()
}

// Service provides interface for metrics
type Service interface {
	// BumpAvg reports a gauge
	BumpAvg(key string, val float64, tags ...string)
	// BumpSum adds val to a counter
	BumpSum(key string, val float64, tags ...string)
	BumpHistogram(key string, val float64, tags ...string)

	// BumpTime starts a timer reported in milliseconds on End, usually
	//
	//	defer met.BumpTime("placebid.time").End()
	BumpTime(key string, tags ...string) Ender
}

// Option configures a Service
type Option func(*Metrics)

// WithoutPodName drops the pod tag. Every pod creates its own series, skip
// it for metrics nobody groups by pod.
func WithoutPodName() Option {
	return func(m *Metrics) {
		m.withPod = false
	}
}

// Metrics implements Service
type Metrics struct {
	prefix  string
	withPod bool
}

// New returns a Service whose keys are prefixed with name
func New(name string, options ...Option) Service {
	m := &Metrics{prefix: name + ".", withPod: true}
	for _, o := range options {
		o(m)
	}
	return m
}

func (m *Metrics) BumpAvg(key string, val float64, tags ...string) {
	m.send(key, tags, func(cli statsCli, name string, t []string) error {
		return cli.Gauge(name, val, t, 1)
	})
}

func (m *Metrics) BumpSum(key string, val float64, tags ...string) {
	m.send(key, tags, func(cli statsCli, name string, t []string) error {
		return cli.Count(name, int64(val), t, 1)
	})
}

func (m *Metrics) BumpHistogram(key string, val float64, tags ...string) {
	m.send(key, tags, func(cli statsCli, name string, t []string) error {
		return cli.Histogram(name, val, t, 1)
	})
}

func (m *Metrics) BumpTime(key string, tags ...string) Ender {
	return &timer{m: m, key: key, tags: tags, start: time.Now()}
}

// send resolves the client and tags then calls fn. A metric never takes the
// caller down, malformed tags are logged and counted instead.
func (m *Metrics) send(key string, tags []string, fn func(statsCli, string, []string) error) {
	defer func() {
		if r := recover(); r != nil {
			log.Log().WithFields(log.Fields{"key": m.prefix + key, "tags": strings.Join(tags, ","), "panic": r}).Error("metric dropped")
			_ = pick().Count("metrics.panic", 1, []string{"name:" + strings.TrimSuffix(m.prefix, ".")}, 1)
		}
	}()

	cli := pick()
	t := append(baseTags(m.withPod), parseTag(tags)...)
	if err := fn(cli, m.prefix+key, t); err != nil {
		log.Log().WithFields(log.Fields{"err": err, "key": m.prefix + key}).Error("failed to bump metric")
	}
}

type timer struct {
	m     *Metrics
	key   string
	tags  []string
	start time.Time
}

func (t *timer) End() {
	ms := float64(time.Since(t.start)) / float64(time.Millisecond)
	t.m.send(t.key, t.tags, func(cli statsCli, name string, tags []string) error {
		return cli.TimeInMilliseconds(name, ms, tags, 1)
	})
}
