package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/spf13/viper"

	"github.com/x-xyz/goauction/base/env"
	"github.com/x-xyz/goauction/base/log"
)

const (
	// clients are picked round robin, poolSize must be a power of two
	poolSize = 16
	poolMask = poolSize - 1

	agentPort = 8125
	// metrics buffered per client before a flush
	bufferLen = 10
)

var (
	initOnce sync.Once
	clients  []statsCli
	next     uint32

	envTags []string
	podTag  string
)

// statsCli is the subset of statsd.ClientInterface in use
type statsCli interface {
	Gauge(name string, value float64, tags []string, rate float64) error
	Count(name string, value int64, tags []string, rate float64) error
	Histogram(name string, value float64, tags []string, rate float64) error
	TimeInMilliseconds(name string, value float64, tags []string, rate float64) error
}

// setup runs on first use, after the config has been read
func setup() {
	envTags = []string{
		// an empty host tag stops the agent from attaching host level tags
		// https://docs.datadoghq.com/developers/dogstatsd/data_types/#host-tag-key
		"host:",
		"env:" + configOr("env_name", env.EnvName()),
		"app:" + configOr("app_name", env.AppName()),
	}
	podTag = "pod:" + env.PodName()

	clients = make([]statsCli, poolSize)
	host := viper.GetString("datadog_host")
	if host == "" {
		log.Log().Info("datadog_host is empty, metrics go to the debug log")
		for i := range clients {
			clients[i] = logClient{}
		}
		return
	}

	addr := fmt.Sprintf("%s:%d", host, agentPort)
	for i := range clients {
		cli, err := statsd.NewBuffered(addr, bufferLen)
		if err != nil {
			log.Log().WithFields(log.Fields{"addr": addr, "err": err}).Panic("failed to statsd.NewBuffered")
		}
		clients[i] = cli
	}
	log.Log().WithField("addr", addr).Info("datadog agent configured")
}

func configOr(key, fallback string) string {
	if v := viper.GetString(key); v != "" {
		return v
	}
	return fallback
}

func pick() statsCli {
	initOnce.Do(setup)
	return clients[atomic.AddUint32(&next, 1)&poolMask]
}

// baseTags returns a fresh slice so callers can append to it
func baseTags(withPod bool) []string {
	initOnce.Do(setup)
	tags := make([]string, 0, len(envTags)+1)
	tags = append(tags, envTags...)
	if withPod {
		tags = append(tags, podTag)
	}
	return tags
}

// parseTag turns key, value pairs into datadog key:value tags
func parseTag(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	if len(tags)%2 != 0 {
		panic(fmt.Sprintf("odd number of tag elements: %v", tags))
	}
	out := make([]string, 0, len(tags)/2)
	for i := 0; i < len(tags); i += 2 {
		out = append(out, tags[i]+":"+tags[i+1])
	}
	return out
}
