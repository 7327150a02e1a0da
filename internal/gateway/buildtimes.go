package gateway

import (
	"math"
	"sort"
	"sync"
	"time"
)

const defaultBuildWindow = 256

// BuildTimes keeps the most recent snapshot build times of every topic.
// Each topic owns a fixed window so a busy topic cannot push a quiet one
// out of the health summary.
type BuildTimes struct {
	mu     sync.Mutex
	window int
	topics map[string]*topicBuilds
}

type topicBuilds struct {
	ms   []float64
	next int
	full bool
}

func (tb *topicBuilds) values() []float64 {
	if tb.full {
		return tb.ms
	}
	return tb.ms[:tb.next]
}

// BuildSummary pools the windows of all topics.
type BuildSummary struct {
	Samples   int
	P50       float64
	P95       float64
	P99       float64
	Slowest   string  // topic with the highest mean build time
	SlowestMs float64 // that topic's mean
}

// NewBuildTimes keeps up to window samples per topic.
func NewBuildTimes(window int) *BuildTimes {
	if window <= 0 {
		window = defaultBuildWindow
	}
	return &BuildTimes{window: window, topics: make(map[string]*topicBuilds)}
}

// Add records one build of topic.
func (b *BuildTimes) Add(topic string, d time.Duration) {
	ms := float64(d.Microseconds()) / 1000
	b.mu.Lock()
	defer b.mu.Unlock()
	tb, ok := b.topics[topic]
	if !ok {
		tb = &topicBuilds{ms: make([]float64, b.window)}
		b.topics[topic] = tb
	}
	tb.ms[tb.next] = ms
	tb.next++
	if tb.next == len(tb.ms) {
		tb.next, tb.full = 0, true
	}
}

// Retain drops every topic not in keys. The publisher calls it after each
// pass so unwatched topics age out of the summary.
func (b *BuildTimes) Retain(keys []string) {
	keep := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keep[k] = struct{}{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for k := range b.topics {
		if _, ok := keep[k]; !ok {
			delete(b.topics, k)
		}
	}
}

// Summary reports nearest-rank percentiles over every retained sample.
func (b *BuildTimes) Summary() BuildSummary {
	b.mu.Lock()
	var pooled []float64
	var sum BuildSummary
	for topic, tb := range b.topics {
		vals := tb.values()
		if len(vals) == 0 {
			continue
		}
		var total float64
		for _, v := range vals {
			total += v
		}
		mean := total / float64(len(vals))
		if mean > sum.SlowestMs || (mean == sum.SlowestMs && topic < sum.Slowest) {
			sum.Slowest, sum.SlowestMs = topic, mean
		}
		pooled = append(pooled, vals...)
	}
	b.mu.Unlock()

	if len(pooled) == 0 {
		return BuildSummary{}
	}
	sort.Float64s(pooled)
	sum.Samples = len(pooled)
	sum.P50 = nearestRank(pooled, 50)
	sum.P95 = nearestRank(pooled, 95)
	sum.P99 = nearestRank(pooled, 99)
	return sum
}

// nearestRank returns the smallest sample with at least pct percent of the
// sorted samples at or below it.
func nearestRank(sorted []float64, pct float64) float64 {
	rank := int(math.Ceil(pct / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
