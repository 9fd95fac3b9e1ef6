package timeseries

import (
	"sort"
	"time"
)

// Rollup describes how a column is combined when rows are grouped into buckets
type Rollup string

const (
	// RollupAvg averages continuous gauges such as CPU and memory
	RollupAvg Rollup = "avg"
	// RollupMax keeps the largest value of a monotonically increasing counter
	RollupMax Rollup = "max"
	// RollupAny keeps an arbitrary representative of a descriptive value
	RollupAny Rollup = "any"
)

type bucketKey struct {
	bucket time.Time
	name   string
}

type podAcc struct {
	row      PodMetric
	cpuSum   float64
	memSum   float64
	count    int
	restarts int64
}

// RollupPods groups pod rows into interval-wide buckets per pod. CPU and memory are
// averaged, restart counts take the max, and node name and state keep the first value
// seen. Rows are returned ordered by bucket then pod name. A zero interval returns rows
// unchanged.
func RollupPods(rows []PodMetric, interval time.Duration) []PodMetric {
	if interval <= 0 {
		return rows
	}

	accs := make(map[bucketKey]*podAcc)
	for _, r := range rows {
		key := bucketKey{bucket: r.Timestamp.Truncate(interval), name: r.Namespace + "/" + r.PodName}
		acc, ok := accs[key]
		if !ok {
			acc = &podAcc{row: r}
			acc.row.Timestamp = key.bucket
			acc.restarts = r.RestartCount
			accs[key] = acc
		}
		acc.cpuSum += r.CPUMillicores
		acc.memSum += r.MemoryBytes
		acc.count++
		if r.RestartCount > acc.restarts {
			acc.restarts = r.RestartCount
		}
	}

	out := make([]PodMetric, 0, len(accs))
	for _, acc := range accs {
		row := acc.row
		row.CPUMillicores = acc.cpuSum / float64(acc.count)
		row.MemoryBytes = acc.memSum / float64(acc.count)
		row.RestartCount = acc.restarts
		out = append(out, row)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].PodName < out[j].PodName
	})
	return out
}

type nodeAcc struct {
	row     NodeMetric
	cpuSum  float64
	cpuCap  float64
	memSum  float64
	memCap  float64
	count   int
	maxPods int64
}

// RollupNodes groups node rows into interval-wide buckets per node. Usage and capacity
// are averaged and the pod count takes the max.
func RollupNodes(rows []NodeMetric, interval time.Duration) []NodeMetric {
	if interval <= 0 {
		return rows
	}

	accs := make(map[bucketKey]*nodeAcc)
	for _, r := range rows {
		key := bucketKey{bucket: r.Timestamp.Truncate(interval), name: r.NodeName}
		acc, ok := accs[key]
		if !ok {
			acc = &nodeAcc{row: r}
			acc.row.Timestamp = key.bucket
			acc.maxPods = r.PodCount
			accs[key] = acc
		}
		acc.cpuSum += r.CPUMillicores
		acc.cpuCap += r.CPUCapacityMillicores
		acc.memSum += r.MemoryBytes
		acc.memCap += r.MemoryCapacityBytes
		acc.count++
		if r.PodCount > acc.maxPods {
			acc.maxPods = r.PodCount
		}
	}

	out := make([]NodeMetric, 0, len(accs))
	for _, acc := range accs {
		row := acc.row
		n := float64(acc.count)
		row.CPUMillicores = acc.cpuSum / n
		row.CPUCapacityMillicores = acc.cpuCap / n
		row.MemoryBytes = acc.memSum / n
		row.MemoryCapacityBytes = acc.memCap / n
		row.PodCount = acc.maxPods
		out = append(out, row)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].NodeName < out[j].NodeName
	})
	return out
}
