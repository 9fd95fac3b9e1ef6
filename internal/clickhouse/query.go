package clickhouse

import (
	"fmt"
	"strings"
	"time"
)

const podColumns = "namespace, pod_name, node_name, cpu_millicores, memory_bytes, restart_count, pod_state"

const nodeColumns = "node_name, cpu_millicores, cpu_capacity_millicores, memory_bytes, memory_capacity_bytes, pod_count"

// bucketExpr returns the expression selected as ts. A zero interval keeps raw timestamps.
func bucketExpr(interval time.Duration) string {
	if interval <= 0 {
		return "timestamp"
	}
	return fmt.Sprintf("toStartOfInterval(timestamp, INTERVAL %d MINUTE)", int(interval/time.Minute))
}

// podMetricsQuery builds the pod range query for one namespace. Bucketed queries
// average gauges, take the max of counters and any value of descriptive columns.
// The inner select renames columns so the outer aliases can reuse the column
// names without ClickHouse resolving them inside the aggregates.
func podMetricsQuery(interval time.Duration) string {
	if interval <= 0 {
		return `SELECT timestamp AS ts, ` + podColumns + `
FROM pod_metrics
WHERE namespace = ? AND timestamp >= ?
ORDER BY ts, pod_name`
	}

	return `SELECT bucket AS ts,
	namespace,
	pod_name,
	any(node) AS node_name,
	avg(cpu) AS cpu_millicores,
	avg(mem) AS memory_bytes,
	max(restarts) AS restart_count,
	any(state) AS pod_state
FROM (
	SELECT ` + bucketExpr(interval) + ` AS bucket,
		namespace,
		pod_name,
		node_name AS node,
		cpu_millicores AS cpu,
		memory_bytes AS mem,
		restart_count AS restarts,
		pod_state AS state
	FROM pod_metrics
	WHERE namespace = ? AND timestamp >= ?
)
GROUP BY bucket, namespace, pod_name
ORDER BY ts, pod_name`
}

// nodeMetricsQuery builds the node range query. allNodes drops the node filter.
func nodeMetricsQuery(interval time.Duration, allNodes bool) string {
	where := "WHERE node_name = ? AND timestamp >= ?"
	if allNodes {
		where = "WHERE timestamp >= ?"
	}

	if interval <= 0 {
		return `SELECT timestamp AS ts, ` + nodeColumns + `
FROM node_metrics
` + where + `
ORDER BY ts, node_name`
	}

	return `SELECT bucket AS ts,
	node_name,
	avg(cpu) AS cpu_millicores,
	avg(cpu_cap) AS cpu_capacity_millicores,
	avg(mem) AS memory_bytes,
	avg(mem_cap) AS memory_capacity_bytes,
	max(pods) AS pod_count
FROM (
	SELECT ` + bucketExpr(interval) + ` AS bucket,
		node_name,
		cpu_millicores AS cpu,
		cpu_capacity_millicores AS cpu_cap,
		memory_bytes AS mem,
		memory_capacity_bytes AS mem_cap,
		pod_count AS pods
	FROM node_metrics
	` + where + `
)
GROUP BY bucket, node_name
ORDER BY ts, node_name`
}

func insertQuery(table, columns string) string {
	n := strings.Count(columns, ",") + 2
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
	return fmt.Sprintf("INSERT INTO %s (timestamp, %s) VALUES (%s)", table, columns, placeholders)
}

// schema returns the MergeTree tables, expiring rows after retention.
func schema(retention time.Duration) []string {
	days := int(retention / (24 * time.Hour))
	if days < 1 {
		days = 1
	}

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS pod_metrics (
	timestamp DateTime,
	namespace LowCardinality(String),
	pod_name String,
	node_name LowCardinality(String),
	cpu_millicores Float64,
	memory_bytes Float64,
	restart_count Int64,
	pod_state LowCardinality(String)
) ENGINE = MergeTree
ORDER BY (namespace, pod_name, timestamp)
TTL timestamp + INTERVAL %d DAY`, days),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS node_metrics (
	timestamp DateTime,
	node_name LowCardinality(String),
	cpu_millicores Float64,
	cpu_capacity_millicores Float64,
	memory_bytes Float64,
	memory_capacity_bytes Float64,
	pod_count Int64
) ENGINE = MergeTree
ORDER BY (node_name, timestamp)
TTL timestamp + INTERVAL %d DAY`, days),
	}
}
