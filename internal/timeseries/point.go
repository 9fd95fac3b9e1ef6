package timeseries

import "time"

// PodMetric is one sample of a pod's resource usage
type PodMetric struct {
	Timestamp     time.Time `json:"timestamp" db:"ts"`
	Namespace     string    `json:"namespace" db:"namespace"`
	PodName       string    `json:"podName" db:"pod_name"`
	NodeName      string    `json:"nodeName" db:"node_name"`
	CPUMillicores float64   `json:"cpuMillicores" db:"cpu_millicores"`
	MemoryBytes   float64   `json:"memoryBytes" db:"memory_bytes"`
	RestartCount  int64     `json:"restartCount" db:"restart_count"`
	State         string    `json:"state" db:"pod_state"`
}

// Time returns the sample timestamp
func (p PodMetric) Time() time.Time { return p.Timestamp }

// NodeMetric is one sample of a node's resource usage and capacity
type NodeMetric struct {
	Timestamp             time.Time `json:"timestamp" db:"ts"`
	NodeName              string    `json:"nodeName" db:"node_name"`
	CPUMillicores         float64   `json:"cpuMillicores" db:"cpu_millicores"`
	CPUCapacityMillicores float64   `json:"cpuCapacityMillicores" db:"cpu_capacity_millicores"`
	MemoryBytes           float64   `json:"memoryBytes" db:"memory_bytes"`
	MemoryCapacityBytes   float64   `json:"memoryCapacityBytes" db:"memory_capacity_bytes"`
	PodCount              int64     `json:"podCount" db:"pod_count"`
}

// Time returns the sample timestamp
func (n NodeMetric) Time() time.Time { return n.Timestamp }

// Timestamped is implemented by every row kept in a Series
type Timestamped interface {
	Time() time.Time
}
