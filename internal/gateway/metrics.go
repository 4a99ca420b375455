package gateway

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// SystemMetrics is the payload of the dashboard's periodic metrics frame:
// host resource usage plus the engine's compute and delivery latencies.
type SystemMetrics struct {
	CPULoad1    float64 `json:"cpu_load_1"`
	CPULoad5    float64 `json:"cpu_load_5"`
	CPULoad15   float64 `json:"cpu_load_15"`
	CPUPercent  float64 `json:"cpu_percent"`
	CPUCores    int     `json:"cpu_cores"`
	MemUsedMB   float64 `json:"mem_used_mb"`
	MemTotalMB  float64 `json:"mem_total_mb"`
	MemPercent  float64 `json:"mem_percent"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	SysMB       float64 `json:"sys_mb"`
	GCRuns      uint32  `json:"gc_runs"`
	Goroutines  int     `json:"goroutines"`
	UptimeSec   int64   `json:"uptime_sec"`
	ComputeMs   float64 `json:"compute_ms"` // analysis compute latency
	LatencyP50  float64 `json:"latency_p50_ms"`
	LatencyP95  float64 `json:"latency_p95_ms"`
	LatencyP99  float64 `json:"latency_p99_ms"`
	TS          string  `json:"ts"`
}

const computeLatencyKey = "metrics:analysisd:compute_ms"

// prevCPU holds the previous /proc/stat sample; CPU percent is the idle
// delta between consecutive collections.
var prevCPU struct{ idle, total uint64 }

// CollectMetrics gathers host and runtime resource usage. Linux-specific
// fields read from /proc and stay zero elsewhere.
func CollectMetrics(start time.Time) SystemMetrics {
	m := SystemMetrics{
		CPUCores:   runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
		UptimeSec:  int64(time.Since(start).Seconds()),
		TS:         time.Now().UTC().Format(time.RFC3339Nano),
	}

	idle, total := readCPUStat()
	if prevCPU.total > 0 && total > prevCPU.total {
		dTotal := float64(total - prevCPU.total)
		dIdle := float64(idle - prevCPU.idle)
		m.CPUPercent = (1 - dIdle/dTotal) * 100
	}
	prevCPU.idle, prevCPU.total = idle, total

	m.CPULoad1, m.CPULoad5, m.CPULoad15 = readLoadAvg()

	if totalKB, availKB := readMemInfo(); totalKB > 0 {
		usedKB := totalKB - availKB
		m.MemTotalMB = float64(totalKB) / 1024
		m.MemUsedMB = float64(usedKB) / 1024
		m.MemPercent = float64(usedKB) / float64(totalKB) * 100
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.HeapAllocMB = float64(ms.HeapAlloc) / 1024 / 1024
	m.SysMB = float64(ms.Sys) / 1024 / 1024
	m.GCRuns = ms.NumGC

	return m
}

// readCPUStat returns the aggregate idle and total jiffies from /proc/stat.
func readCPUStat() (idle, total uint64) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)
		for i := 1; i < len(fields); i++ {
			v, _ := strconv.ParseUint(fields[i], 10, 64)
			total += v
			if i == 4 { // 4th value is idle
				idle = v
			}
		}
		return idle, total
	}
	return 0, 0
}

func readLoadAvg() (l1, l5, l15 float64) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, 0, 0
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return 0, 0, 0
	}
	l1, _ = strconv.ParseFloat(fields[0], 64)
	l5, _ = strconv.ParseFloat(fields[1], 64)
	l15, _ = strconv.ParseFloat(fields[2], 64)
	return l1, l5, l15
}

// readMemInfo returns MemTotal and MemAvailable from /proc/meminfo, in KB.
func readMemInfo() (totalKB, availKB uint64) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0, 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			totalKB, _ = strconv.ParseUint(fields[1], 10, 64)
		case "MemAvailable:":
			availKB, _ = strconv.ParseUint(fields[1], 10, 64)
		}
	}
	return totalKB, availKB
}

// ReadComputeLatency reads the analysis compute latency the engine
// refreshes in Redis every few seconds.
func ReadComputeLatency(ctx context.Context, rdb *goredis.Client) (float64, bool) {
	if rdb == nil {
		return 0, false
	}
	cctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	val, err := rdb.Get(cctx, computeLatencyKey).Result()
	if err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
