package vm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runningVMsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vmhostd",
		Subsystem: "vms",
		Name:      "running",
		Help:      "Number of running VMs",
	})

	totalVMsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vmhostd",
		Subsystem: "vms",
		Name:      "defined",
		Help:      "Total Number of VMs registered",
	})

	cpuVMGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vmhostd",
		Subsystem: "vms",
		Name:      "cpu",
		Help:      "Number of CPUs allocated to live VMs",
	})

	memVMGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vmhostd",
		Subsystem: "vms",
		Name:      "mem",
		Help:      "Megabytes of memory allocated to live VMs",
	})

	vmExitsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vmhostd",
		Subsystem: "vms",
		Name:      "exits_total",
		Help:      "Number of VM process exits by final status",
	}, []string{"status"})
)

// refreshMetrics must not be called with any instance lock held.
func (s *Supervisor) refreshMetrics() {
	var running, cpus, mem float64

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, inst := range s.vms {
		status := inst.Status()
		if status == RUNNING || status == PAUSED {
			running++
		}

		if status.Live() {
			cpus += float64(inst.Config.CPU)
			mem += float64(inst.Config.Mem)
		}
	}

	runningVMsGauge.Set(running)
	totalVMsGauge.Set(float64(len(s.vms)))
	cpuVMGauge.Set(cpus)
	memVMGauge.Set(mem)
}
