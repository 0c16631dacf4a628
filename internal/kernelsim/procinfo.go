package kernelsim

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// procStats describes the simulator process for kernel_info_reply.
type procStats struct {
	PID        int32
	RSS        uint64
	CPUPercent float64
	Threads    int32
}

func currentProcStats() (procStats, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return procStats{}, err
	}
	st := procStats{PID: p.Pid}
	if mem, err := p.MemoryInfo(); err == nil {
		st.RSS = mem.RSS
	}
	if cpu, err := p.CPUPercent(); err == nil {
		st.CPUPercent = cpu
	}
	if n, err := p.NumThreads(); err == nil {
		st.Threads = n
	}
	return st, nil
}
