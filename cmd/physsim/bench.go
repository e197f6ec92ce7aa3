package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/candyasscoder/everfree-outpost-sub000/internal/logging"
)

// benchReport: ресурсы процесса после прогона
type benchReport struct {
	FramesPerSec float64
	CPUPercent   float64
	RSSMB        float64
	HeapMB       float64
	SystemMemPct float64
	Goroutines   int
}

func (b benchReport) String() string {
	return fmt.Sprintf("%.0f кадров/с, CPU %.1f%%, RSS %.1f MB, heap %.1f MB, память системы %.1f%%, горутин %d",
		b.FramesPerSec, b.CPUPercent, b.RSSMB, b.HeapMB, b.SystemMemPct, b.Goroutines)
}

func collectBench(frames int, elapsed time.Duration) benchReport {
	var b benchReport
	if elapsed > 0 {
		b.FramesPerSec = float64(frames) / elapsed.Seconds()
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	b.HeapMB = float64(m.HeapAlloc) / 1024 / 1024
	b.Goroutines = runtime.NumGoroutine()

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err == nil {
		if pct, err := proc.CPUPercent(); err == nil {
			b.CPUPercent = pct
		}
		if info, err := proc.MemoryInfo(); err == nil {
			b.RSSMB = float64(info.RSS) / 1024 / 1024
		}
	} else {
		// Если не удалось получить метрику процесса, берём системную
		logging.Debug("Метрики процесса недоступны: %v", err)
		if pcts, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(pcts) > 0 {
			b.CPUPercent = pcts[0]
		}
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		b.SystemMemPct = vm.UsedPercent
	}
	return b
}
