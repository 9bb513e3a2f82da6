// Package sysmem reports the host resources shown by the health endpoints.
package sysmem

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
)

const bytesPerGB = 1 << 30

// Device is the compute device answers are produced on. Generation runs on
// the CPU or on a remote model, never on a local GPU.
const Device = "cpu"

// GPUAvailable is reported in place of GPU memory.
const GPUAvailable = "N/A"

// Snapshot is the memory state at one point in time.
type Snapshot struct {
	TotalBytes     uint64
	AvailableBytes uint64
}

var virtualMemory = mem.VirtualMemory

// Read samples system memory.
func Read() (Snapshot, error) {
	vm, err := virtualMemory()
	if err != nil {
		return Snapshot{}, fmt.Errorf("read virtual memory: %w", err)
	}
	return Snapshot{TotalBytes: vm.Total, AvailableBytes: vm.Available}, nil
}

// AvailableGB is the available memory in GiB.
func (s Snapshot) AvailableGB() float64 {
	return float64(s.AvailableBytes) / bytesPerGB
}

// TotalGB is the installed memory in GiB.
func (s Snapshot) TotalGB() float64 {
	return float64(s.TotalBytes) / bytesPerGB
}

// FormatGB renders gb as "x.xxGB".
func FormatGB(gb float64) string {
	return fmt.Sprintf("%.2fGB", gb)
}
