package sysmem

import (
	"errors"
	"testing"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadHost(t *testing.T) {
	s, err := Read()
	require.NoError(t, err)
	assert.Greater(t, s.TotalBytes, uint64(0))
	assert.LessOrEqual(t, s.AvailableBytes, s.TotalBytes)
}

func TestSnapshotConversions(t *testing.T) {
	orig := virtualMemory
	defer func() { virtualMemory = orig }()

	virtualMemory = func() (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Total: 16 * bytesPerGB, Available: 3 * bytesPerGB / 2}, nil
	}
	s, err := Read()
	require.NoError(t, err)
	assert.InDelta(t, 16.0, s.TotalGB(), 1e-9)
	assert.InDelta(t, 1.5, s.AvailableGB(), 1e-9)
	assert.Equal(t, "1.50GB", FormatGB(s.AvailableGB()))

	virtualMemory = func() (*mem.VirtualMemoryStat, error) { return nil, errors.New("no /proc") }
	_, err = Read()
	assert.Error(t, err)
}
