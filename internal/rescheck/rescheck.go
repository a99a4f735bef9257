// Package rescheck implements the soft memory ceiling the Searcher
// consults before enabling hybrid+rerank mode, which is the most
// memory-hungry step of a query (it hydrates and scores a whole rerank
// pool). It measures the process's own memory use, not system-wide
// available memory, and allows whenever that use cannot be read.
package rescheck

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// DefaultCeilingMB is the contract's default soft memory ceiling.
const DefaultCeilingMB = 500

// Checker reports whether the process is within its configured memory ceiling.
type Checker struct {
	ceilingBytes uint64
}

// New builds a Checker for the given ceiling in megabytes. A
// non-positive ceiling disables the check (Allow always returns true).
func New(ceilingMB int) *Checker {
	if ceilingMB <= 0 {
		return &Checker{ceilingBytes: 0}
	}
	return &Checker{ceilingBytes: uint64(ceilingMB) * 1024 * 1024}
}

// Allow reports whether current resident memory is under the ceiling.
// It returns true when the ceiling is disabled or when resident memory
// cannot be read; off Linux it compares the Go heap size instead.
func (c *Checker) Allow() bool {
	if c.ceilingBytes == 0 {
		return true
	}
	used, ok := residentSetBytes()
	if !ok {
		return true
	}
	return used < c.ceilingBytes
}

// UsedBytes reports the current resident set size, or 0 with ok=false
// if it could not be determined.
func (c *Checker) UsedBytes() (used uint64, ok bool) {
	return residentSetBytes()
}

// residentSetBytes reads VmRSS from /proc/self/status on Linux. On
// other platforms it falls back to runtime.MemStats's HeapSys, which
// understates true RSS but keeps the check non-fatal everywhere.
func residentSetBytes() (uint64, bool) {
	if runtime.GOOS != "linux" {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return m.HeapSys, true
	}

	f, err := os.Open("/proc/self/status")
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, false
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return kb * 1024, true
	}
	return 0, false
}
