package embeddings

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// Compute device identifiers recorded in logs
const (
	deviceAccelerator = "accelerator"
	deviceGeneral     = "cpu"
)

// selectDevice prefers the accelerator only when the available-memory floor
// is met; anything else falls back to general compute.
func selectDevice(minFreeMemoryMB int) string {
	if minFreeMemoryMB <= 0 {
		return deviceAccelerator
	}
	freeMB, ok := availableMemoryMB()
	if ok && freeMB >= minFreeMemoryMB {
		return deviceAccelerator
	}
	return deviceGeneral
}

// availableMemoryMB reads MemAvailable from /proc/meminfo. On platforms
// without it the probe reports failure and the caller uses general compute.
func availableMemoryMB() (int, bool) {
	file, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, false
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, false
		}
		kb, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0, false
		}
		return kb / 1024, true
	}
	return 0, false
}
