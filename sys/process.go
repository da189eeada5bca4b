package sys

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessExists reports whether a process with the given pid is currently
// running. It is a variable so tests can simulate a dead owner.
var ProcessExists = func(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	if pid == os.Getpid() {
		return true, nil
	}
	return process.PidExists(int32(pid))
}
