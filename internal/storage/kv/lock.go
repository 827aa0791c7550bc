package kv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrLocked is returned when another live process owns a file store.
var ErrLocked = errors.New("kv: store is in use by another process")

const lockName = ".magide.lock"

// acquireLock writes the current PID into dir's lock file. A lock left by
// a dead process, or a corrupt one, is taken over.
func acquireLock(dir string) error {
	lockPath := filepath.Join(dir, lockName)
	if pid := lockedByOther(lockPath); pid != 0 {
		return fmt.Errorf("%w (pid %d)", ErrLocked, pid)
	}
	return os.WriteFile(lockPath, []byte(strconv.Itoa(os.Getpid())), 0644)
}

// releaseLock removes the lock if this process owns it.
func releaseLock(dir string) error {
	lockPath := filepath.Join(dir, lockName)
	if lockOwner(lockPath) != os.Getpid() {
		return nil
	}
	err := os.Remove(lockPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// lockedByOther returns the PID of a live process other than this one that
// holds lockPath, or 0.
func lockedByOther(lockPath string) int {
	pid := lockOwner(lockPath)
	if pid == 0 || pid == os.Getpid() {
		return 0
	}
	if !isProcessAlive(pid) {
		return 0
	}
	return pid
}

func lockOwner(lockPath string) int {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

func isProcessAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 checks existence without delivering anything.
	return proc.Signal(syscall.Signal(0)) == nil
}
