// Package lockfile provides a PID-owned lock file guarding deployment changes
// against concurrent conduit invocations.
package lockfile

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"
)

var (
	// ErrLockBusy is returned when the lock is held by another live process.
	ErrLockBusy = errors.New("another conduit command is modifying the deployment")

	// ErrLockNotOwned is returned when releasing a lock held by another process.
	ErrLockNotOwned = errors.New("cannot release lock not owned by this process")
)

// Data is the JSON document stored in the lock file.
type Data struct {
	PID            int    `json:"pid"`
	ExpireAt       int64  `json:"expire_at"`
	OwnerStartTime int64  `json:"owner_start_time"`
	Command        string `json:"command,omitempty"`
}

// Lock is a file lock at a fixed path.
type Lock struct {
	path string
	now  func() time.Time
}

func New(path string) *Lock {
	return &Lock{path: path, now: time.Now}
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Acquire takes the lock for the given duration. A lock whose owner died, whose
// PID was reused or which expired is replaced.
func (l *Lock) Acquire(expiration time.Duration, command string) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	startTime, err := processStartTime(os.Getpid())
	if err != nil {
		return fmt.Errorf("failed to get process start time: %w", err)
	}

	content, err := json.Marshal(Data{
		PID:            os.Getpid(),
		ExpireAt:       l.now().Add(expiration).Unix(),
		OwnerStartTime: startTime,
		Command:        command,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal lock data: %w", err)
	}

	err = l.link(content)
	if err == nil {
		return nil
	}
	if !os.IsExist(err) {
		return fmt.Errorf("failed to create lock: %w", err)
	}

	if !l.isStale() {
		return ErrLockBusy
	}

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale lock: %w", err)
	}

	if err := l.link(content); err != nil {
		if os.IsExist(err) {
			return ErrLockBusy
		}
		return fmt.Errorf("failed to create lock: %w", err)
	}
	return nil
}

// Release removes the lock when owned by the current process. Releasing a
// missing lock is a no-op.
func (l *Lock) Release() error {
	content, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read lock file: %w", err)
	}

	var data Data
	if err := json.Unmarshal(content, &data); err == nil && data.PID != os.Getpid() {
		return ErrLockNotOwned
	}

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock: %w", err)
	}
	return nil
}

// Holder returns the lock contents, if any.
func (l *Lock) Holder() (Data, error) {
	var data Data
	content, err := os.ReadFile(l.path)
	if err != nil {
		return data, err
	}
	if err := json.Unmarshal(content, &data); err != nil {
		return data, fmt.Errorf("lock file corrupted: %w", err)
	}
	return data, nil
}

// link writes content to a temp file and hard links it to the lock path.
func (l *Lock) link(content []byte) error {
	suffix, err := randomHex(8)
	if err != nil {
		return err
	}
	tmp := l.path + "." + suffix
	if err := os.WriteFile(tmp, content, 0600); err != nil {
		return fmt.Errorf("failed to write temp lock file: %w", err)
	}
	defer os.Remove(tmp)
	return os.Link(tmp, l.path)
}

func (l *Lock) isStale() bool {
	data, err := l.Holder()
	if err != nil {
		return true
	}
	if data.ExpireAt < l.now().Unix() {
		return true
	}
	if !isProcessAlive(data.PID) {
		return true
	}
	startTime, err := processStartTime(data.PID)
	if err != nil {
		return true
	}
	return startTime != data.OwnerStartTime
}

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// processStartTime returns the creation time of pid in milliseconds since epoch.
func processStartTime(pid int) (int64, error) {
	if pid <= 0 {
		return 0, fmt.Errorf("invalid PID: %d", pid)
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0, err
	}
	return p.CreateTime()
}

func randomHex(n int) (string, error) {
	b := make([]byte, n/2+1)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random suffix: %w", err)
	}
	return hex.EncodeToString(b)[:n], nil
}
