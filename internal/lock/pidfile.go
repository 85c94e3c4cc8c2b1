// Package lock обеспечивает единственный активный экземпляр процесса:
// pid-файл на хосте и аренда в Redis между хостами.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrAlreadyRunning pid-файл принадлежит живому процессу.
var ErrAlreadyRunning = errors.New("process already running")

// PIDFile pid-файл, созданный эксклюзивно.
type PIDFile struct {
	path string
	pid  int
}

// AcquirePIDFile создаёт pid-файл с текущим pid. Если файл остался от
// завершившегося процесса, он перезаписывается.
func AcquirePIDFile(path string) (*PIDFile, error) {
	return acquirePIDFile(path, os.Getpid(), processAlive)
}

func acquirePIDFile(path string, pid int, alive func(int) bool) (*PIDFile, error) {
	const op = "lock.AcquirePIDFile"

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	for range 2 {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(pid) + "\n")
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("%s: %w", op, errors.Join(werr, cerr))
			}
			return &PIDFile{path: path, pid: pid}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		owner, err := ReadPID(path)
		if err == nil && owner != pid && alive(owner) {
			return nil, fmt.Errorf("%s: %w (pid %d)", op, ErrAlreadyRunning, owner)
		}
		// Файл устарел или повреждён.
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil, fmt.Errorf("%s: %w", op, ErrAlreadyRunning)
}

// ReadPID читает pid из файла.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in %s", path)
	}
	return pid, nil
}

func (p *PIDFile) Path() string {
	return p.path
}

// Release удаляет pid-файл, если он всё ещё наш.
func (p *PIDFile) Release() error {
	const op = "lock.PIDFile.Release"
	owner, err := ReadPID(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err == nil && owner != p.pid {
		return nil
	}
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func processAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
