// Package pidfile guards against concurrent daemon instances with a PID
// file. A leftover file from a crashed instance is reclaimed once its
// recorded process is gone.
package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/openefi/ecud/internal/errors"
)

const (
	pidFile  = "ecud.pid"
	filePerm = 0o600
)

// runtimeDir picks where the PID file lives: the session runtime dir
// when one is provided, the system tmp dir otherwise.
func runtimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}

	return os.TempDir()
}

func pidPath() string {
	return filepath.Join(runtimeDir(), pidFile)
}

// otherInstanceRunning reports whether the PID recorded at path belongs
// to a live process. Signal 0 probes liveness without delivering.
func otherInstanceRunning(path string) (bool, error) {
	errFactory := errors.New()

	bytes, err := os.ReadFile(path)
	if err != nil {
		return false, errFactory.Wrap(errors.ErrInternal, err)
	}

	recorded, err := strconv.Atoi(string(bytes))
	if err != nil {
		return false, errFactory.Wrap(errors.ErrInternal, err)
	}

	process, err := os.FindProcess(recorded)
	if err != nil {
		return false, nil
	}

	return process.Signal(syscall.Signal(0)) == nil, nil
}

// Write records the current process ID, refusing when another live
// instance already holds the file.
func Write() error {
	errFactory := errors.New()
	path := pidPath()

	if _, err := os.Stat(path); err == nil {
		running, err := otherInstanceRunning(path)
		if err != nil {
			return err
		}
		if running {
			return errFactory.New(errors.ErrAlreadyRunning)
		}
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), filePerm); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove deletes the PID file. A missing file is not an error.
func Remove() error {
	errFactory := errors.New()
	path := pidPath()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	if err := os.Remove(path); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}
