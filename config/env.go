package config

import (
	"errors"
	"io/fs"
	"os"
	"sync"

	"github.com/joho/godotenv"
)

var (
	mu sync.Mutex
	// keys whose current value came from an env file
	fromFile = map[string]bool{}
)

// LoadEnv reads .env style files into the process environment. Variables that
// are already set win, so a real deployment is never overridden by a stray file.
// Missing files are not an error.
func LoadEnv(files ...string) error {
	vals, _, err := read(files...)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	for k, v := range vals {
		if _, set := os.LookupEnv(k); set {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return err
		}
		fromFile[k] = true
	}
	return nil
}

// Reload re-reads the env files and overwrites existing values. Keys that an
// earlier load took from a file and that the files no longer define are
// unset. When none of the files exists nothing changes. Used on SIGHUP.
func Reload(files ...string) error {
	vals, found, err := read(files...)
	if err != nil || !found {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	for k := range fromFile {
		if _, ok := vals[k]; !ok {
			if err := os.Unsetenv(k); err != nil {
				return err
			}
			delete(fromFile, k)
		}
	}
	for k, v := range vals {
		if err := os.Setenv(k, v); err != nil {
			return err
		}
		fromFile[k] = true
	}
	return nil
}

// read merges the files; the first file defining a key wins.
func read(files ...string) (map[string]string, bool, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	out := map[string]string{}
	found := false
	for _, f := range files {
		m, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		found = true
		for k, v := range m {
			if _, ok := out[k]; !ok {
				out[k] = v
			}
		}
	}
	return out, found, nil
}
