// Package kernelspec locates and parses Jupyter kernel specifications
// under <data_dir>/kernels/<name>/kernel.json (spec.md §3, §4.E).
package kernelspec

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// InterruptMode selects how the launcher interrupts a running kernel
// (spec.md §3).
type InterruptMode string

const (
	InterruptSignal  InterruptMode = "signal"
	InterruptMessage InterruptMode = "message"
)

// Spec is an immutable kernel specification, discovered under
// kernels/<name>/kernel.json (spec.md §3, §6).
type Spec struct {
	Name          string            `json:"-"`
	DisplayName   string            `json:"display_name"`
	Language      string            `json:"language"`
	Argv          []string          `json:"argv"`
	Env           map[string]string `json:"env,omitempty"`
	InterruptMode InterruptMode     `json:"interrupt_mode,omitempty"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
}

// ErrEmptyArgv reports a kernelspec whose argv is empty at launch time
// (spec.md §4.E).
type ErrEmptyArgv struct {
	KernelName string
}

func (e *ErrEmptyArgv) Error() string {
	return "kernelspec: empty argv for kernel " + e.KernelName
}

// Validate enforces the non-empty-argv invariant required to launch.
func (s *Spec) Validate() error {
	if len(s.Argv) == 0 {
		return &ErrEmptyArgv{KernelName: s.Name}
	}
	return nil
}

// UserDataDir resolves the platform-specific Jupyter user data directory
// (spec.md §4.E): JUPYTER_CONFIG_DIR is not a data dir override (config
// and data dirs are distinct in the real Jupyter layout; JUPYTER_PATH
// below is the one that can point at kernel data), macOS
// ~/Library/Jupyter, Windows %APPDATA%/jupyter, Unix $XDG_DATA_HOME/jupyter
// or ~/.local/share/jupyter.
func UserDataDir() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Jupyter"), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", errors.New("kernelspec: APPDATA is not set")
		}
		return filepath.Join(appData, "jupyter"), nil
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "jupyter"), nil
		}
		home, err := homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share", "jupyter"), nil
	}
}

func homeDir() (string, error) {
	if home := os.Getenv("HOME"); home != "" {
		return home, nil
	}
	return "", errors.New("kernelspec: HOME is not set")
}

func systemDataDirs() []string {
	if runtime.GOOS == "windows" {
		if programData := os.Getenv("PROGRAMDATA"); programData != "" {
			return []string{filepath.Join(programData, "jupyter")}
		}
		return nil
	}
	return []string{"/usr/local/share/jupyter", "/usr/share/jupyter"}
}

// searchRoots builds the ordered list of data-dir roots to search, per the
// precedence chain in spec.md §4.E: JUPYTER_PATH entries, the user data
// dir, then the system data dirs.
func searchRoots() []string {
	var roots []string
	if jp := os.Getenv("JUPYTER_PATH"); jp != "" {
		sep := string(os.PathListSeparator)
		roots = append(roots, strings.Split(jp, sep)...)
	}
	if dir, err := UserDataDir(); err == nil && dir != "" {
		roots = append(roots, dir)
	}
	roots = append(roots, systemDataDirs()...)
	return roots
}

// FindAll enumerates every <root>/kernels/<name>/kernel.json across the
// search path, skipping (and logging) malformed entries rather than
// failing (spec.md §4.E).
func FindAll(ctx context.Context) ([]*Spec, error) {
	seen := make(map[string]bool)
	var specs []*Spec
	for _, root := range searchRoots() {
		kernelsDir := filepath.Join(root, "kernels")
		entries, err := os.ReadDir(kernelsDir)
		if err != nil {
			continue // root may not exist; not fatal.
		}
		for _, entry := range entries {
			if !entry.IsDir() || seen[entry.Name()] {
				continue
			}
			path := filepath.Join(kernelsDir, entry.Name(), "kernel.json")
			spec, err := parseSpec(path, entry.Name())
			if err != nil {
				klog.Warningf("kernelspec: skipping malformed %q: %v", path, err)
				continue
			}
			seen[entry.Name()] = true
			specs = append(specs, spec)
		}
	}
	return specs, nil
}

// Find locates a single named kernelspec, returning an error if it is not
// present anywhere on the search path.
func Find(ctx context.Context, name string) (*Spec, error) {
	for _, root := range searchRoots() {
		path := filepath.Join(root, "kernels", name, "kernel.json")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return parseSpec(path, name)
	}
	return nil, errors.Errorf("kernelspec: kernel %q not found on search path", name)
}

func parseSpec(path, name string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithMessagef(err, "reading %q", path)
	}
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, errors.WithMessagef(err, "parsing %q", path)
	}
	spec.Name = name
	return &spec, nil
}

// Install writes spec as <user_data_dir>/kernels/<name>/kernel.json,
// generalizing the teacher's single-kernel "always install gonb" path
// (kernel/install.go, internal/kernel/install.go) to any named spec.
func Install(spec *Spec, name string) error {
	dataDir, err := UserDataDir()
	if err != nil {
		return errors.WithMessage(err, "kernelspec.Install")
	}
	kernelDir := filepath.Join(dataDir, "kernels", name)
	if err := os.MkdirAll(kernelDir, 0o755); err != nil {
		return errors.WithMessagef(err, "kernelspec.Install: creating %q", kernelDir)
	}
	path := filepath.Join(kernelDir, "kernel.json")
	f, err := os.Create(path)
	if err != nil {
		return errors.WithMessagef(err, "kernelspec.Install: creating %q", path)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(spec); err != nil {
		return errors.WithMessagef(err, "kernelspec.Install: writing %q", path)
	}
	klog.Infof("kernelspec: installed %q at %q", name, path)
	return nil
}
