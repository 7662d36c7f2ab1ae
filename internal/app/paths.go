// Package app resolves reaper's filesystem layout: a data directory beside
// the binary holding the Store, logs, and cookie file, plus discovery of
// the yt-dlp/ffmpeg sidecar binaries.
package app

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Paths holds all application directory paths rooted at the data directory.
type Paths struct {
	DataDir string // data/ (Store, logs/, cookies.txt)
	ExeDir  string // directory containing the running executable (sidecar lookup)
}

// GetPaths resolves Paths relative to the running executable, creating
// nothing on disk; callers call EnsureDirectories explicitly.
func GetPaths() (*Paths, error) {
	exePath, err := os.Executable()
	if err != nil {
		return nil, err
	}
	exeDir := filepath.Dir(exePath)

	return &Paths{
		DataDir: filepath.Join(exeDir, "data"),
		ExeDir:  exeDir,
	}, nil
}

// EnsureDirectories creates the directories reaper owns outright (not the
// user-configured download_dir/temp_dir, which Config validates separately).
func (p *Paths) EnsureDirectories() error {
	dirs := []string{p.DataDir, filepath.Join(p.DataDir, "logs")}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// LogsDir returns the directory holding per-job logs.
func (p *Paths) LogsDir() string {
	return filepath.Join(p.DataDir, "logs")
}

// CookiesFile returns the optional cookie file path passed through to the
// extractor when non-empty.
func (p *Paths) CookiesFile() string {
	return filepath.Join(p.DataDir, "cookies.txt")
}

// getSidecarPaths returns candidate locations for a binary shipped
// alongside the reaper executable, in priority order.
func (p *Paths) getSidecarPaths(binaryName string) []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			filepath.Join(p.ExeDir, "..", "Resources", "bin", binaryName),
			filepath.Join(p.ExeDir, binaryName),
		}
	default:
		return []string{
			filepath.Join(p.ExeDir, binaryName),
			filepath.Join(p.ExeDir, "bin", binaryName),
		}
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

// ResolveBinary locates an external binary: an explicit configured path
// wins, then a sidecar next to the executable, then $PATH.
func (p *Paths) ResolveBinary(name, configured string) (string, error) {
	exeName := name
	if runtime.GOOS == "windows" {
		exeName = name + ".exe"
	}

	if configured != "" {
		if fileExists(configured) {
			return configured, nil
		}
	}

	for _, candidate := range p.getSidecarPaths(exeName) {
		if fileExists(candidate) {
			return candidate, nil
		}
	}

	return exec.LookPath(exeName)
}
