package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// maxDiscoverDepth bounds how deep discovery walks below a search dir.
const maxDiscoverDepth = 4

// Discovery lists agent log locations found on this host.
type Discovery struct {
	Dirs  []string `yaml:"dirs"`
	Files []string `yaml:"files"`
}

func userHome() string {
	if v := os.Getenv("USERPROFILE"); v != "" {
		return v
	}
	return os.Getenv("HOME")
}

// searchDirs returns the existing well-known agent state directories.
func searchDirs() []string {
	var candidates []string
	if home := userHome(); home != "" {
		candidates = append(candidates, filepath.Join(home, ".openclaw"))
	}
	if v := os.Getenv("LOCALAPPDATA"); v != "" {
		candidates = append(candidates, filepath.Join(v, "OpenClaw"))
	}
	if v := os.Getenv("APPDATA"); v != "" {
		candidates = append(candidates, filepath.Join(v, "OpenClaw"))
	}

	var dirs []string
	for _, d := range candidates {
		if info, err := os.Stat(d); err == nil && info.IsDir() {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// findLogs walks dir (depth-limited) collecting .log/.txt files. Unreadable
// entries are skipped.
func findLogs(dir string) []string {
	var logs []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != dir {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			rel, relErr := filepath.Rel(dir, path)
			if relErr == nil && rel != "." && strings.Count(rel, string(filepath.Separator)) >= maxDiscoverDepth-1 {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && IsLogFile(path) {
			logs = append(logs, path)
		}
		return nil
	})
	return logs
}

// pathsFromOutput returns existing .log/.txt files mentioned in CLI output.
func pathsFromOutput(text string) []string {
	var paths []string
	for _, tok := range strings.Fields(text) {
		tok = strings.Trim(tok, `"'(),;[]`)
		if !IsLogFile(tok) {
			continue
		}
		p := filepath.Clean(tok)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			paths = append(paths, p)
		}
	}
	return paths
}

// Discover searches the well-known agent directories and, when runner is
// non-nil, paths mentioned by the companion CLI. It never fails.
func Discover(ctx context.Context, runner Runner) Discovery {
	var d Discovery
	seen := make(map[string]bool)
	addFile := func(p string) {
		if !seen[p] {
			seen[p] = true
			d.Files = append(d.Files, p)
		}
	}

	for _, dir := range searchDirs() {
		d.Dirs = append(d.Dirs, dir)
		for _, f := range findLogs(dir) {
			addFile(f)
		}
	}

	if runner != nil {
		for _, args := range [][]string{gatewayStatusArgs, statusAllArgs} {
			res := runner.Run(ctx, args...)
			for _, p := range pathsFromOutput(res.Output()) {
				addFile(p)
			}
		}
	}
	return d
}

// DefaultLogPath is the fallback target when nothing is discovered.
func DefaultLogPath() string {
	home := userHome()
	if home == "" {
		home = "."
	}
	return filepath.Join(home, "openclaw", "logs", "openclaw.log")
}

// ResolveLogTarget returns explicit made absolute when set (file or
// directory, existing or not). Otherwise it returns the most recently
// modified discovered file, then the first discovered directory, then
// DefaultLogPath.
func ResolveLogTarget(ctx context.Context, explicit string, runner Runner) string {
	if explicit != "" {
		if abs, err := filepath.Abs(explicit); err == nil {
			return abs
		}
		return explicit
	}

	d := Discover(ctx, runner)
	if newest := newestFile(d.Files); newest != "" {
		return newest
	}
	if len(d.Dirs) > 0 {
		return d.Dirs[0]
	}
	return DefaultLogPath()
}

func newestFile(paths []string) string {
	type candidate struct {
		path string
		mod  time.Time
	}
	var list []candidate
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			list = append(list, candidate{p, info.ModTime()})
		}
	}
	if len(list) == 0 {
		return ""
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].mod.After(list[j].mod) })
	return list[0].path
}
