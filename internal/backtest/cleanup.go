package backtest

import (
	"os"
	"path/filepath"
	"sort"
	"time"
)

// CleanupScratch removes staged strategy files older than the configured
// age. Failures are logged and skipped; the count of deleted files is
// returned.
func (r *Runner) CleanupScratch() int {
	dir := r.ScratchDir()
	matches, err := filepath.Glob(filepath.Join(dir, "analysis_strategy_*.py"))
	if err != nil {
		r.logger.WithError(err).WithField("dir", dir).Warn("Failed to scan scratch dir")
		return 0
	}

	deleted := 0
	now := time.Now()
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			r.logger.WithError(err).WithField("file", path).Warn("Failed to stat scratch file")
			continue
		}
		if now.Sub(info.ModTime()) <= r.config.ScratchMaxAge {
			continue
		}
		if err := os.Remove(path); err != nil {
			r.logger.WithError(err).WithField("file", path).Warn("Failed to remove scratch file")
			continue
		}
		deleted++
	}
	return deleted
}

// CleanupResults trims the result directory down to the configured number of
// most recent files. Failures are logged and skipped; the count of deleted
// files is returned.
func (r *Runner) CleanupResults() int {
	dir := r.ResultsDir()
	matches, err := filepath.Glob(filepath.Join(dir, "backtest_*.json"))
	if err != nil {
		r.logger.WithError(err).WithField("dir", dir).Warn("Failed to scan results dir")
		return 0
	}

	type aged struct {
		path    string
		modTime time.Time
	}
	files := make([]aged, 0, len(matches))
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			r.logger.WithError(err).WithField("file", path).Warn("Failed to stat result file")
			continue
		}
		files = append(files, aged{path: path, modTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })

	deleted := 0
	for i := r.config.ResultsMaxFiles; i < len(files); i++ {
		if err := os.Remove(files[i].path); err != nil {
			r.logger.WithError(err).WithField("file", files[i].path).Warn("Failed to remove result file")
			continue
		}
		deleted++
	}
	return deleted
}
