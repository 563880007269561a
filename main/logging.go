/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	logging.go: Log to file and stdout, watch log file size and rotate, delete old logs
*/

package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ricochet2200/go-disk-usage/du"
	"github.com/sirupsen/logrus"
)

const (
	maxLogSize   = 10 * 1024 * 1024 // rotate above
	minFreeBytes = 50 * 1024 * 1024 // leave free on the log partition
	maxLogFiles  = 9
	logCheck     = 30 * time.Second
)

// logFile owns the open log and its rotated siblings.
type logFile struct {
	path   string
	handle *os.File
	log    *logrus.Logger
}

func (l *logFile) rotated() []string {
	dir := filepath.Dir(l.path)
	base := filepath.Base(l.path)
	logs := make([]string, 0)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return logs
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), base+".") {
			logs = append(logs, filepath.Join(dir, e.Name()))
		}
	}
	// Oldest last.
	sort.Slice(logs, func(i, j int) bool { return logNum(logs[i]) < logNum(logs[j]) })
	return logs
}

func logNum(path string) int {
	n, err := strconv.Atoi(path[strings.LastIndex(path, ".")+1:])
	if err != nil {
		return -1
	}
	return n
}

func (l *logFile) rotate() {
	logs := l.rotated()

	// rename suffix, remove if > maxLogFiles
	for i := len(logs) - 1; i >= 0; i-- {
		n := logNum(logs[i])
		if n < 0 {
			continue
		}
		if n >= maxLogFiles {
			os.Remove(logs[i])
		} else {
			os.Rename(logs[i], l.path+"."+strconv.Itoa(n+1))
		}
	}

	// Now rename current log file and re-open
	os.Rename(l.path, l.path+".1")
	l.open()
}

func (l *logFile) deleteOldest() int64 {
	logs := l.rotated()
	if len(logs) == 0 {
		return 0
	}
	oldest := logs[len(logs)-1]
	stat, err := os.Stat(oldest)
	if err != nil {
		return 0
	}
	if err := os.Remove(oldest); err != nil {
		return 0
	}
	return stat.Size()
}

func (l *logFile) open() {
	old := l.handle
	fp, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		l.log.Errorf("Failed to open '%s': %s", l.path, err)
		return
	}
	l.handle = fp
	l.log.SetOutput(io.MultiWriter(fp, os.Stdout))
	if old != nil {
		old.Close()
	}
}

// check rotates an oversized log and frees disk space.
func (l *logFile) check() {
	if st, err := os.Stat(l.path); err == nil && st.Size() > maxLogSize {
		l.rotate()
	}

	usage := du.NewDiskUsage(filepath.Dir(l.path))
	freeBytes := int64(usage.Free())
	for freeBytes < minFreeBytes {
		deleted := l.deleteOldest()
		if deleted == 0 {
			break
		}
		freeBytes += deleted
	}
}

func (l *logFile) watch(ctx context.Context) {
	ticker := time.NewTicker(logCheck)
	defer ticker.Stop()
	for {
		l.check()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// initLogging sends log to path as well as stdout. An empty path keeps
// stdout only.
func initLogging(ctx context.Context, log *logrus.Logger, path string) *logFile {
	if path == "" {
		return nil
	}
	l := &logFile{path: path, log: log}
	l.open()
	go l.watch(ctx)
	return l
}
