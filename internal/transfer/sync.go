// Package transfer mirrors a local directory tree onto a remote host.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/yz4230/shipyard/internal/metrics"
	"github.com/yz4230/shipyard/internal/remote"
)

type Options struct {
	// Backup copies the existing remote root aside before writing.
	Backup bool
	// PreserveTopFolder uploads into remoteDir/<basename of localDir> instead of remoteDir.
	PreserveTopFolder bool
	// Exclude adds patterns to DefaultExcludes.
	Exclude []string
	// OnProgress is called before each file is sent.
	OnProgress func(Progress)
	// OnFileDone is called after each file is sent.
	OnFileDone func(Progress)
	Now        func() time.Time
}

// Progress describes the upload state around one file. Counters include the file only in
// OnFileDone events.
type Progress struct {
	File        string
	LocalPath   string
	RemotePath  string
	FileSize    int64
	FilesDone   int
	TotalFiles  int
	BytesDone   int64
	TotalBytes  int64
	FilePercent int
	BytePercent int
}

type Outcome struct {
	RemoteRoot string
	BackupPath string
	Files      int
	Bytes      int64
	Duration   time.Duration
}

type planEntry struct {
	local  string
	remote string
	dir    bool
	size   int64
}

// Upload copies localDir to remoteDir over s. The first failing file aborts the upload.
func Upload(ctx context.Context, s remote.Session, localDir, remoteDir string, opts Options) (Outcome, error) {
	start := time.Now()
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	info, err := os.Stat(localDir)
	if err != nil {
		return Outcome{}, fmt.Errorf("local directory %s: %w", localDir, err)
	}
	if !info.IsDir() {
		return Outcome{}, fmt.Errorf("local path %s is not a directory", localDir)
	}
	if remoteDir == "" {
		return Outcome{}, errors.New("remote directory is empty")
	}

	root := path.Clean(remoteDir)
	if opts.PreserveTopFolder {
		root = path.Join(root, filepath.Base(filepath.Clean(localDir)))
	}
	out := Outcome{RemoteRoot: root}

	matcher, err := NewMatcher(opts.Exclude...)
	if err != nil {
		return out, fmt.Errorf("exclude patterns: %w", err)
	}
	plan, totalBytes, totalFiles, err := buildPlan(localDir, root, matcher)
	if err != nil {
		return out, err
	}

	if opts.Backup {
		if out.BackupPath, err = remote.BackupDirectory(ctx, s, root, now()); err != nil {
			return out, err
		}
	}
	if err := s.MkdirAll(ctx, root); err != nil {
		return out, fmt.Errorf("create remote directory %s: %w", root, err)
	}

	p := Progress{TotalFiles: totalFiles, TotalBytes: totalBytes}
	for _, e := range plan {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if e.dir {
			if err := s.MkdirAll(ctx, e.remote); err != nil {
				return out, fmt.Errorf("create remote directory %s: %w", e.remote, err)
			}
			continue
		}

		p.File = filepath.Base(e.local)
		p.LocalPath = e.local
		p.RemotePath = e.remote
		p.FileSize = e.size
		p.setPercent()
		if opts.OnProgress != nil {
			opts.OnProgress(p)
		}

		if err := s.PutFile(ctx, e.local, e.remote); err != nil {
			return out, fmt.Errorf("upload %s: %w", e.local, err)
		}

		p.FilesDone++
		p.BytesDone += e.size
		p.setPercent()
		out.Files = p.FilesDone
		out.Bytes = p.BytesDone
		metrics.UploadedFilesTotal.Inc()
		metrics.UploadedBytesTotal.Add(float64(e.size))
		if opts.OnFileDone != nil {
			opts.OnFileDone(p)
		}
	}

	out.Duration = time.Since(start)
	return out, nil
}

func (p *Progress) setPercent() {
	p.FilePercent = percent(int64(p.FilesDone), int64(p.TotalFiles))
	p.BytePercent = percent(p.BytesDone, p.TotalBytes)
}

func percent(done, total int64) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}

// buildPlan walks localDir once. Sizes recorded here are the ones accounted during upload,
// which keeps the byte totals consistent with the per-file deltas.
func buildPlan(localDir, remoteRoot string, m *Matcher) ([]planEntry, int64, int, error) {
	var (
		plan  []planEntry
		bytes int64
		files int
	)
	err := filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		excluded, err := m.Excluded(rel)
		if err != nil {
			return err
		}
		if excluded {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		target := path.Join(remoteRoot, filepath.ToSlash(rel))
		switch {
		case d.IsDir():
			plan = append(plan, planEntry{local: p, remote: target, dir: true})
		case d.Type().IsRegular():
			fi, err := d.Info()
			if err != nil {
				return err
			}
			plan = append(plan, planEntry{local: p, remote: target, size: fi.Size()})
			bytes += fi.Size()
			files++
		}
		return nil
	})
	if err != nil {
		return nil, 0, 0, fmt.Errorf("scan %s: %w", localDir, err)
	}
	return plan, bytes, files, nil
}
