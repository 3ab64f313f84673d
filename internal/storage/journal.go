// Package storage persists run progress without holding up the pipeline.
package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/yz4230/shipyard/internal/entity"
)

const (
	defaultBacklog = 1024
	writeTimeout   = 10 * time.Second
)

// Writer is the durable store behind a journal.
type Writer interface {
	UpdateFields(ctx context.Context, id entity.ID, patch entity.DeploymentPatch) error
	AppendLog(ctx context.Context, id entity.ID, line string) error
}

type op struct {
	patch *entity.DeploymentPatch
	line  string
}

// Journal applies the writes of one run in order on a background goroutine. Write
// failures are logged and otherwise ignored.
type Journal struct {
	w   Writer
	id  entity.ID
	log zerolog.Logger

	ops       chan op
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func NewJournal(w Writer, id entity.ID, log zerolog.Logger) *Journal {
	j := &Journal{
		w:    w,
		id:   id,
		log:  log.With().Str("run_id", id.String()).Logger(),
		ops:  make(chan op, defaultBacklog),
		done: make(chan struct{}),
	}
	go j.loop()
	return j
}

// Patch queues a field update. It waits for room in the backlog.
func (j *Journal) Patch(p entity.DeploymentPatch) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	j.ops <- op{patch: &p}
}

// Append queues a log line. The line is dropped when the backlog is full.
func (j *Journal) Append(line string) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.ops <- op{line: line}:
	default:
		j.log.Warn().Msg("persistence backlog full, dropping log line")
	}
}

// Close stops accepting writes and waits until queued ones are applied or ctx is done.
func (j *Journal) Close(ctx context.Context) error {
	j.closeOnce.Do(func() {
		j.mu.Lock()
		j.closed = true
		close(j.ops)
		j.mu.Unlock()
	})
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Journal) loop() {
	defer close(j.done)
	for o := range j.ops {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		var err error
		if o.patch != nil {
			err = j.w.UpdateFields(ctx, j.id, *o.patch)
		} else {
			err = j.w.AppendLog(ctx, j.id, o.line)
		}
		cancel()
		if err != nil {
			j.log.Error().Err(err).Msg("failed to persist deployment progress")
		}
	}
}
