package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"postbot/internal/model"
)

// ExecuteFunc is invoked once per due trigger, asynchronously.
type ExecuteFunc func(ctx context.Context, postID int64)

type entryKey struct {
	postID int64
	index  int
}

type entry struct {
	cronID cron.EntryID
	timer  *time.Timer
}

// Registry is the in-memory schedule of pending fire instants, keyed by
// (post, index). It holds no durable state: it is rebuilt from the store on
// every start and must never be treated as authoritative.
//
// Re-registering a post atomically replaces its prior entries, so an edit can
// never leave duplicate fires behind. Unregister is an idempotent no-op for
// unknown posts, and a fire already in flight is allowed to complete.
type Registry struct {
	log  zerolog.Logger
	exec ExecuteFunc

	// SizeHook, when set before Start, observes the entry count after every
	// mutation (used for the scheduled-jobs gauge).
	SizeHook func(int)

	mu      sync.Mutex
	c       *cron.Cron
	entries map[entryKey]entry
	ctx     context.Context
	started bool
}

func NewRegistry(exec ExecuteFunc, log zerolog.Logger) *Registry {
	return &Registry{
		log:     log,
		exec:    exec,
		c:       cron.New(),
		entries: map[entryKey]entry{},
		ctx:     context.Background(),
	}
}

func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	if ctx != nil {
		r.ctx = ctx
	}
	r.c.Start()
	r.log.Info().Msg("job registry started")
}

func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	r.started = false
	for k, e := range r.entries {
		r.removeLocked(k, e)
	}
	<-r.c.Stop().Done()
	r.log.Info().Msg("job registry stopped")
}

// Register resolves the post's recurrence rule in the given timezone and
// installs one trigger per instant, replacing any prior entries for the post.
// A malformed post is skipped with a warning so one bad row cannot break
// bootstrap for the rest; the skip is also the only outcome for inactive and
// instant posts.
func (r *Registry) Register(p model.Post, tzName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.unregisterLocked(p.ID)

	if !p.IsActive {
		return
	}
	loc := loadLocation(tzName, r.log)
	triggers, err := Resolve(p, loc)
	if err != nil {
		r.log.Warn().Int64("post", p.ID).Err(err).Msg("skipping unschedulable post")
		return
	}

	for _, t := range triggers {
		key := entryKey{postID: p.ID, index: t.Index}
		if t.Recurring() {
			id, err := r.c.AddFunc(t.Spec, r.fireFunc(p.ID))
			if err != nil {
				r.log.Warn().Int64("post", p.ID).Str("spec", t.Spec).Err(err).Msg("bad cron spec, entry skipped")
				continue
			}
			r.entries[key] = entry{cronID: id}
		} else {
			// Past-dated once instants fire immediately (non-positive delay).
			delay := time.Until(t.RunAt)
			if delay < 0 {
				delay = 0
			}
			tm := time.AfterFunc(delay, func() {
				r.dropEntry(key)
				r.fire(p.ID)
			})
			r.entries[key] = entry{timer: tm}
		}
	}
	r.log.Debug().Int64("post", p.ID).Int("triggers", len(triggers)).Msg("post registered")
	r.notifySizeLocked()
}

// Unregister removes every entry for the post. Safe to call when none exist.
func (r *Registry) Unregister(postID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregisterLocked(postID)
	r.notifySizeLocked()
}

func (r *Registry) unregisterLocked(postID int64) {
	for k, e := range r.entries {
		if k.postID == postID {
			r.removeLocked(k, e)
		}
	}
}

func (r *Registry) removeLocked(k entryKey, e entry) {
	if e.timer != nil {
		e.timer.Stop()
	} else {
		r.c.Remove(e.cronID)
	}
	delete(r.entries, k)
}

func (r *Registry) dropEntry(k entryKey) {
	r.mu.Lock()
	delete(r.entries, k)
	r.notifySizeLocked()
	r.mu.Unlock()
}

// Jobs reports how many entries are registered for the post.
func (r *Registry) Jobs(postID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k := range r.entries {
		if k.postID == postID {
			n++
		}
	}
	return n
}

// Size reports the total number of registered entries.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) fireFunc(postID int64) func() {
	return func() { r.fire(postID) }
}

// fire hands the post to the executor without blocking the cron loop, so a
// slow dispatch cannot delay other due triggers.
func (r *Registry) fire(postID int64) {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()
	go r.exec(ctx, postID)
}

func (r *Registry) notifySizeLocked() {
	if r.SizeHook != nil {
		r.SizeHook(len(r.entries))
	}
}

func loadLocation(tz string, log zerolog.Logger) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn().Str("tz", tz).Err(err).Msg("invalid timezone, falling back to UTC")
		return time.UTC
	}
	return loc
}
