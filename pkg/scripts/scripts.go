// Package scripts runs timed and non-timed scripts attached to game objects.
//
// A script with a zero Interval is non-timed: it exists only to carry state
// and is listed, never fired. Timed scripts sit in a queue sorted by their
// next run time and are fired by Run.
package scripts

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/crystal-mush/mushkit/pkg/gamedb"
)

// Func is the body of a script. A returned error stops the script.
type Func func(ctx context.Context, s *Script) error

// Record is the persistable part of a script.
type Record struct {
	ID         int
	Key        string
	Desc       string
	Obj        gamedb.DBRef // Nothing for global scripts
	Interval   time.Duration
	Repeats    int // 0 repeats forever
	Persistent bool
	Created    time.Time
}

// Script is a scheduled unit of work.
type Script struct {
	Record
	NextRun time.Time
	Runs    int
	Func    Func
}

// Timed reports whether the script fires on an interval.
func (s *Script) Timed() bool {
	return s.Interval > 0
}

// RemainingRepeats returns how many runs are left, or -1 for unlimited.
func (s *Script) RemainingRepeats() int {
	if s.Repeats <= 0 {
		return -1
	}
	return s.Repeats - s.Runs
}

// Persister stores script records that survive a restart.
type Persister interface {
	PutScript(rec *Record) error
	DeleteScript(id int) error
}

// Handler owns every running script.
type Handler struct {
	mu      sync.Mutex
	nextID  int
	scripts map[int]*Script
	timed   []*Script // sorted by NextRun
	funcs   map[string]Func
	store   Persister
	locker  sync.Locker // held while a script fires, may be nil
	now     func() time.Time
}

// NewHandler creates an empty script handler.
func NewHandler() *Handler {
	return &Handler{
		nextID:  1,
		scripts: make(map[int]*Script),
		funcs:   make(map[string]Func),
		now:     time.Now,
	}
}

// SetPersister attaches a store for persistent scripts.
func (h *Handler) SetPersister(p Persister) {
	h.mu.Lock()
	h.store = p
	h.mu.Unlock()
}

// SetLocker makes every script fire while holding l. Functions that share
// state with the game hold the same lock, so scripts never run alongside
// them.
func (h *Handler) SetLocker(l sync.Locker) {
	h.mu.Lock()
	h.locker = l
	h.mu.Unlock()
}

// Register makes fn available to scripts with the given key, so persisted
// scripts can be restored by key after a restart.
func (h *Handler) Register(key string, fn Func) {
	h.mu.Lock()
	h.funcs[key] = fn
	h.mu.Unlock()
}

// Add starts a script, assigning it an id. A script without a Func takes
// the one registered under its key.
func (h *Handler) Add(s *Script) (*Script, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.Func == nil {
		s.Func = h.funcs[s.Key]
	}
	if s.Timed() && s.Func == nil {
		return nil, fmt.Errorf("scripts: no function registered for %q", s.Key)
	}
	if _, taken := h.scripts[s.ID]; s.ID == 0 || taken {
		// A restored record whose id is in use moves to a fresh one.
		if taken && s.Persistent && h.store != nil {
			if err := h.store.DeleteScript(s.ID); err != nil {
				log.Printf("scripts: drop stale id %d: %v", s.ID, err)
			}
		}
		s.ID = h.nextID
	}
	if s.ID >= h.nextID {
		h.nextID = s.ID + 1
	}
	if s.Created.IsZero() {
		s.Created = h.now()
	}
	h.scripts[s.ID] = s
	if s.Timed() {
		if s.NextRun.IsZero() {
			s.NextRun = h.now().Add(s.Interval)
		}
		h.scheduleLocked(s)
	}
	if s.Persistent && h.store != nil {
		if err := h.store.PutScript(&s.Record); err != nil {
			log.Printf("scripts: persist %d (%s): %v", s.ID, s.Key, err)
		}
	}
	return s, nil
}

// Restore re-adds persisted records. Records whose key has no registered
// function are kept as non-timed so they stay visible.
func (h *Handler) Restore(recs []Record) int {
	restored := 0
	for _, rec := range recs {
		s := &Script{Record: rec}
		h.mu.Lock()
		_, known := h.funcs[rec.Key]
		h.mu.Unlock()
		if s.Timed() && !known {
			log.Printf("scripts: %d (%s) has no registered function, loading as non-timed", rec.ID, rec.Key)
			s.Interval = 0
		}
		if _, err := h.Add(s); err == nil {
			restored++
		}
	}
	return restored
}

// scheduleLocked inserts s into the timed queue, keeping it sorted by NextRun.
func (h *Handler) scheduleLocked(s *Script) {
	i := sort.Search(len(h.timed), func(i int) bool {
		return s.NextRun.Before(h.timed[i].NextRun)
	})
	h.timed = append(h.timed, nil)
	copy(h.timed[i+1:], h.timed[i:])
	h.timed[i] = s
}

func (h *Handler) unscheduleLocked(id int) {
	for i, s := range h.timed {
		if s.ID == id {
			h.timed = append(h.timed[:i], h.timed[i+1:]...)
			return
		}
	}
}

// Stop removes a script by id. Returns false if it was not running.
func (h *Handler) Stop(id int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopLocked(id)
}

func (h *Handler) stopLocked(id int) bool {
	s, ok := h.scripts[id]
	if !ok {
		return false
	}
	delete(h.scripts, id)
	h.unscheduleLocked(id)
	if s.Persistent && h.store != nil {
		if err := h.store.DeleteScript(id); err != nil {
			log.Printf("scripts: unpersist %d: %v", id, err)
		}
	}
	return true
}

// StopObject removes every script attached to obj.
func (h *Handler) StopObject(obj gamedb.DBRef) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	stopped := 0
	for id, s := range h.scripts {
		if s.Obj == obj && h.stopLocked(id) {
			stopped++
		}
	}
	return stopped
}

// Get returns a script by id.
func (h *Handler) Get(id int) (*Script, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.scripts[id]
	return s, ok
}

// All returns every script ordered by id.
func (h *Handler) All() []*Script {
	return h.filter(func(*Script) bool { return true })
}

// Timed returns the interval-driven scripts ordered by id.
func (h *Handler) Timed() []*Script {
	return h.filter((*Script).Timed)
}

// NonTimed returns the scripts without an interval ordered by id.
func (h *Handler) NonTimed() []*Script {
	return h.filter(func(s *Script) bool { return !s.Timed() })
}

// Find returns scripts whose key matches, or that sit on obj.
func (h *Handler) Find(key string, obj gamedb.DBRef) []*Script {
	return h.filter(func(s *Script) bool {
		return (key != "" && s.Key == key) || (obj != gamedb.Nothing && s.Obj == obj)
	})
}

func (h *Handler) filter(keep func(*Script) bool) []*Script {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*Script
	for _, s := range h.scripts {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns how many scripts are running.
func (h *Handler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.scripts)
}

// popDue removes and returns the timed scripts whose time has come.
func (h *Handler) popDue(now time.Time) ([]*Script, sync.Locker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cutoff := 0
	for i, s := range h.timed {
		if s.NextRun.After(now) {
			break
		}
		cutoff = i + 1
	}
	due := append([]*Script(nil), h.timed[:cutoff]...)
	h.timed = h.timed[cutoff:]
	return due, h.locker
}

// RunDue fires every script that is due. Returns the number fired.
func (h *Handler) RunDue(ctx context.Context) int {
	now := h.now()
	due, locker := h.popDue(now)
	for i, s := range due {
		if ctx.Err() != nil {
			h.requeue(due[i:])
			return i
		}
		h.runOne(ctx, now, s, locker)
	}
	return len(due)
}

func (h *Handler) runOne(ctx context.Context, now time.Time, s *Script, locker sync.Locker) {
	if locker != nil {
		locker.Lock()
		defer locker.Unlock()
	}
	err := h.fire(ctx, s)

	h.mu.Lock()
	defer h.mu.Unlock()
	s.Runs++
	if _, still := h.scripts[s.ID]; !still {
		return
	}
	if err != nil || (s.Repeats > 0 && s.Runs >= s.Repeats) {
		if err != nil {
			log.Printf("scripts: %d (%s) stopped: %v", s.ID, s.Key, err)
		}
		h.stopLocked(s.ID)
		return
	}
	s.NextRun = now.Add(s.Interval)
	h.scheduleLocked(s)
}

// requeue puts popped scripts that did not fire back on the queue.
func (h *Handler) requeue(rest []*Script) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range rest {
		if _, still := h.scripts[s.ID]; still {
			h.scheduleLocked(s)
		}
	}
}

func (h *Handler) fire(ctx context.Context, s *Script) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Func(ctx, s)
}

// Run fires due scripts until ctx is cancelled.
func (h *Handler) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.RunDue(ctx)
		}
	}
}
