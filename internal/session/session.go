// Package session keeps processed presentations in memory until their video
// is requested or they expire.
package session

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nikhilbhutani/slidecast/internal/models"
)

// Session is one processed presentation and the scratch directory holding its
// artifacts.
type Session struct {
	ID        string
	Filename  string
	Slides    []models.SlideRecord
	Scripts   []models.ScriptItem
	Audio     []models.AudioArtifact
	Dir       string
	CreatedAt time.Time

	closeOnce sync.Once
	closeErr  error
}

// Close removes the scratch directory. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = os.RemoveAll(s.Dir)
	})
	return s.closeErr
}

// AudioNames returns the audio file base names in slide order.
func (s *Session) AudioNames() []string {
	names := make([]string, len(s.Audio))
	for i, a := range s.Audio {
		names[i] = filepath.Base(a.Path)
	}
	return names
}

// Store is a concurrency-safe map of live sessions.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
	logger   *slog.Logger
}

func NewStore(logger *slog.Logger) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		now:      time.Now,
		logger:   logger,
	}
}

// Put stores s, replacing and closing any session with the same ID.
func (st *Store) Put(s *Session) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = st.now()
	}
	st.mu.Lock()
	old := st.sessions[s.ID]
	st.sessions[s.ID] = s
	st.mu.Unlock()

	if old != nil && old != s {
		st.close(old)
	}
}

func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Take removes and returns the session. Of several concurrent callers only
// one gets it; the caller owns its teardown.
func (st *Store) Take(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if ok {
		delete(st.sessions, id)
	}
	return s, ok
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep deletes sessions created more than maxAge ago and returns how many
// were removed.
func (st *Store) Sweep(maxAge time.Duration) int {
	cutoff := st.now().Add(-maxAge)

	st.mu.Lock()
	var expired []*Session
	for id, s := range st.sessions {
		if s.CreatedAt.Before(cutoff) {
			expired = append(expired, s)
			delete(st.sessions, id)
		}
	}
	st.mu.Unlock()

	for _, s := range expired {
		st.logger.Info("session expired", "presentation_id", s.ID, "age", st.now().Sub(s.CreatedAt).Round(time.Second))
		st.close(s)
	}
	return len(expired)
}

// RunJanitor sweeps every interval until ctx is done. Non-positive settings
// disable it.
func (st *Store) RunJanitor(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 || maxAge <= 0 {
		st.logger.Warn("session janitor disabled", "interval", interval, "max_age", maxAge)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := st.Sweep(maxAge); n > 0 {
				st.logger.Info("janitor sweep", "removed", n, "remaining", st.Len())
			}
		}
	}
}

// Close tears down every session. Used on shutdown.
func (st *Store) Close() {
	st.mu.Lock()
	all := st.sessions
	st.sessions = make(map[string]*Session)
	st.mu.Unlock()

	for _, s := range all {
		st.close(s)
	}
}

func (st *Store) close(s *Session) {
	if err := s.Close(); err != nil {
		st.logger.Error("remove session dir", "presentation_id", s.ID, "dir", s.Dir, "error", err)
	}
}
