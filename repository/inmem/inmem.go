// Package inmem is a map-backed implementation of the engine's store,
// used by tests and by the server's memory storage mode. Transactions
// are simulated by snapshotting the tables and restoring them when the
// transaction function fails.
package inmem

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ahmadzakiakmal/timetrack/engine"
	"github.com/ahmadzakiakmal/timetrack/repository/models"
)

type tables struct {
	tasks      map[string]*models.Task
	sessions   map[string]*models.TimeSession
	categories map[string]*models.Category
	links      map[string]*models.TaskLink
	users      map[string]*models.User
}

func newTables() *tables {
	return &tables{
		tasks:      make(map[string]*models.Task),
		sessions:   make(map[string]*models.TimeSession),
		categories: make(map[string]*models.Category),
		links:      make(map[string]*models.TaskLink),
		users:      make(map[string]*models.User),
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.tasks {
		c.tasks[k] = copyTask(v)
	}
	for k, v := range t.sessions {
		c.sessions[k] = copySession(v)
	}
	for k, v := range t.categories {
		cat := *v
		c.categories[k] = &cat
	}
	for k, v := range t.links {
		l := *v
		c.links[k] = &l
	}
	for k, v := range t.users {
		u := *v
		c.users[k] = &u
	}
	return c
}

func copyTask(t *models.Task) *models.Task {
	c := *t
	if t.CategoryID != nil {
		id := *t.CategoryID
		c.CategoryID = &id
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	c.Tags = append([]string(nil), t.Tags...)
	c.Sessions = nil
	c.Links = nil
	return &c
}

func copySession(s *models.TimeSession) *models.TimeSession {
	c := *s
	if s.EndedAt != nil {
		at := *s.EndedAt
		c.EndedAt = &at
	}
	return &c
}

// Store keeps all state in process memory behind one mutex.
type Store struct {
	mu     sync.Mutex
	locked bool
	db     *tables
}

var _ engine.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{db: newTables()}
}

func (s *Store) lock() func() {
	if s.locked {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// Atomic snapshots the tables, runs fn against a view that shares them,
// and restores the snapshot if fn fails.
func (s *Store) Atomic(ctx context.Context, fn func(engine.Store) error) error {
	defer s.lock()()
	snap := s.db.clone()
	tx := &Store{locked: true, db: s.db}
	if err := fn(tx); err != nil {
		*s.db = *snap
		return err
	}
	return nil
}

// ---- tasks ----

func (s *Store) InsertTask(ctx context.Context, t *models.Task) error {
	defer s.lock()()
	s.db.tasks[t.ID] = copyTask(t)
	return nil
}

func (s *Store) UpdateTask(ctx context.Context, t *models.Task) error {
	defer s.lock()()
	if _, ok := s.db.tasks[t.ID]; !ok {
		return models.ErrNotFound
	}
	s.db.tasks[t.ID] = copyTask(t)
	return nil
}

func (s *Store) SetTaskStatus(ctx context.Context, taskID string, st models.TaskStatus, now time.Time) error {
	defer s.lock()()
	t, ok := s.db.tasks[taskID]
	if !ok {
		return models.ErrNotFound
	}
	t.Status = st
	t.UpdatedAt = now
	if st == models.StatusCompleted {
		at := now
		t.CompletedAt = &at
	} else {
		t.CompletedAt = nil
	}
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	defer s.lock()()
	t, ok := s.db.tasks[taskID]
	if !ok || t.OwnerID != ownerID {
		return models.ErrNotFound
	}
	delete(s.db.tasks, taskID)
	for id, sess := range s.db.sessions {
		if sess.TaskID == taskID {
			delete(s.db.sessions, id)
		}
	}
	return nil
}

func (s *Store) TaskByID(ctx context.Context, ownerID, taskID string) (*models.Task, error) {
	defer s.lock()()
	t, ok := s.db.tasks[taskID]
	if !ok || t.OwnerID != ownerID {
		return nil, models.ErrNotFound
	}
	return copyTask(t), nil
}

func (s *Store) ListTasks(ctx context.Context, ownerID string, f engine.TaskFilter) ([]models.Task, error) {
	defer s.lock()()
	var out []models.Task
	for _, t := range s.db.tasks {
		if t.OwnerID != ownerID {
			continue
		}
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		if f.Priority != nil && t.Priority != *f.Priority {
			continue
		}
		if f.CategoryID != nil {
			if t.CategoryID == nil || *t.CategoryID != *f.CategoryID {
				continue
			}
		}
		out = append(out, *copyTask(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) TasksByStatus(ctx context.Context, ownerID string, st models.TaskStatus) ([]models.Task, error) {
	return s.ListTasks(ctx, ownerID, engine.TaskFilter{Status: &st})
}

func (s *Store) CountTasksByCategory(ctx context.Context, ownerID, categoryID string) (int64, error) {
	defer s.lock()()
	var n int64
	for _, t := range s.db.tasks {
		if t.OwnerID == ownerID && t.CategoryID != nil && *t.CategoryID == categoryID {
			n++
		}
	}
	return n, nil
}

func (s *Store) AddTaskTime(ctx context.Context, taskID string, seconds int64, now time.Time) error {
	defer s.lock()()
	t, ok := s.db.tasks[taskID]
	if !ok {
		return models.ErrNotFound
	}
	t.TotalTime += seconds
	t.UpdatedAt = now
	return nil
}

// ---- sessions ----

func (s *Store) InsertSession(ctx context.Context, sess *models.TimeSession) error {
	defer s.lock()()
	s.db.sessions[sess.ID] = copySession(sess)
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, sess *models.TimeSession) error {
	defer s.lock()()
	if _, ok := s.db.sessions[sess.ID]; !ok {
		return models.ErrNotFound
	}
	s.db.sessions[sess.ID] = copySession(sess)
	return nil
}

func (s *Store) SessionByID(ctx context.Context, id string) (*models.TimeSession, error) {
	defer s.lock()()
	sess, ok := s.db.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copySession(sess), nil
}

func (s *Store) ActiveSessionByTask(ctx context.Context, taskID string) (*models.TimeSession, error) {
	defer s.lock()()
	for _, sess := range s.db.sessions {
		if sess.TaskID == taskID && sess.IsActive {
			return copySession(sess), nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *Store) ActiveSessionsByOwner(ctx context.Context, ownerID string) ([]models.TimeSession, error) {
	defer s.lock()()
	var out []models.TimeSession
	for _, sess := range s.db.sessions {
		if sess.OwnerID == ownerID && sess.IsActive {
			out = append(out, *copySession(sess))
		}
	}
	sortSessions(out)
	return out, nil
}

func (s *Store) SessionsByTask(ctx context.Context, taskID string) ([]models.TimeSession, error) {
	defer s.lock()()
	var out []models.TimeSession
	for _, sess := range s.db.sessions {
		if sess.TaskID == taskID {
			out = append(out, *copySession(sess))
		}
	}
	sortSessions(out)
	return out, nil
}

func (s *Store) SessionsByOwner(ctx context.Context, ownerID string) ([]models.TimeSession, error) {
	defer s.lock()()
	var out []models.TimeSession
	for _, sess := range s.db.sessions {
		if sess.OwnerID == ownerID {
			out = append(out, *copySession(sess))
		}
	}
	sortSessions(out)
	return out, nil
}

func (s *Store) SessionsInRange(ctx context.Context, ownerID string, from, to time.Time) ([]models.TimeSession, error) {
	defer s.lock()()
	var out []models.TimeSession
	for _, sess := range s.db.sessions {
		if sess.OwnerID != ownerID {
			continue
		}
		if sess.StartedAt.Before(from) || sess.StartedAt.After(to) {
			continue
		}
		out = append(out, *copySession(sess))
	}
	sortSessions(out)
	return out, nil
}

func sortSessions(out []models.TimeSession) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
}

// ---- categories ----

func (s *Store) InsertCategory(ctx context.Context, c *models.Category) error {
	defer s.lock()()
	cat := *c
	s.db.categories[c.ID] = &cat
	return nil
}

func (s *Store) UpdateCategory(ctx context.Context, c *models.Category) error {
	defer s.lock()()
	if _, ok := s.db.categories[c.ID]; !ok {
		return models.ErrNotFound
	}
	cat := *c
	s.db.categories[c.ID] = &cat
	return nil
}

func (s *Store) DeleteCategory(ctx context.Context, ownerID, categoryID string) error {
	defer s.lock()()
	c, ok := s.db.categories[categoryID]
	if !ok || c.OwnerID != ownerID {
		return models.ErrNotFound
	}
	delete(s.db.categories, categoryID)
	return nil
}

func (s *Store) CategoryByID(ctx context.Context, ownerID, categoryID string) (*models.Category, error) {
	defer s.lock()()
	c, ok := s.db.categories[categoryID]
	if !ok || c.OwnerID != ownerID {
		return nil, models.ErrNotFound
	}
	cat := *c
	return &cat, nil
}

func (s *Store) CategoryByName(ctx context.Context, ownerID, name string) (*models.Category, error) {
	defer s.lock()()
	for _, c := range s.db.categories {
		if c.OwnerID == ownerID && strings.EqualFold(c.Name, name) {
			cat := *c
			return &cat, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *Store) ListCategories(ctx context.Context, ownerID string) ([]models.Category, error) {
	defer s.lock()()
	var out []models.Category
	for _, c := range s.db.categories {
		if c.OwnerID == ownerID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ---- links ----

func (s *Store) InsertLink(ctx context.Context, l *models.TaskLink) error {
	defer s.lock()()
	link := *l
	s.db.links[l.ID] = &link
	return nil
}

func (s *Store) LinkByID(ctx context.Context, ownerID, linkID string) (*models.TaskLink, error) {
	defer s.lock()()
	l, ok := s.db.links[linkID]
	if !ok || l.OwnerID != ownerID {
		return nil, models.ErrNotFound
	}
	link := *l
	return &link, nil
}

func (s *Store) LinksByTask(ctx context.Context, taskID string) ([]models.TaskLink, error) {
	defer s.lock()()
	var out []models.TaskLink
	for _, l := range s.db.links {
		if l.TaskID == taskID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) DeleteLink(ctx context.Context, ownerID, linkID string) error {
	defer s.lock()()
	l, ok := s.db.links[linkID]
	if !ok || l.OwnerID != ownerID {
		return models.ErrNotFound
	}
	delete(s.db.links, linkID)
	return nil
}

func (s *Store) DeleteLinksByTask(ctx context.Context, taskID string) error {
	defer s.lock()()
	for id, l := range s.db.links {
		if l.TaskID == taskID {
			delete(s.db.links, id)
		}
	}
	return nil
}

// ---- users ----

func (s *Store) InsertUser(ctx context.Context, u *models.User) error {
	defer s.lock()()
	user := *u
	s.db.users[u.ID] = &user
	return nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	defer s.lock()()
	for _, u := range s.db.users {
		if strings.EqualFold(u.Email, email) {
			user := *u
			return &user, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *Store) UserByID(ctx context.Context, userID string) (*models.User, error) {
	defer s.lock()()
	u, ok := s.db.users[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	user := *u
	return &user, nil
}
