package request

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory Store. CompareAndSetStatus holds the mutex across
// read and write, which mirrors the row guard of the SQL store.
type memStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*Request
	now     func() time.Time
	err     error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[uuid.UUID]*Request), now: time.Now}
}

func (s *memStore) Create(_ context.Context, r *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if _, ok := s.records[r.ID]; ok {
		return newError(KindDuplicateID, "request %s already exists", r.ID)
	}
	s.records[r.ID] = r.Clone()
	return nil
}

func (s *memStore) Get(_ context.Context, id uuid.UUID) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	r, ok := s.records[id]
	if !ok {
		return nil, newError(KindNotFound, "request %s not found", id)
	}
	return r.Clone(), nil
}

func (s *memStore) ListBySubmitter(_ context.Context, submitter string, opts ListOptions) ([]*Request, int, error) {
	return s.list(func(r *Request) bool { return r.SubmittedBy == submitter }, opts)
}

func (s *memStore) ListByStatus(_ context.Context, status Status, opts ListOptions) ([]*Request, int, error) {
	return s.list(func(r *Request) bool { return status == "" || r.Status == status }, opts)
}

func (s *memStore) list(match func(*Request) bool, opts ListOptions) ([]*Request, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, 0, s.err
	}

	var all []*Request
	for _, r := range s.records {
		if !match(r) || !typeMatches(r.Type, opts.Types) {
			continue
		}
		all = append(all, r.Clone())
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return bytes.Compare(all[i].ID[:], all[j].ID[:]) > 0
	})

	total := len(all)
	if opts.Offset >= len(all) {
		return []*Request{}, total, nil
	}
	all = all[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, total, nil
}

func typeMatches(t Type, types []Type) bool {
	if len(types) == 0 {
		return true
	}
	for _, want := range types {
		if t == want {
			return true
		}
	}
	return false
}

func (s *memStore) CompareAndSetStatus(_ context.Context, id uuid.UUID, expected, next Status, reviewer, notes string) (*Request, error) {
	if err := checkTransition(expected, next); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	r, ok := s.records[id]
	if !ok {
		return nil, newError(KindNotFound, "request %s not found", id)
	}
	if r.Status != expected {
		return nil, &Error{Kind: KindInvalidStateTransition, Message: "not " + string(expected), Current: r.Clone()}
	}
	now := s.now().UTC()
	r.Status = next
	r.ReviewedBy = &reviewer
	r.ReviewNotes = &notes
	r.ReviewedAt = &now
	r.UpdatedAt = now
	return r.Clone(), nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
