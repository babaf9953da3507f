package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/marketdesk/admin/internal/domain"
	"github.com/marketdesk/admin/internal/repositories"
)

type repoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e repoError) Error() string {
	switch {
	case e.notFound:
		return "repo: not found"
	case e.unavailable:
		return "repo: unavailable"
	case e.conflict:
		return "repo: conflict"
	default:
		return "repo: failure"
	}
}

func (e repoError) IsNotFound() bool    { return e.notFound }
func (e repoError) IsConflict() bool    { return e.conflict }
func (e repoError) IsUnavailable() bool { return e.unavailable }

var errNotFoundRepo = repoError{notFound: true}

type stubOrderRepo struct {
	orders    map[string]domain.Order
	updates   []orderUpdateCall
	deletes   []string
	updateErr map[string]error
	listErr   error
}

type orderUpdateCall struct {
	ID     string
	Update repositories.OrderUpdate
}

func newStubOrderRepo(orders ...domain.Order) *stubOrderRepo {
	repo := &stubOrderRepo{orders: map[string]domain.Order{}, updateErr: map[string]error{}}
	for _, o := range orders {
		repo.orders[o.ID] = o
	}
	return repo
}

func (s *stubOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, errNotFoundRepo
	}
	return order, nil
}

func (s *stubOrderRepo) ListAll(context.Context) ([]domain.Order, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *stubOrderRepo) Update(_ context.Context, orderID string, update repositories.OrderUpdate) error {
	if err := s.updateErr[orderID]; err != nil {
		return err
	}
	order, ok := s.orders[orderID]
	if !ok {
		return errNotFoundRepo
	}
	s.updates = append(s.updates, orderUpdateCall{ID: orderID, Update: update})
	if update.OrderStatus != nil {
		order.OrderStatus = *update.OrderStatus
	}
	if update.PaymentStatus != nil {
		order.PaymentStatus = *update.PaymentStatus
	}
	order.UpdatedAt = update.UpdatedAt
	s.orders[orderID] = order
	return nil
}

func (s *stubOrderRepo) Delete(_ context.Context, orderID string, guard func(domain.Order) error) error {
	order, ok := s.orders[orderID]
	if !ok {
		return errNotFoundRepo
	}
	if guard != nil {
		if err := guard(order); err != nil {
			return err
		}
	}
	delete(s.orders, orderID)
	s.deletes = append(s.deletes, orderID)
	return nil
}

type captureRecorder struct {
	records []AuditRecord
}

func (c *captureRecorder) Record(_ context.Context, record AuditRecord) {
	c.records = append(c.records, record)
}

type stubPublisher struct {
	events []OrderEvent
	err    error
}

func (s *stubPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) (string, error) {
	s.events = append(s.events, event)
	if s.err != nil {
		return "", s.err
	}
	return "msg-1", nil
}

type captureEvents struct {
	mu     sync.Mutex
	events []string
}

func (c *captureEvents) log(_ context.Context, event string, _ map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureEvents) has(event string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e == event {
			return true
		}
	}
	return false
}

type stubProfileRepo struct {
	mu        sync.Mutex
	profiles  map[string]domain.UserProfile
	findErr   error
	insertErr error
	inserted  []domain.UserProfile
	roles     map[string]domain.Role
	statuses  map[string]repositories.ProfileStatusChange
	touched   map[string]time.Time

	snapshots []repositories.ProfileSnapshot
	snapCalls int
}

func newStubProfileRepo(profiles ...domain.UserProfile) *stubProfileRepo {
	repo := &stubProfileRepo{
		profiles: map[string]domain.UserProfile{},
		roles:    map[string]domain.Role{},
		statuses: map[string]repositories.ProfileStatusChange{},
		touched:  map[string]time.Time{},
	}
	for _, p := range profiles {
		repo.profiles[p.UID] = p
	}
	return repo
}

func (s *stubProfileRepo) FindByID(_ context.Context, uid string) (domain.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return domain.UserProfile{}, s.findErr
	}
	p, ok := s.profiles[uid]
	if !ok {
		return domain.UserProfile{}, errNotFoundRepo
	}
	return p, nil
}

func (s *stubProfileRepo) List(context.Context) ([]domain.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	return out, nil
}

func (s *stubProfileRepo) Insert(_ context.Context, profile domain.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, profile)
	s.profiles[profile.UID] = profile
	return nil
}

// UpdateRole, UpdateStatus and TouchLogin follow the profile store: they merge into an
// existing node and report not found otherwise.
func (s *stubProfileRepo) UpdateRole(_ context.Context, uid string, role domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[uid]
	if !ok {
		return errNotFoundRepo
	}
	p.Role = role
	s.profiles[uid] = p
	s.roles[uid] = role
	return nil
}

func (s *stubProfileRepo) UpdateStatus(_ context.Context, uid string, change repositories.ProfileStatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[uid]
	if !ok {
		return errNotFoundRepo
	}
	p.Status = change.Status
	s.profiles[uid] = p
	s.statuses[uid] = change
	return nil
}

func (s *stubProfileRepo) TouchLogin(_ context.Context, uid string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[uid]
	if !ok {
		return errNotFoundRepo
	}
	p.LastLoginAt = &at
	s.profiles[uid] = p
	s.touched[uid] = at
	return nil
}

// Snapshot replays the queued snapshots, then reports no change.
func (s *stubProfileRepo) Snapshot(_ context.Context, etag string) (repositories.ProfileSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapCalls++
	if len(s.snapshots) == 0 {
		return repositories.ProfileSnapshot{ETag: etag}, nil
	}
	next := s.snapshots[0]
	s.snapshots = s.snapshots[1:]
	return next, nil
}

type stubClaims struct {
	claims    map[string]map[string]any
	readErr   error
	setErr    error
	set       map[string]map[string]any
	revoked   []string
	revokeErr error
}

func newStubClaims() *stubClaims {
	return &stubClaims{claims: map[string]map[string]any{}, set: map[string]map[string]any{}}
}

func (s *stubClaims) CurrentClaims(_ context.Context, uid string) (map[string]any, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.claims[uid], nil
}

func (s *stubClaims) SetCustomClaims(_ context.Context, uid string, claims map[string]any) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.set[uid] = claims
	return nil
}

func (s *stubClaims) RevokeSessions(_ context.Context, uid string) error {
	s.revoked = append(s.revoked, uid)
	return s.revokeErr
}

var errBoom = errors.New("boom")

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
