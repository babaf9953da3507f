package services

import (
	"context"
	"sync"
	"time"

	"github.com/marketdesk/admin/internal/domain"
	"github.com/marketdesk/admin/internal/repositories"
)

// Subscription delivers full snapshots of the user set until closed. Snapshots may repeat;
// the latest one always wins.
type Subscription struct {
	updates chan []domain.UserProfile
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// Updates returns the snapshot channel. It is closed after Close or when the parent context ends.
func (s *Subscription) Updates() <-chan []domain.UserProfile {
	return s.updates
}

// Close stops the feed and waits for it to finish. Nothing is delivered after Close returns.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

// Subscribe reads the current user set and starts polling for changes. The first read must
// succeed; later read failures are logged and retried on the next tick.
func (s *userAdminService) Subscribe(ctx context.Context) (*Subscription, error) {
	first, err := s.profiles.Snapshot(ctx, "")
	if err != nil {
		return nil, mapRepositoryError(err, nil)
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		updates: make(chan []domain.UserProfile),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.poll(ctx, sub, first)
	return sub, nil
}

func (s *userAdminService) poll(ctx context.Context, sub *Subscription, snapshot repositories.ProfileSnapshot) {
	defer close(sub.done)
	defer close(sub.updates)

	if !deliver(ctx, sub.updates, snapshot.Profiles) {
		return
	}
	etag := snapshot.ETag

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		next, err := s.profiles.Snapshot(ctx, etag)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger(ctx, "user.feed.poll.failed", map[string]any{"error": err.Error()})
			continue
		}
		if !next.Changed {
			continue
		}
		etag = next.ETag
		if !deliver(ctx, sub.updates, next.Profiles) {
			return
		}
	}
}

func deliver(ctx context.Context, ch chan<- []domain.UserProfile, profiles []domain.UserProfile) bool {
	if ctx.Err() != nil {
		return false
	}
	if profiles == nil {
		profiles = []domain.UserProfile{}
	}
	select {
	case ch <- profiles:
		return true
	case <-ctx.Done():
		return false
	}
}
