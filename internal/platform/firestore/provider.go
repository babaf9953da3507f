package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/marketdesk/admin/internal/platform/config"
)

const connectTimeout = 10 * time.Second

// ErrProviderClosed is returned by Client after Close.
var ErrProviderClosed = errors.New("firestore: provider is closed")

// Provider owns the process-wide Firestore client. The client is built on first use; a failed
// build is not remembered, so the next call tries again.
type Provider struct {
	cfg config.FirestoreConfig

	mu     sync.Mutex
	client *firestore.Client
	closed bool
}

func NewProvider(cfg config.FirestoreConfig) *Provider {
	return &Provider{cfg: cfg}
}

// Client returns the shared client.
func (p *Provider) Client(ctx context.Context) (*firestore.Client, error) {
	if p == nil {
		return nil, errors.New("firestore: provider is nil")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.closed:
		return nil, ErrProviderClosed
	case p.client != nil:
		return p.client, nil
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	client, err := firestore.NewClient(ctx, p.projectID(), p.clientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("firestore: connect to %q: %w", p.projectID(), err)
	}
	p.client = client
	return client, nil
}

// Close releases the client, giving up when ctx ends first. The provider stays closed either way.
func (p *Provider) Close(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	client := p.client
	p.client, p.closed = nil, true
	p.mu.Unlock()
	if client == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- client.Close() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Provider) projectID() string {
	if id := strings.TrimSpace(p.cfg.ProjectID); id != "" {
		return id
	}
	if id := strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_PROJECT")); id != "" {
		return id
	}
	// resolved from the ambient credentials
	return firestore.DetectProjectID
}

// clientOptions points the client at the emulator when one is configured. The Go client only
// honours FIRESTORE_EMULATOR_HOST from the environment, so a config-only host is exported too.
func (p *Provider) clientOptions() []option.ClientOption {
	host := strings.TrimSpace(p.cfg.EmulatorHost)
	if host == "" {
		return nil
	}
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		_ = os.Setenv("FIRESTORE_EMULATOR_HOST", host)
	}
	return []option.ClientOption{
		option.WithEndpoint(host),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	}
}
