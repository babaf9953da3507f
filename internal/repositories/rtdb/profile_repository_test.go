package rtdb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	firebase "firebase.google.com/go/v4"

	"github.com/marketdesk/admin/internal/domain"
	prtdb "github.com/marketdesk/admin/internal/platform/rtdb"
	"github.com/marketdesk/admin/internal/repositories"
)

// fakeDatabase speaks the subset of the realtime database REST protocol the repository uses.
// PATCH upserts like the real service does.
type fakeDatabase struct {
	mu     sync.Mutex
	nodes  map[string]map[string]any
	writes []string
}

func (f *fakeDatabase) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimSuffix(r.URL.Path, ".json")
	current, _ := json.Marshal(f.nodes[path])
	if f.nodes[path] == nil {
		current = []byte("null")
	}
	etag := etagOf(current)

	switch r.Method {
	case http.MethodGet:
		w.Header().Set("ETag", etag)
		_, _ = w.Write(current)
	case http.MethodPut, http.MethodPatch:
		if r.Method == http.MethodPut && r.Header.Get("If-Match") != etag {
			w.Header().Set("ETag", etag)
			w.WriteHeader(http.StatusPreconditionFailed)
			_, _ = w.Write(current)
			return
		}
		var incoming map[string]any
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &incoming); err != nil {
			http.Error(w, `{"error":"invalid data"}`, http.StatusBadRequest)
			return
		}
		node := f.nodes[path]
		if r.Method == http.MethodPut || node == nil {
			node = map[string]any{}
		}
		for key, value := range incoming {
			if value == nil {
				delete(node, key)
				continue
			}
			node[key] = value
		}
		f.nodes[path] = node
		f.writes = append(f.writes, r.Method+" "+path)
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func etagOf(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:8])
}

func newTestRepository(t *testing.T, nodes map[string]map[string]any) (*ProfileRepository, *fakeDatabase) {
	t.Helper()
	fake := &fakeDatabase{nodes: nodes}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	dbURL := "localhost:" + u.Port() + "?ns=profiles-test"

	ctx := context.Background()
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: "profiles-test", DatabaseURL: dbURL})
	if err != nil {
		t.Fatalf("firebase app: %v", err)
	}
	client, err := prtdb.NewClient(ctx, app, dbURL)
	if err != nil {
		t.Fatalf("rtdb client: %v", err)
	}
	repo, err := NewProfileRepository(client)
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	return repo, fake
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func TestTouchLoginOnMissingProfileDoesNotCreateIt(t *testing.T) {
	repo, fake := newTestRepository(t, map[string]map[string]any{})
	ctx := context.Background()

	err := repo.TouchLogin(ctx, "ghost", time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	if !isNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(fake.writes) != 0 {
		t.Fatalf("expected no writes, got %v", fake.writes)
	}
	if _, err := repo.FindByID(ctx, "ghost"); !isNotFound(err) {
		t.Fatalf("expected profile to stay absent, got %v", err)
	}
}

func TestUpdatesOnMissingProfileAreNotFound(t *testing.T) {
	repo, fake := newTestRepository(t, map[string]map[string]any{})
	ctx := context.Background()

	if err := repo.UpdateRole(ctx, "ghost", domain.RoleAdmin); !isNotFound(err) {
		t.Fatalf("update role: expected not found, got %v", err)
	}
	if err := repo.UpdateStatus(ctx, "ghost", repositories.ProfileStatusChange{Status: domain.UserStatusActive}); !isNotFound(err) {
		t.Fatalf("update status: expected not found, got %v", err)
	}
	if len(fake.writes) != 0 {
		t.Fatalf("expected no writes, got %v", fake.writes)
	}
}

func TestTouchLoginKeepsExistingFields(t *testing.T) {
	repo, _ := newTestRepository(t, map[string]map[string]any{
		"/users/u1": {"email": "ops@example.com", "role": "superadmin", "status": "active"},
	})
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := repo.TouchLogin(ctx, "u1", at); err != nil {
		t.Fatalf("touch login: %v", err)
	}
	profile, err := repo.FindByID(ctx, "u1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if profile.Role != domain.RoleSuperadmin || profile.Email != "ops@example.com" {
		t.Fatalf("existing fields lost: %+v", profile)
	}
	if profile.LastLoginAt == nil || !profile.LastLoginAt.Equal(at) {
		t.Fatalf("unexpected lastLoginAt %v", profile.LastLoginAt)
	}
}

func TestUpdateStatusActiveClearsReasons(t *testing.T) {
	repo, fake := newTestRepository(t, map[string]map[string]any{
		"/users/u2": {
			"role":             "user",
			"status":           "banned",
			"banReason":        "fraud",
			"bannedAt":         "2025-01-01T00:00:00Z",
			"suspensionReason": "spam",
		},
	})

	if err := repo.UpdateStatus(context.Background(), "u2", repositories.ProfileStatusChange{Status: domain.UserStatusActive}); err != nil {
		t.Fatalf("update status: %v", err)
	}
	node := fake.nodes["/users/u2"]
	if node["status"] != "active" || node["role"] != "user" {
		t.Fatalf("unexpected node %v", node)
	}
	for _, key := range []string{"banReason", "bannedAt", "suspensionReason", "suspendedAt"} {
		if _, ok := node[key]; ok {
			t.Fatalf("expected %s to be cleared, node %v", key, node)
		}
	}
}
