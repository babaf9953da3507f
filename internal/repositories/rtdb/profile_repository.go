package rtdb

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"firebase.google.com/go/v4/db"
	"github.com/marketdesk/admin/internal/domain"
	prtdb "github.com/marketdesk/admin/internal/platform/rtdb"
	"github.com/marketdesk/admin/internal/repositories"
)

const usersPath = "users"

var errProfileMissing = errors.New("profile does not exist")

// ProfileRepository keeps user profiles under users/{uid} in the realtime database.
type ProfileRepository struct {
	client *db.Client
}

var _ repositories.ProfileRepository = (*ProfileRepository)(nil)

// NewProfileRepository constructs a realtime-database backed profile repository.
func NewProfileRepository(client *db.Client) (*ProfileRepository, error) {
	if client == nil {
		return nil, errors.New("profile repository requires realtime database client")
	}
	return &ProfileRepository{client: client}, nil
}

// FindByID loads users/{uid}; an empty node is reported as not found.
func (r *ProfileRepository) FindByID(ctx context.Context, uid string) (domain.UserProfile, error) {
	ref, err := r.userRef(uid)
	if err != nil {
		return domain.UserProfile{}, err
	}
	var record *profileRecord
	if err := ref.Get(ctx, &record); err != nil {
		return domain.UserProfile{}, prtdb.WrapError("users.get", err)
	}
	if record == nil {
		return domain.UserProfile{}, prtdb.NotFound("users.get", ref.Path)
	}
	return record.toDomain(uid), nil
}

// List returns every profile, newest first.
func (r *ProfileRepository) List(ctx context.Context) ([]domain.UserProfile, error) {
	var records map[string]profileRecord
	if err := r.client.NewRef(usersPath).Get(ctx, &records); err != nil {
		return nil, prtdb.WrapError("users.list", err)
	}
	return profilesFromRecords(records), nil
}

// Insert writes a full profile record.
func (r *ProfileRepository) Insert(ctx context.Context, profile domain.UserProfile) error {
	ref, err := r.userRef(profile.UID)
	if err != nil {
		return err
	}
	if err := ref.Set(ctx, recordFromDomain(profile)); err != nil {
		return prtdb.WrapError("users.set", err)
	}
	return nil
}

// UpdateRole writes only the role key.
func (r *ProfileRepository) UpdateRole(ctx context.Context, uid string, role domain.Role) error {
	return r.update(ctx, uid, "users.update_role", map[string]any{"role": string(role)})
}

// UpdateStatus writes the status and clears or sets the four reason keys in one write.
func (r *ProfileRepository) UpdateStatus(ctx context.Context, uid string, change repositories.ProfileStatusChange) error {
	return r.update(ctx, uid, "users.update_status", statusFields(change))
}

// TouchLogin records the last explicit sign-in on an existing profile.
func (r *ProfileRepository) TouchLogin(ctx context.Context, uid string, at time.Time) error {
	return r.update(ctx, uid, "users.touch_login", map[string]any{"lastLoginAt": formatTime(at)})
}

// Snapshot performs a conditional read of the whole users node.
func (r *ProfileRepository) Snapshot(ctx context.Context, etag string) (repositories.ProfileSnapshot, error) {
	ref := r.client.NewRef(usersPath)
	var records map[string]profileRecord
	if etag == "" {
		newTag, err := ref.GetWithETag(ctx, &records)
		if err != nil {
			return repositories.ProfileSnapshot{}, prtdb.WrapError("users.snapshot", err)
		}
		return repositories.ProfileSnapshot{Profiles: profilesFromRecords(records), ETag: newTag, Changed: true}, nil
	}
	changed, newTag, err := ref.GetIfChanged(ctx, etag, &records)
	if err != nil {
		return repositories.ProfileSnapshot{}, prtdb.WrapError("users.snapshot", err)
	}
	if !changed {
		return repositories.ProfileSnapshot{ETag: etag}, nil
	}
	return repositories.ProfileSnapshot{Profiles: profilesFromRecords(records), ETag: newTag, Changed: true}, nil
}

// update merges fields into an existing users/{uid} node. A plain PATCH would create the node,
// so the write runs as a transaction that aborts on an empty node. Nil values remove the key.
func (r *ProfileRepository) update(ctx context.Context, uid, op string, fields map[string]any) error {
	ref, err := r.userRef(uid)
	if err != nil {
		return err
	}
	err = ref.Transaction(ctx, func(node db.TransactionNode) (any, error) {
		var current map[string]any
		if err := node.Unmarshal(&current); err != nil {
			return nil, err
		}
		if len(current) == 0 {
			return nil, errProfileMissing
		}
		for key, value := range fields {
			if value == nil {
				delete(current, key)
				continue
			}
			current[key] = value
		}
		return current, nil
	})
	if errors.Is(err, errProfileMissing) {
		return prtdb.NotFound(op, ref.Path)
	}
	if err != nil {
		return prtdb.WrapError(op, err)
	}
	return nil
}

func (r *ProfileRepository) userRef(uid string) (*db.Ref, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" || strings.ContainsAny(uid, ".#$[]/") {
		return nil, errors.New("profile repository: invalid uid")
	}
	return r.client.NewRef(usersPath + "/" + uid), nil
}

func statusFields(change repositories.ProfileStatusChange) map[string]any {
	fields := map[string]any{
		"status":           string(change.Status),
		"suspensionReason": nil,
		"suspendedAt":      nil,
		"banReason":        nil,
		"bannedAt":         nil,
	}
	if change.SuspensionReason != nil {
		fields["suspensionReason"] = *change.SuspensionReason
	}
	if change.SuspendedAt != nil {
		fields["suspendedAt"] = formatTime(*change.SuspendedAt)
	}
	if change.BanReason != nil {
		fields["banReason"] = *change.BanReason
	}
	if change.BannedAt != nil {
		fields["bannedAt"] = formatTime(*change.BannedAt)
	}
	return fields
}

func profilesFromRecords(records map[string]profileRecord) []domain.UserProfile {
	profiles := make([]domain.UserProfile, 0, len(records))
	for uid, record := range records {
		profiles = append(profiles, record.toDomain(uid))
	}
	sort.Slice(profiles, func(i, j int) bool {
		if !profiles[i].CreatedAt.Equal(profiles[j].CreatedAt) {
			return profiles[i].CreatedAt.After(profiles[j].CreatedAt)
		}
		return profiles[i].UID < profiles[j].UID
	})
	return profiles
}
