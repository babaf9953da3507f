package rtdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/marketdesk/admin/internal/domain"
)

// profileRecord is the JSON shape stored at users/{uid}. Absent keys decode to zero values.
type profileRecord struct {
	UID              string    `json:"uid,omitempty"`
	Email            string    `json:"email,omitempty"`
	DisplayName      string    `json:"displayName,omitempty"`
	PhotoURL         string    `json:"photoURL,omitempty"`
	Role             string    `json:"role,omitempty"`
	Status           string    `json:"status,omitempty"`
	SuspensionReason string    `json:"suspensionReason,omitempty"`
	SuspendedAt      *flexTime `json:"suspendedAt,omitempty"`
	BanReason        string    `json:"banReason,omitempty"`
	BannedAt         *flexTime `json:"bannedAt,omitempty"`
	CreatedAt        *flexTime `json:"createdAt,omitempty"`
	LastLoginAt      *flexTime `json:"lastLoginAt,omitempty"`
}

func (r profileRecord) toDomain(uid string) domain.UserProfile {
	role := domain.Role(r.Role)
	if parsed, ok := domain.ParseRole(r.Role); ok {
		role = parsed
	}
	status := domain.UserStatus(r.Status)
	if parsed, ok := domain.ParseUserStatus(r.Status); ok {
		status = parsed
	}
	profile := domain.UserProfile{
		UID:              uid,
		Email:            r.Email,
		DisplayName:      r.DisplayName,
		PhotoURL:         r.PhotoURL,
		Role:             role,
		Status:           status,
		SuspensionReason: r.SuspensionReason,
		SuspendedAt:      r.SuspendedAt.ptr(),
		BanReason:        r.BanReason,
		BannedAt:         r.BannedAt.ptr(),
		LastLoginAt:      r.LastLoginAt.ptr(),
	}
	if created := r.CreatedAt.ptr(); created != nil {
		profile.CreatedAt = *created
	}
	return profile
}

func recordFromDomain(p domain.UserProfile) profileRecord {
	record := profileRecord{
		UID:              p.UID,
		Email:            p.Email,
		DisplayName:      p.DisplayName,
		PhotoURL:         p.PhotoURL,
		Role:             string(p.Role),
		Status:           string(p.Status),
		SuspensionReason: p.SuspensionReason,
		BanReason:        p.BanReason,
		SuspendedAt:      newFlexTime(p.SuspendedAt),
		BannedAt:         newFlexTime(p.BannedAt),
		LastLoginAt:      newFlexTime(p.LastLoginAt),
	}
	if !p.CreatedAt.IsZero() {
		record.CreatedAt = newFlexTime(&p.CreatedAt)
	}
	return record
}

// flexTime is written as RFC 3339 and read from either RFC 3339 strings or epoch milliseconds,
// which is what older web clients stored.
type flexTime struct {
	time.Time
}

func newFlexTime(t *time.Time) *flexTime {
	if t == nil || t.IsZero() {
		return nil
	}
	return &flexTime{Time: t.UTC()}
}

func (t *flexTime) ptr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.UTC()
	return &v
}

func (t flexTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(formatTime(t.Time))
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("profile timestamp %q: %w", s, err)
		}
		t.Time = parsed.UTC()
		return nil
	}
	ms, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("profile timestamp %s: %w", data, err)
	}
	t.Time = time.UnixMilli(int64(ms)).UTC()
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
