// Package pagination implements the opaque next_page_token and page_size handling shared by the
// order and audit listings.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

var (
	ErrInvalidPageToken = errors.New("pagination: invalid page token")
	ErrInvalidPageSize  = errors.New("pagination: invalid page size")
)

// Cursor is the last item of a page in (createdAt desc, id desc) order. The zero cursor is the
// first page.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

func (c Cursor) IsZero() bool { return c.ID == "" && c.CreatedAt.IsZero() }

// Token renders the cursor as "<unix nanos>:<id>" in unpadded URL-safe base64. The zero cursor
// renders as "".
func (c Cursor) Token() string {
	if c.IsZero() {
		return ""
	}
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + ":" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeToken reverses Cursor.Token; an empty token is the zero cursor.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	nanos, id, ok := strings.Cut(string(raw), ":")
	if !ok || id == "" {
		return Cursor{}, ErrInvalidPageToken
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return Cursor{CreatedAt: time.Unix(0, n).UTC(), ID: id}, nil
}

// ParsePageSize reads page_size from the query: absent means DefaultPageSize, larger values are
// clamped to MaxPageSize.
func ParsePageSize(values url.Values) (int, error) {
	raw := strings.TrimSpace(values.Get("page_size"))
	if raw == "" {
		return DefaultPageSize, nil
	}
	size, err := strconv.Atoi(raw)
	if err != nil || size < 1 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPageSize, raw)
	}
	return min(size, MaxPageSize), nil
}
