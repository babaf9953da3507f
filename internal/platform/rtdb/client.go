// Package rtdb wraps the Firebase Realtime Database client used as the profile store.
package rtdb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
)

// NewClient opens the realtime database at url using the shared Admin SDK app.
func NewClient(ctx context.Context, app *firebase.App, url string) (*db.Client, error) {
	if app == nil {
		return nil, errors.New("rtdb: firebase app is required")
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("rtdb: database url is required")
	}
	client, err := app.DatabaseWithURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("rtdb: initialise client: %w", err)
	}
	return client, nil
}

// Ping reads at most one child of path to confirm the database is reachable.
func Ping(ctx context.Context, client *db.Client, path string) error {
	if client == nil {
		return errors.New("rtdb: client is nil")
	}
	var first map[string]any
	if err := client.NewRef(path).OrderByKey().LimitToFirst(1).Get(ctx, &first); err != nil {
		return WrapError("ping", err)
	}
	return nil
}
