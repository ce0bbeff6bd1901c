// Package settings persists local, per-device choices such as the selected
// role. Nothing here is shared with the partner.
package settings

import (
	"context"
	"errors"
	"fmt"

	"couplesync/backend/internal/models"
)

var (
	// ErrNotFound is returned by Get for a key that was never set.
	ErrNotFound = errors.New("settings: key not found")
	// ErrNoRole means no role was configured or selected yet.
	ErrNoRole = errors.New("settings: no role selected")
)

const keyRole = "role"

type Repository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// LoadRole returns the persisted role.
func LoadRole(ctx context.Context, repo Repository) (models.Role, error) {
	v, err := repo.Get(ctx, keyRole)
	if errors.Is(err, ErrNotFound) {
		return "", ErrNoRole
	}
	if err != nil {
		return "", err
	}
	return models.ParseRole(v)
}

// SaveRole persists role. It stays selected until ResetRole.
func SaveRole(ctx context.Context, repo Repository, role models.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownRole, role)
	}
	return repo.Set(ctx, keyRole, role.String())
}

func ResetRole(ctx context.Context, repo Repository) error {
	return repo.Delete(ctx, keyRole)
}

// ResolveRole picks the role for this run. An explicitly configured role wins
// and is persisted; otherwise the persisted selection is used.
func ResolveRole(ctx context.Context, repo Repository, configured string) (models.Role, error) {
	if configured == "" {
		return LoadRole(ctx, repo)
	}
	role, err := models.ParseRole(configured)
	if err != nil {
		return "", err
	}
	if err := SaveRole(ctx, repo, role); err != nil {
		return "", fmt.Errorf("persist role: %w", err)
	}
	return role, nil
}
