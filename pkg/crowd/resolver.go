// Package crowd expands crowds into user sets and decides approval quorums over tasks.
package crowd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/netvariant/moqui-workflow/pkg/models"
	"github.com/netvariant/moqui-workflow/pkg/persistence"
)

var ErrUnknownCrowdType = errors.New("unknown crowd type")

// Resolver expands crowds against the directory. Nothing is cached: every call reads
// the current accounts and memberships.
type Resolver struct {
	directory persistence.DirectoryRepository
	logger    *slog.Logger
	now       func() time.Time
}

func NewResolver(directory persistence.DirectoryRepository, logger *slog.Logger) *Resolver {
	return &Resolver{
		directory: directory,
		logger:    logger.With("module", "crowd"),
		now:       time.Now,
	}
}

// WithClock replaces the time source used for membership windows.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now

	return r
}

// Resolve returns the IDs of the existing users the crowd designates, in directory
// order and without duplicates. Users missing from the directory are dropped.
func (r *Resolver) Resolve(ctx context.Context, crowd models.Crowd, inst *models.Instance) ([]string, error) {
	var candidates []string

	switch crowd.Type {
	case models.CrowdTypeUser:
		candidates = append(candidates, crowd.UserID)
	case models.CrowdTypeUserGroup:
		if strings.TrimSpace(crowd.UserGroupID) == "" {
			return nil, nil
		}

		members, err := r.directory.GroupMembers(ctx, crowd.UserGroupID, r.now())
		if err != nil {
			return nil, fmt.Errorf("failed to list members of group %s: %w", crowd.UserGroupID, err)
		}

		for _, m := range members {
			candidates = append(candidates, m.UserID)
		}
	case models.CrowdTypeInitiator:
		if inst != nil {
			candidates = append(candidates, inst.InputUserID)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCrowdType, crowd.Type)
	}

	users := make([]string, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))

	for _, id := range candidates {
		if strings.TrimSpace(id) == "" || seen[id] {
			continue
		}

		seen[id] = true

		if _, err := r.directory.GetUser(ctx, id); err != nil {
			if persistence.IsNotFound(err) {
				r.logger.DebugContext(ctx, "Skipping unknown user", "user_id", id, "crowd_type", crowd.Type)

				continue
			}

			return nil, fmt.Errorf("failed to look up user %s: %w", id, err)
		}

		users = append(users, id)
	}

	return users, nil
}

// ResolveAll resolves every crowd and merges the results, keeping first-seen order.
func (r *Resolver) ResolveAll(ctx context.Context, crowds []models.Crowd, inst *models.Instance) ([]string, error) {
	var users []string

	seen := make(map[string]bool)

	for _, c := range crowds {
		ids, err := r.Resolve(ctx, c, inst)
		if err != nil {
			return nil, err
		}

		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				users = append(users, id)
			}
		}
	}

	return users, nil
}
