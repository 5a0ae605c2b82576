package board

import (
	"context"
	"errors"
	"fmt"

	"github.com/cedadev/ceda-status-bot/internal/domain"
	"github.com/cedadev/ceda-status-bot/internal/pkg/ctxlog"
)

// Service implements the edit flow: apply a pure dataset operation
// against a session's snapshot and commit the result as a single new
// revision. Edits are coordinated only through the store's revision
// check; no lock is held here.
type Service struct {
	repo Repository
}

// NewService creates a new board service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Snapshot fetches the current dataset and revision token.
func (s *Service) Snapshot(ctx context.Context) (*domain.Dataset, error) {
	return s.repo.Fetch(ctx)
}

// AddService creates a new service and commits. Returns the committed
// dataset and the generated service id.
func (s *Service) AddService(ctx context.Context, ds *domain.Dataset, name string, status domain.Status, updates []domain.StatusUpdate, author string) (*domain.Dataset, string, error) {
	id := NewServiceID(name, ds)
	next, err := s.apply(ctx, ds, author, func(d domain.Dataset) (domain.Dataset, error) {
		return d.WithService(domain.Service{
			ID:      id,
			Name:    name,
			Status:  status,
			Updates: updates,
		}), nil
	})
	if err != nil {
		return next, "", err
	}
	return next, id, nil
}

// EditService renames a service and sets its current status, then commits.
func (s *Service) EditService(ctx context.Context, ds *domain.Dataset, id, name string, status domain.Status, author string) (*domain.Dataset, error) {
	return s.apply(ctx, ds, author, func(d domain.Dataset) (domain.Dataset, error) {
		return d.EditService(id, name, status)
	})
}

// DeleteService removes a service and all its updates, then commits.
func (s *Service) DeleteService(ctx context.Context, ds *domain.Dataset, id, author string) (*domain.Dataset, error) {
	return s.apply(ctx, ds, author, func(d domain.Dataset) (domain.Dataset, error) {
		return d.DeleteService(id)
	})
}

// AddUpdate appends a status update to a service's history, then commits.
func (s *Service) AddUpdate(ctx context.Context, ds *domain.Dataset, serviceID string, upd domain.StatusUpdate, author string) (*domain.Dataset, error) {
	return s.apply(ctx, ds, author, func(d domain.Dataset) (domain.Dataset, error) {
		return d.AddUpdate(serviceID, upd)
	})
}

// EditUpdate replaces a status update, then commits.
func (s *Service) EditUpdate(ctx context.Context, ds *domain.Dataset, serviceID string, index int, upd domain.StatusUpdate, author string) (*domain.Dataset, error) {
	return s.apply(ctx, ds, author, func(d domain.Dataset) (domain.Dataset, error) {
		return d.EditUpdate(serviceID, index, upd)
	})
}

// DeleteUpdate removes a status update, then commits.
func (s *Service) DeleteUpdate(ctx context.Context, ds *domain.Dataset, serviceID string, index int, author string) (*domain.Dataset, error) {
	return s.apply(ctx, ds, author, func(d domain.Dataset) (domain.Dataset, error) {
		return d.DeleteUpdate(serviceID, index)
	})
}

// apply runs a pure mutation against the session snapshot and commits
// the result at the snapshot's revision. On ErrConflict the latest
// dataset is re-fetched and returned alongside the error so the caller
// can surface a retry prompt instead of silently overwriting.
func (s *Service) apply(ctx context.Context, ds *domain.Dataset, author string, mutate func(domain.Dataset) (domain.Dataset, error)) (*domain.Dataset, error) {
	next, err := mutate(*ds)
	if err != nil {
		return nil, err
	}

	rev, err := s.repo.Commit(ctx, &next, author)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			latest, fetchErr := s.repo.Fetch(ctx)
			if fetchErr != nil {
				ctxlog.FromContext(ctx).Error("re-fetch after conflict failed", "error", fetchErr)
				return nil, fmt.Errorf("re-fetch after conflict: %w", err)
			}
			return latest, err
		}
		return nil, err
	}

	next.Revision = rev
	return &next, nil
}
