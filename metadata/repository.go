package metadata

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Repository wraps a Store with an in-memory, read-mostly cache of each
// project's denormalized endpoint list. The cache has no TTL: it lives
// until a write to that project invalidates it, or Invalidate is called
// explicitly, since this catalog only changes through declared mutations,
// never silently.
type Repository struct {
	store Store

	mu    sync.RWMutex
	cache map[int][]*Endpoint // projectId -> eager-loaded endpoints
}

// NewRepository constructs a Repository backed by store.
func NewRepository(store Store) *Repository {
	return &Repository{
		store: store,
		cache: make(map[int][]*Endpoint),
	}
}

// GetProject returns the project, uncached (projects themselves are small
// and rarely re-read within a single request).
func (r *Repository) GetProject(ctx context.Context, id int) (*Project, error) {
	return r.store.GetProject(ctx, id)
}

// ListEndpoints returns the project's endpoints, eagerly loaded with their
// parameters, response fields, and response messages. Results are served
// from cache when present; a cache miss populates it.
func (r *Repository) ListEndpoints(ctx context.Context, projectID int) ([]*Endpoint, error) {
	r.mu.RLock()
	cached, ok := r.cache[projectID]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	endpoints, err := r.store.ListEndpoints(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("metadata: list endpoints for project %d: %w", projectID, err)
	}
	for _, ep := range endpoints {
		params, err := r.store.ListParameters(ctx, ep.ID)
		if err != nil {
			return nil, fmt.Errorf("metadata: list parameters for endpoint %d: %w", ep.ID, err)
		}
		ep.Params = params

		fields, err := r.store.ListResponseFields(ctx, ep.ID)
		if err != nil {
			return nil, fmt.Errorf("metadata: list response fields for endpoint %d: %w", ep.ID, err)
		}
		ep.ResponseFields = fields

		msgs, err := r.store.ListResponseMessages(ctx, ep.ID)
		if err != nil {
			return nil, fmt.Errorf("metadata: list response messages for endpoint %d: %w", ep.ID, err)
		}
		ep.Messages = msgs
	}

	r.mu.Lock()
	r.cache[projectID] = endpoints
	r.mu.Unlock()
	return endpoints, nil
}

// FindByLabel resolves "METHOD PATH" against a project's endpoint list.
// Lookups are case-insensitive on method, case-sensitive on path.
func (r *Repository) FindByLabel(ctx context.Context, projectID int, label string) (*Endpoint, error) {
	method, path, ok := splitLabel(label)
	if !ok {
		return nil, fmt.Errorf("metadata: malformed endpoint label %q", label)
	}
	endpoints, err := r.ListEndpoints(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, ep := range endpoints {
		if strings.EqualFold(string(ep.Method), method) && ep.Path == path {
			return ep, nil
		}
	}
	return nil, ErrNotFound
}

// ListFieldLinks returns the project's field-link hints, uncached.
func (r *Repository) ListFieldLinks(ctx context.Context, projectID int) ([]FieldLink, error) {
	return r.store.ListFieldLinks(ctx, projectID)
}

// UpsertParameter creates or updates a parameter on an endpoint by
// (endpointId, name), then invalidates the owning project's cache.
func (r *Repository) UpsertParameter(ctx context.Context, projectID int, param *RequestParameter) error {
	if err := r.store.UpsertParameter(ctx, param); err != nil {
		return fmt.Errorf("metadata: upsert parameter %q on endpoint %d: %w", param.Name, param.EndpointID, err)
	}
	r.Invalidate(projectID)
	return nil
}

// RenameParameter renames a parameter if the old name exists and the new
// name is not already taken; no-op if the new name already exists.
func (r *Repository) RenameParameter(ctx context.Context, projectID, endpointID int, oldName, newName string) error {
	if err := r.store.RenameParameter(ctx, endpointID, oldName, newName); err != nil {
		return fmt.Errorf("metadata: rename parameter %q->%q on endpoint %d: %w", oldName, newName, endpointID, err)
	}
	r.Invalidate(projectID)
	return nil
}

// UpsertResponseMessage inserts a response message only if (endpoint,
// statusCode) has no existing message, then invalidates the project cache.
func (r *Repository) UpsertResponseMessage(ctx context.Context, projectID int, msg *ResponseMessage) error {
	if err := r.store.UpsertResponseMessage(ctx, msg); err != nil {
		return fmt.Errorf("metadata: upsert response message for endpoint %d status %d: %w", msg.EndpointID, msg.StatusCode, err)
	}
	r.Invalidate(projectID)
	return nil
}

// Invalidate drops the cached endpoint list for projectID so the next
// ListEndpoints call re-reads from the store.
func (r *Repository) Invalidate(projectID int) {
	r.mu.Lock()
	delete(r.cache, projectID)
	r.mu.Unlock()
}

// splitLabel parses "METHOD PATH" into its two components.
func splitLabel(label string) (method, path string, ok bool) {
	idx := strings.IndexByte(label, ' ')
	if idx <= 0 || idx == len(label)-1 {
		return "", "", false
	}
	return label[:idx], label[idx+1:], true
}
