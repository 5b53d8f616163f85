// Package memstore provides an in-memory implementation of metadata.Store,
// suitable for development, testing, and single-node deployments where
// persistence across restarts is not required.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"goa.design/nl2api/metadata"
)

// Store is an in-memory implementation of metadata.Store. Safe for
// concurrent use.
type Store struct {
	mu sync.RWMutex

	projects  map[int]*metadata.Project
	endpoints map[int]*metadata.Endpoint
	params    map[int]map[int]*metadata.RequestParameter // endpointID -> paramID -> param
	fields    map[int][]metadata.ResponseField            // endpointID -> fields
	links     map[int][]metadata.FieldLink                 // projectID -> links
	messages  map[int][]*metadata.ResponseMessage          // endpointID -> messages

	nextID int
}

var _ metadata.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		projects:  make(map[int]*metadata.Project),
		endpoints: make(map[int]*metadata.Endpoint),
		params:    make(map[int]map[int]*metadata.RequestParameter),
		fields:    make(map[int][]metadata.ResponseField),
		links:     make(map[int][]metadata.FieldLink),
		messages:  make(map[int][]*metadata.ResponseMessage),
	}
}

func (s *Store) allocID() int {
	s.nextID++
	return s.nextID
}

func (s *Store) SaveProject(_ context.Context, project *metadata.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if project.ID == 0 {
		project.ID = s.allocID()
	}
	cp := *project
	s.projects[cp.ID] = &cp
	return nil
}

func (s *Store) GetProject(_ context.Context, id int) (*metadata.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) DeleteProject(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return metadata.ErrNotFound
	}
	delete(s.projects, id)
	for epID, ep := range s.endpoints {
		if ep.ProjectID == id {
			delete(s.endpoints, epID)
			delete(s.params, epID)
			delete(s.fields, epID)
			delete(s.messages, epID)
		}
	}
	delete(s.links, id)
	return nil
}

func (s *Store) SaveEndpoint(_ context.Context, ep *metadata.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.endpoints {
		if id == ep.ID {
			continue
		}
		if existing.ProjectID == ep.ProjectID && existing.Method == ep.Method && existing.Path == ep.Path {
			return fmt.Errorf("%w: endpoint %s %s already exists in project %d", metadata.ErrConflict, ep.Method, ep.Path, ep.ProjectID)
		}
	}
	if ep.ID == 0 {
		ep.ID = s.allocID()
	}
	cp := *ep
	s.endpoints[cp.ID] = &cp
	return nil
}

func (s *Store) GetEndpoint(_ context.Context, id int) (*metadata.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ep, ok := s.endpoints[id]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	cp := *ep
	return &cp, nil
}

func (s *Store) GetEndpointByLabel(_ context.Context, projectID int, method metadata.HTTPMethod, path string) (*metadata.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ep := range s.endpoints {
		if ep.ProjectID == projectID && ep.Method == method && ep.Path == path {
			cp := *ep
			return &cp, nil
		}
	}
	return nil, metadata.ErrNotFound
}

func (s *Store) ListEndpoints(_ context.Context, projectID int) ([]*metadata.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*metadata.Endpoint
	for _, ep := range s.endpoints {
		if ep.ProjectID == projectID {
			cp := *ep
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *Store) UpsertParameter(_ context.Context, param *metadata.RequestParameter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byName := s.params[param.EndpointID]
	if byName == nil {
		byName = make(map[int]*metadata.RequestParameter)
		s.params[param.EndpointID] = byName
	}
	for _, existing := range byName {
		if existing.Name == param.Name {
			existing.Type = param.Type
			existing.Required = param.Required
			existing.In = param.In
			existing.Description = param.Description
			return nil
		}
	}
	if param.ID == 0 {
		param.ID = s.allocID()
	}
	cp := *param
	byName[cp.ID] = &cp
	return nil
}

func (s *Store) RenameParameter(_ context.Context, endpointID int, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byName := s.params[endpointID]
	if byName == nil {
		return metadata.ErrNotFound
	}
	var target *metadata.RequestParameter
	for _, p := range byName {
		if p.Name == oldName {
			target = p
		}
		if p.Name == newName {
			// Target name already taken by another parameter: rename is a no-op.
			return nil
		}
	}
	if target == nil {
		return metadata.ErrNotFound
	}
	target.Name = newName
	return nil
}

func (s *Store) ListParameters(_ context.Context, endpointID int) ([]metadata.RequestParameter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byName := s.params[endpointID]
	result := make([]metadata.RequestParameter, 0, len(byName))
	for _, p := range byName {
		result = append(result, *p)
	}
	return result, nil
}

func (s *Store) ListResponseFields(_ context.Context, endpointID int) ([]metadata.ResponseField, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]metadata.ResponseField(nil), s.fields[endpointID]...), nil
}

func (s *Store) ListFieldLinks(_ context.Context, projectID int) ([]metadata.FieldLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]metadata.FieldLink(nil), s.links[projectID]...), nil
}

func (s *Store) UpsertResponseMessage(_ context.Context, msg *metadata.ResponseMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.messages[msg.EndpointID] {
		if existing.StatusCode == msg.StatusCode {
			// A message for this status code already exists; the existing one wins.
			return nil
		}
	}
	if msg.ID == 0 {
		msg.ID = s.allocID()
	}
	cp := *msg
	s.messages[msg.EndpointID] = append(s.messages[msg.EndpointID], &cp)
	return nil
}

func (s *Store) ListResponseMessages(_ context.Context, endpointID int) ([]metadata.ResponseMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[endpointID]
	result := make([]metadata.ResponseMessage, len(msgs))
	for i, m := range msgs {
		result[i] = *m
	}
	return result, nil
}

// SetFieldLinks replaces the field-link list for a project. Exposed for
// ingestion/test setup since field-links are created in bulk, not via
// incremental upsert like parameters and messages.
func (s *Store) SetFieldLinks(projectID int, links []metadata.FieldLink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[projectID] = append([]metadata.FieldLink(nil), links...)
}

// SetResponseFields replaces the response-field list for an endpoint.
func (s *Store) SetResponseFields(endpointID int, fields []metadata.ResponseField) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields[endpointID] = append([]metadata.ResponseField(nil), fields...)
}
