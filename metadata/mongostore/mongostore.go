// Package mongostore persists metadata to MongoDB for durability across
// restarts, suitable for production deployments where the in-memory
// metadata/memstore is not appropriate.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"goa.design/nl2api/metadata"
)

// Store is a MongoDB-backed implementation of metadata.Store.
type Store struct {
	projects  *mongo.Collection
	endpoints *mongo.Collection
	params    *mongo.Collection
	fields    *mongo.Collection
	links     *mongo.Collection
	messages  *mongo.Collection
}

var _ metadata.Store = (*Store)(nil)

// New creates a MongoDB-backed store over the given database. Each entity
// kind gets its own collection, named after the entity.
func New(db *mongo.Database) *Store {
	return &Store{
		projects:  db.Collection("projects"),
		endpoints: db.Collection("endpoints"),
		params:    db.Collection("parameters"),
		fields:    db.Collection("response_fields"),
		links:     db.Collection("field_links"),
		messages:  db.Collection("response_messages"),
	}
}

func (s *Store) SaveProject(ctx context.Context, project *metadata.Project) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.projects.ReplaceOne(ctx, bson.M{"_id": project.ID}, project, opts)
	if err != nil {
		return fmt.Errorf("mongostore: save project %d: %w", project.ID, err)
	}
	return nil
}

func (s *Store) GetProject(ctx context.Context, id int) (*metadata.Project, error) {
	var p metadata.Project
	err := s.projects.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, metadata.ErrNotFound
		}
		return nil, fmt.Errorf("mongostore: get project %d: %w", id, err)
	}
	return &p, nil
}

func (s *Store) DeleteProject(ctx context.Context, id int) error {
	res, err := s.projects.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongostore: delete project %d: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return metadata.ErrNotFound
	}
	_, _ = s.endpoints.DeleteMany(ctx, bson.M{"projectId": id})
	_, _ = s.links.DeleteMany(ctx, bson.M{"projectId": id})
	return nil
}

func (s *Store) SaveEndpoint(ctx context.Context, ep *metadata.Endpoint) error {
	existing, err := s.GetEndpointByLabel(ctx, ep.ProjectID, ep.Method, ep.Path)
	if err == nil && existing.ID != ep.ID {
		return fmt.Errorf("%w: endpoint %s %s already exists in project %d", metadata.ErrConflict, ep.Method, ep.Path, ep.ProjectID)
	}
	opts := options.Replace().SetUpsert(true)
	_, saveErr := s.endpoints.ReplaceOne(ctx, bson.M{"_id": ep.ID}, ep, opts)
	if saveErr != nil {
		return fmt.Errorf("mongostore: save endpoint %d: %w", ep.ID, saveErr)
	}
	return nil
}

func (s *Store) GetEndpoint(ctx context.Context, id int) (*metadata.Endpoint, error) {
	var ep metadata.Endpoint
	err := s.endpoints.FindOne(ctx, bson.M{"_id": id}).Decode(&ep)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, metadata.ErrNotFound
		}
		return nil, fmt.Errorf("mongostore: get endpoint %d: %w", id, err)
	}
	return &ep, nil
}

func (s *Store) GetEndpointByLabel(ctx context.Context, projectID int, method metadata.HTTPMethod, path string) (*metadata.Endpoint, error) {
	var ep metadata.Endpoint
	filter := bson.M{"projectId": projectID, "method": method, "path": path}
	err := s.endpoints.FindOne(ctx, filter).Decode(&ep)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, metadata.ErrNotFound
		}
		return nil, fmt.Errorf("mongostore: get endpoint %s %s: %w", method, path, err)
	}
	return &ep, nil
}

func (s *Store) ListEndpoints(ctx context.Context, projectID int) ([]*metadata.Endpoint, error) {
	cursor, err := s.endpoints.Find(ctx, bson.M{"projectId": projectID})
	if err != nil {
		return nil, fmt.Errorf("mongostore: list endpoints for project %d: %w", projectID, err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var result []*metadata.Endpoint
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("mongostore: decode endpoints for project %d: %w", projectID, err)
	}
	return result, nil
}

func (s *Store) UpsertParameter(ctx context.Context, param *metadata.RequestParameter) error {
	filter := bson.M{"endpointId": param.EndpointID, "name": param.Name}
	update := bson.M{"$set": bson.M{
		"in":          param.In,
		"type":        param.Type,
		"required":    param.Required,
		"description": param.Description,
	}}
	opts := options.UpdateOne().SetUpsert(true)
	_, err := s.params.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("mongostore: upsert parameter %q on endpoint %d: %w", param.Name, param.EndpointID, err)
	}
	return nil
}

func (s *Store) RenameParameter(ctx context.Context, endpointID int, oldName, newName string) error {
	count, err := s.params.CountDocuments(ctx, bson.M{"endpointId": endpointID, "name": newName})
	if err != nil {
		return fmt.Errorf("mongostore: check parameter name conflict: %w", err)
	}
	if count > 0 {
		// Target name already taken by another parameter: rename is a no-op.
		return nil
	}
	res, err := s.params.UpdateOne(ctx,
		bson.M{"endpointId": endpointID, "name": oldName},
		bson.M{"$set": bson.M{"name": newName}})
	if err != nil {
		return fmt.Errorf("mongostore: rename parameter %q->%q: %w", oldName, newName, err)
	}
	if res.MatchedCount == 0 {
		return metadata.ErrNotFound
	}
	return nil
}

func (s *Store) ListParameters(ctx context.Context, endpointID int) ([]metadata.RequestParameter, error) {
	cursor, err := s.params.Find(ctx, bson.M{"endpointId": endpointID})
	if err != nil {
		return nil, fmt.Errorf("mongostore: list parameters for endpoint %d: %w", endpointID, err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var result []metadata.RequestParameter
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("mongostore: decode parameters for endpoint %d: %w", endpointID, err)
	}
	return result, nil
}

func (s *Store) ListResponseFields(ctx context.Context, endpointID int) ([]metadata.ResponseField, error) {
	cursor, err := s.fields.Find(ctx, bson.M{"endpointId": endpointID})
	if err != nil {
		return nil, fmt.Errorf("mongostore: list response fields for endpoint %d: %w", endpointID, err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var result []metadata.ResponseField
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("mongostore: decode response fields for endpoint %d: %w", endpointID, err)
	}
	return result, nil
}

func (s *Store) ListFieldLinks(ctx context.Context, projectID int) ([]metadata.FieldLink, error) {
	cursor, err := s.links.Find(ctx, bson.M{"projectId": projectID})
	if err != nil {
		return nil, fmt.Errorf("mongostore: list field links for project %d: %w", projectID, err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var result []metadata.FieldLink
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("mongostore: decode field links for project %d: %w", projectID, err)
	}
	return result, nil
}

func (s *Store) UpsertResponseMessage(ctx context.Context, msg *metadata.ResponseMessage) error {
	count, err := s.messages.CountDocuments(ctx, bson.M{"endpointId": msg.EndpointID, "statusCode": msg.StatusCode})
	if err != nil {
		return fmt.Errorf("mongostore: check response message existence: %w", err)
	}
	if count > 0 {
		// A message for this status code already exists; the existing one wins.
		return nil
	}
	if _, err := s.messages.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("mongostore: insert response message for endpoint %d status %d: %w", msg.EndpointID, msg.StatusCode, err)
	}
	return nil
}

func (s *Store) ListResponseMessages(ctx context.Context, endpointID int) ([]metadata.ResponseMessage, error) {
	cursor, err := s.messages.Find(ctx, bson.M{"endpointId": endpointID})
	if err != nil {
		return nil, fmt.Errorf("mongostore: list response messages for endpoint %d: %w", endpointID, err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var result []metadata.ResponseMessage
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("mongostore: decode response messages for endpoint %d: %w", endpointID, err)
	}
	return result, nil
}
