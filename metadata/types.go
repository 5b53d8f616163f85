// Package metadata implements the Metadata Repository (C1): the persisted
// catalog of projects, endpoints, parameters, response fields, field-links,
// and response messages that the rest of the pipeline reads and (via the
// healer) mutates.
package metadata

import "time"

// HTTPMethod enumerates the methods an Endpoint may be registered under.
type HTTPMethod string

const (
	MethodGet     HTTPMethod = "GET"
	MethodPost    HTTPMethod = "POST"
	MethodPut     HTTPMethod = "PUT"
	MethodDelete  HTTPMethod = "DELETE"
	MethodPatch   HTTPMethod = "PATCH"
	MethodHead    HTTPMethod = "HEAD"
	MethodOptions HTTPMethod = "OPTIONS"
)

// ParamLocation enumerates where a RequestParameter is rendered.
type ParamLocation string

const (
	InPath   ParamLocation = "path"
	InQuery  ParamLocation = "query"
	InHeader ParamLocation = "header"
	InBody   ParamLocation = "body"
)

// Project owns a set of endpoints under a single base URL. Destroyed and
// recreated wholesale when its spec is replaced by ingestion.
type Project struct {
	ID          int       `json:"id" bson:"_id"`
	Name        string    `json:"name" bson:"name"`
	Version     string    `json:"version" bson:"version"`
	BaseURL     string    `json:"baseUrl" bson:"baseUrl"`
	Domain      string    `json:"domain" bson:"domain"`
	Description string    `json:"description" bson:"description"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}

// Endpoint is a single (METHOD, PATH) callable within a Project. The triple
// (ProjectID, Method, Path) is its immutable unique key; PromptText,
// Keywords, IntentPatterns, and EmbeddingVector may be updated idempotently
// by the healer.
type Endpoint struct {
	ID              int        `json:"id" bson:"_id"`
	ProjectID       int        `json:"projectId" bson:"projectId"`
	Method          HTTPMethod `json:"method" bson:"method"`
	Path            string     `json:"path" bson:"path"`
	Summary         string     `json:"summary" bson:"summary"`
	PromptText      string     `json:"promptText" bson:"promptText"`
	Keywords        []string   `json:"keywords" bson:"keywords"`
	IntentPatterns  []string   `json:"intentPatterns" bson:"intentPatterns"`
	EmbeddingVector []float64  `json:"embeddingVector,omitempty" bson:"embeddingVector,omitempty"`

	// Params/ResponseFields/Messages are populated by Repository.ListEndpoints,
	// which always eager-loads them; Store implementations leave them nil.
	Params         []RequestParameter `json:"params,omitempty" bson:"-"`
	ResponseFields []ResponseField    `json:"responseFields,omitempty" bson:"-"`
	Messages       []ResponseMessage  `json:"messages,omitempty" bson:"-"`
}

// Label renders the endpoint's immutable key as "METHOD PATH", the exact
// string form the planner and executor exchange.
func (e Endpoint) Label() string {
	return string(e.Method) + " " + e.Path
}

// RequestParameter is a single input to an Endpoint. Unique on
// (EndpointID, Name); mutable by the healer (create, rename, re-type).
type RequestParameter struct {
	ID          int           `json:"id" bson:"_id"`
	EndpointID  int           `json:"endpointId" bson:"endpointId"`
	Name        string        `json:"name" bson:"name"`
	In          ParamLocation `json:"in" bson:"in"`
	Type        string        `json:"type" bson:"type"`
	Required    bool          `json:"required" bson:"required"`
	Description string        `json:"description" bson:"description"`
}

// ResponseField names a JSONPath-addressable location in an Endpoint's
// response body, e.g. "$.id" or "$.items[*].id".
type ResponseField struct {
	ID          int    `json:"id" bson:"_id"`
	EndpointID  int    `json:"endpointId" bson:"endpointId"`
	JSONPath    string `json:"jsonPath" bson:"jsonPath"`
	Type        string `json:"type" bson:"type"`
	Description string `json:"description" bson:"description"`
}

// RelationType describes how a FieldLink's source value relates to its
// target parameter.
type RelationType string

const (
	RelationIdentity  RelationType = "identity"
	RelationDerivedBy RelationType = "derived"
)

// FieldLink declares that the value at FromField.JSONPath of one endpoint's
// response may feed ToParamName of another endpoint; used as planner hints,
// never enforced.
type FieldLink struct {
	ID           int          `json:"id" bson:"_id"`
	FromFieldID  int          `json:"fromFieldId" bson:"fromFieldId"`
	ToEndpointID int          `json:"toEndpointId" bson:"toEndpointId"`
	ToParamName  string       `json:"toParamName" bson:"toParamName"`
	RelationType RelationType `json:"relationType" bson:"relationType"`
	Description  string       `json:"description" bson:"description"`
}

// ResponseMessage maps an Endpoint's HTTP status code to user-facing text.
// Mutable by the healer.
type ResponseMessage struct {
	ID         int    `json:"id" bson:"_id"`
	EndpointID int    `json:"endpointId" bson:"endpointId"`
	StatusCode int    `json:"statusCode" bson:"statusCode"`
	Message    string `json:"message" bson:"message"`
	Suggestion string `json:"suggestion" bson:"suggestion"`
}
