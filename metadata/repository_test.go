package metadata_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/nl2api/metadata"
	"goa.design/nl2api/metadata/memstore"
)

func newRepo(t *testing.T) (*metadata.Repository, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	return metadata.NewRepository(store), store
}

func TestFindByLabelCaseInsensitiveMethodCaseSensitivePath(t *testing.T) {
	repo, store := newRepo(t)
	ctx := context.Background()
	require.NoError(t, store.SaveEndpoint(ctx, &metadata.Endpoint{ProjectID: 1, Method: metadata.MethodGet, Path: "/Pets"}))

	ep, err := repo.FindByLabel(ctx, 1, "get /Pets")
	require.NoError(t, err)
	assert.Equal(t, "/Pets", ep.Path)

	_, err = repo.FindByLabel(ctx, 1, "GET /pets")
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func TestListEndpointsCachesUntilInvalidated(t *testing.T) {
	repo, store := newRepo(t)
	ctx := context.Background()
	require.NoError(t, store.SaveEndpoint(ctx, &metadata.Endpoint{ID: 1, ProjectID: 1, Method: metadata.MethodGet, Path: "/pets"}))

	first, err := repo.ListEndpoints(ctx, 1)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Write directly to the store, bypassing the repository: the cached
	// list should not reflect it until invalidated.
	require.NoError(t, store.SaveEndpoint(ctx, &metadata.Endpoint{ID: 2, ProjectID: 1, Method: metadata.MethodGet, Path: "/orders"}))
	stale, err := repo.ListEndpoints(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, stale, 1)

	repo.Invalidate(1)
	fresh, err := repo.ListEndpoints(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
}

func TestUpsertParameterInvalidatesOwningProject(t *testing.T) {
	repo, store := newRepo(t)
	ctx := context.Background()
	require.NoError(t, store.SaveEndpoint(ctx, &metadata.Endpoint{ID: 1, ProjectID: 1, Method: metadata.MethodPost, Path: "/pet"}))

	_, err := repo.ListEndpoints(ctx, 1) // populate cache
	require.NoError(t, err)

	require.NoError(t, repo.UpsertParameter(ctx, 1, &metadata.RequestParameter{EndpointID: 1, Name: "photoUrls", Required: true}))

	endpoints, err := repo.ListEndpoints(ctx, 1)
	require.NoError(t, err)
	require.Len(t, endpoints, 1)
	require.Len(t, endpoints[0].Params, 1)
	assert.Equal(t, "photoUrls", endpoints[0].Params[0].Name)
}

// Applying the same metadata delta twice is equivalent to applying it once.
func TestIdempotentHeal(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	param := &metadata.RequestParameter{EndpointID: 1, Name: "photoUrls", Required: true, Type: "array"}

	require.NoError(t, repo.UpsertParameter(ctx, 1, param))
	require.NoError(t, repo.UpsertParameter(ctx, 1, param))

	endpoints, err := repo.ListEndpoints(ctx, 1)
	require.NoError(t, err)
	require.Len(t, endpoints, 0) // no endpoint registered, only a dangling parameter; repository still reports cleanly

	require.NoError(t, repo.RenameParameter(ctx, 1, 1, "photoUrls", "photoUrls"))
}
