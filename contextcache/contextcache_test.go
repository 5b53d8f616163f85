package contextcache_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/nl2api/contextcache"
)

func TestFindRelevantContextOrdersByRelevanceThenRecency(t *testing.T) {
	c := contextcache.New()
	c.Put(1, "find available pets", "u1", map[string]any{"n": 1})
	c.Put(1, "find pets by status", "u1", map[string]any{"n": 2})
	c.Put(1, "unrelated billing question", "u1", map[string]any{"n": 3})

	results := c.FindRelevantContext(1, "find pets", "u1")
	require.NotEmpty(t, results)
	// Both pet-related queries should outrank the unrelated one.
	for _, r := range results[:2] {
		assert.Contains(t, r.Query, "pets")
	}
}

func TestFindRelevantContextCapsAtFive(t *testing.T) {
	c := contextcache.New()
	for i := 0; i < 10; i++ {
		c.Put(1, "find pets", "u1", i)
	}
	results := c.FindRelevantContext(1, "find pets", "u1")
	assert.LessOrEqual(t, len(results), 5)
}

func TestManyPutsStillReturnAtMostFive(t *testing.T) {
	c := contextcache.New()
	for i := 0; i < 30; i++ {
		c.Put(1, "query", "u1", i)
	}
	// Thirty puts for one user still yield at most 5 results. The session
	// tier's cap of 20 is not visible through the public API and is not
	// checked here.
	results := c.FindRelevantContext(1, "query", "u1")
	assert.LessOrEqual(t, len(results), 5)
}

func TestAnonymousUsersShareHistoryBucket(t *testing.T) {
	c := contextcache.New()
	c.Put(1, "find pets", "", "anon-result")
	results := c.FindRelevantContext(1, "find pets", "")
	require.NotEmpty(t, results)
	assert.Equal(t, "", results[0].UserID)
}

// FindRelevantContext(p1, q, u) never returns entries from a different project.
func TestCacheIsolation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("results never leak across projects", prop.ForAll(
		func(p1, p2 int, query string) bool {
			if p1 == p2 {
				p2++
			}
			c := contextcache.New()
			c.Put(p1, query, "u1", "a")
			c.Put(p2, query, "u1", "b")

			results := c.FindRelevantContext(p1, query, "u1")
			for _, r := range results {
				if r.ProjectID != p1 {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 1000),
		gen.IntRange(1, 1000),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
