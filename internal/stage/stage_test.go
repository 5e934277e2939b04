package stage

import (
	"testing"

	"github.com/smallbiznis/tracechain/internal/config"
	"github.com/smallbiznis/tracechain/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := FromConfig(config.DefaultPermissionConfig())
	require.NoError(t, err)
	return c
}

func TestCatalogKeepsDeclarationOrder(t *testing.T) {
	c := defaultCatalog(t)

	assert.Equal(t, []Code{"sourcing", "manufacturing", "processing", "packing", "shipping", "delivery", "retail"}, c.Codes())
	assert.Equal(t, 4, c.Index("shipping"))
	assert.Equal(t, -1, c.Index("teleport"))
	assert.Equal(t, "In Retail", c.Label("retail"))
	assert.Equal(t, "teleport", c.Label("teleport"))
}

func TestParseNormalizes(t *testing.T) {
	c := defaultCatalog(t)

	code, err := c.Parse("  Shipping ")
	require.NoError(t, err)
	assert.Equal(t, Code("shipping"), code)

	_, err = c.Parse("teleport")
	assert.True(t, errs.IsValidation(err))
	_, err = c.Parse("")
	assert.True(t, errs.IsValidation(err))
}

func TestNewCatalogRejectsDuplicates(t *testing.T) {
	_, err := NewCatalog([]config.StageDefinition{{Code: "a"}, {Code: "A"}})
	assert.Error(t, err)

	_, err = NewCatalog(nil)
	assert.Error(t, err)
}

func TestSortUsesCatalogOrder(t *testing.T) {
	c := defaultCatalog(t)
	codes := []Code{"retail", "unknown", "sourcing", "shipping"}
	c.Sort(codes)
	assert.Equal(t, []Code{"sourcing", "shipping", "retail", "unknown"}, codes)
}
