package permission

import (
	"testing"

	"github.com/smallbiznis/tracechain/internal/config"
	"github.com/smallbiznis/tracechain/internal/stage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultTable(t *testing.T) (*Table, *stage.Catalog) {
	t.Helper()
	cfg := config.DefaultPermissionConfig()
	catalog, err := stage.FromConfig(cfg)
	require.NoError(t, err)
	table, err := NewTable(cfg, catalog)
	require.NoError(t, err)
	return table, catalog
}

func TestPermittedStagesDefaults(t *testing.T) {
	table, _ := newDefaultTable(t)

	assert.Equal(t, []stage.Code{"sourcing"}, table.PermittedStages("supplier"))
	assert.Equal(t, []stage.Code{"manufacturing", "processing", "packing"}, table.PermittedStages("Manufacturer"))
	assert.Equal(t, []stage.Code{"shipping", "delivery"}, table.PermittedStages("logistics"))
	assert.Len(t, table.PermittedStages("manager"), 7)
	assert.Empty(t, table.PermittedStages("customer"))
	assert.Empty(t, table.PermittedStages("pirate"))
}

func TestNewTableRejectsUnknownStage(t *testing.T) {
	cfg := config.DefaultPermissionConfig()
	catalog, err := stage.FromConfig(cfg)
	require.NoError(t, err)

	cfg.Roles = map[string][]string{"supplier": {"teleport"}}
	_, err = NewTable(cfg, catalog)
	assert.Error(t, err)
}

func TestRolesAreSorted(t *testing.T) {
	table, _ := newDefaultTable(t)
	assert.Equal(t, []string{"customer", "logistics", "manager", "manufacturer", "retailer", "supplier"}, table.Roles())
}
