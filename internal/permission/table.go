package permission

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/smallbiznis/tracechain/internal/config"
	"github.com/smallbiznis/tracechain/internal/stage"
)

//go:embed model.conf
var modelText string

const objectStage = "stage"

// Table is the role to stage permission table. It is built once from config
// and has no mutation API.
type Table struct {
	enforcer *casbin.SyncedEnforcer
	catalog  *stage.Catalog
	roles    []string
}

// NewTable loads cfg into an adapterless enforcer. Roles naming stages that
// are not in catalog are rejected.
func NewTable(cfg config.PermissionConfig, catalog *stage.Catalog) (*Table, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}

	var policies [][]string
	roles := make([]string, 0, len(cfg.Roles))
	for rawRole, stages := range cfg.Roles {
		role := normalizeRole(rawRole)
		if role == "" {
			return nil, fmt.Errorf("permission table: empty role name")
		}
		roles = append(roles, role)
		for _, raw := range stages {
			code := stage.Code(strings.ToLower(strings.TrimSpace(raw)))
			if !catalog.Contains(code) {
				return nil, fmt.Errorf("permission table: role %q names unknown stage %q", role, raw)
			}
			policies = append(policies, []string{subject(role), objectStage, string(code)})
		}
	}
	if len(policies) > 0 {
		if _, err := enforcer.AddPolicies(policies); err != nil {
			return nil, err
		}
	}
	sort.Strings(roles)

	return &Table{enforcer: enforcer, catalog: catalog, roles: roles}, nil
}

// PermittedStages returns the stages role may record, in catalog order. An
// unknown role yields an empty set.
func (t *Table) PermittedStages(role string) []stage.Code {
	rules, err := t.enforcer.GetFilteredPolicy(0, subject(normalizeRole(role)), objectStage)
	if err != nil {
		return nil
	}
	codes := make([]stage.Code, 0, len(rules))
	for _, rule := range rules {
		if len(rule) < 3 {
			continue
		}
		codes = append(codes, stage.Code(rule[2]))
	}
	t.catalog.Sort(codes)
	return codes
}

// Allows reports whether role may record code.
func (t *Table) Allows(role string, code stage.Code) (bool, error) {
	return t.enforcer.Enforce(subject(normalizeRole(role)), objectStage, string(code))
}

// Roles lists the configured role names.
func (t *Table) Roles() []string {
	out := make([]string, len(t.roles))
	copy(out, t.roles)
	return out
}

func subject(role string) string {
	return "role:" + role
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
