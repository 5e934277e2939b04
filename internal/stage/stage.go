// Package stage holds the ordered catalog of supply chain stages.
package stage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/smallbiznis/tracechain/internal/config"
	"github.com/smallbiznis/tracechain/internal/errs"
	"go.uber.org/fx"
)

// Code identifies a stage, e.g. "shipping".
type Code string

type Definition struct {
	Code  Code   `json:"code"`
	Label string `json:"label"`
}

// Catalog is the immutable, ordered stage enumeration. Declaration order is
// the order every per-stage result is reported in.
type Catalog struct {
	defs  []Definition
	index map[Code]int
}

var Module = fx.Module("stage",
	fx.Provide(FromConfig),
)

func FromConfig(cfg config.PermissionConfig) (*Catalog, error) {
	return NewCatalog(cfg.Stages)
}

func NewCatalog(defs []config.StageDefinition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("stage catalog is empty")
	}
	c := &Catalog{
		defs:  make([]Definition, 0, len(defs)),
		index: make(map[Code]int, len(defs)),
	}
	for _, def := range defs {
		code := Code(strings.ToLower(strings.TrimSpace(def.Code)))
		if code == "" {
			return nil, fmt.Errorf("stage catalog: empty code")
		}
		if _, dup := c.index[code]; dup {
			return nil, fmt.Errorf("stage catalog: duplicate code %q", code)
		}
		label := strings.TrimSpace(def.Label)
		if label == "" {
			label = string(code)
		}
		c.index[code] = len(c.defs)
		c.defs = append(c.defs, Definition{Code: code, Label: label})
	}
	return c, nil
}

// All returns a copy of the definitions in declaration order.
func (c *Catalog) All() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

func (c *Catalog) Codes() []Code {
	out := make([]Code, 0, len(c.defs))
	for _, def := range c.defs {
		out = append(out, def.Code)
	}
	return out
}

func (c *Catalog) Contains(code Code) bool {
	_, ok := c.index[code]
	return ok
}

// Index returns the declaration position of code, or -1.
func (c *Catalog) Index(code Code) int {
	if i, ok := c.index[code]; ok {
		return i
	}
	return -1
}

// Label returns the display label, falling back to the code itself.
func (c *Catalog) Label(code Code) string {
	if i, ok := c.index[code]; ok {
		return c.defs[i].Label
	}
	return string(code)
}

// Parse normalizes raw and checks it against the catalog.
func (c *Catalog) Parse(raw string) (Code, error) {
	code := Code(strings.ToLower(strings.TrimSpace(raw)))
	if code == "" {
		return "", errs.Invalid("stage", "required")
	}
	if !c.Contains(code) {
		return "", errs.Invalid("stage", "unknown")
	}
	return code, nil
}

// Sort orders codes by declaration order in place. Unknown codes sort last.
func (c *Catalog) Sort(codes []Code) {
	pos := func(code Code) int {
		if i := c.Index(code); i >= 0 {
			return i
		}
		return len(c.defs)
	}
	sort.SliceStable(codes, func(i, j int) bool {
		return pos(codes[i]) < pos(codes[j])
	})
}
