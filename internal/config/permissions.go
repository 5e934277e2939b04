package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// StageDefinition is one (code, display label) pair of the ordered stage list.
type StageDefinition struct {
	Code  string `mapstructure:"code"`
	Label string `mapstructure:"label"`
}

// PermissionConfig is the role to stage permission table together with the
// stage enumeration it refers to. It is loaded once at startup and never
// reloaded.
type PermissionConfig struct {
	Stages []StageDefinition    `mapstructure:"stages"`
	Roles  map[string][]string `mapstructure:"roles"`
}

func DefaultPermissionConfig() PermissionConfig {
	return PermissionConfig{
		Stages: []StageDefinition{
			{Code: "sourcing", Label: "Sourcing"},
			{Code: "manufacturing", Label: "Manufacturing"},
			{Code: "processing", Label: "Processing"},
			{Code: "packing", Label: "Packing"},
			{Code: "shipping", Label: "Shipping"},
			{Code: "delivery", Label: "Delivery"},
			{Code: "retail", Label: "In Retail"},
		},
		Roles: map[string][]string{
			"supplier":     {"sourcing"},
			"manufacturer": {"manufacturing", "processing", "packing"},
			"logistics":    {"shipping", "delivery"},
			"retailer":     {"retail"},
			"manager":      {"sourcing", "manufacturing", "processing", "packing", "shipping", "delivery", "retail"},
			"customer":     {},
		},
	}
}

// LoadPermissions reads the permission table from permissions.yaml. An
// explicit PERMISSIONS_FILE must exist; otherwise the search paths are tried
// and the built-in defaults apply when no file is found.
func LoadPermissions(cfg Config) (PermissionConfig, error) {
	v := viper.New()

	if path := strings.TrimSpace(cfg.PermissionsFile); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("permissions")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/tracechain")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfg.PermissionsFile != "" || !errors.As(err, &notFound) {
			return PermissionConfig{}, fmt.Errorf("read permissions: %w", err)
		}
		defaults := DefaultPermissionConfig()
		return defaults, nil
	}

	var out PermissionConfig
	if err := v.Unmarshal(&out); err != nil {
		return PermissionConfig{}, fmt.Errorf("decode permissions: %w", err)
	}
	if len(out.Stages) == 0 {
		out.Stages = DefaultPermissionConfig().Stages
	}
	if err := ValidatePermissions(out); err != nil {
		return PermissionConfig{}, err
	}
	return normalizePermissions(out), nil
}

// ValidatePermissions checks that stages are unique and non-empty and that
// every role only refers to declared stages.
func ValidatePermissions(cfg PermissionConfig) error {
	if len(cfg.Stages) == 0 {
		return errors.New("permissions.stages cannot be empty")
	}
	seen := make(map[string]struct{}, len(cfg.Stages))
	for _, def := range cfg.Stages {
		code := strings.ToLower(strings.TrimSpace(def.Code))
		if code == "" {
			return errors.New("permissions.stages: empty stage code")
		}
		if _, ok := seen[code]; ok {
			return fmt.Errorf("permissions.stages: duplicate stage %q", code)
		}
		seen[code] = struct{}{}
	}
	for role, stages := range cfg.Roles {
		if strings.TrimSpace(role) == "" {
			return errors.New("permissions.roles: empty role name")
		}
		for _, code := range stages {
			if _, ok := seen[strings.ToLower(strings.TrimSpace(code))]; !ok {
				return fmt.Errorf("permissions.roles.%s: unknown stage %q", role, code)
			}
		}
	}
	return nil
}

func normalizePermissions(cfg PermissionConfig) PermissionConfig {
	out := PermissionConfig{
		Stages: make([]StageDefinition, 0, len(cfg.Stages)),
		Roles:  make(map[string][]string, len(cfg.Roles)),
	}
	for _, def := range cfg.Stages {
		code := strings.ToLower(strings.TrimSpace(def.Code))
		label := strings.TrimSpace(def.Label)
		if label == "" {
			label = code
		}
		out.Stages = append(out.Stages, StageDefinition{Code: code, Label: label})
	}
	for role, stages := range cfg.Roles {
		name := strings.ToLower(strings.TrimSpace(role))
		codes := make([]string, 0, len(stages))
		for _, code := range stages {
			codes = append(codes, strings.ToLower(strings.TrimSpace(code)))
		}
		out.Roles[name] = codes
	}
	return out
}
