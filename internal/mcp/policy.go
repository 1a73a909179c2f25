package mcp

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ispacehq/ivault/pkg/catalog"
)

// Policy controls what the MCP server exposes. Tools only ever return
// item metadata, and the policy narrows that further to specific item
// types.
type Policy struct {
	Version       int      `yaml:"version"`
	DefaultAction string   `yaml:"default_action"`
	ExposedTypes  []string `yaml:"exposed_types"`
	DeniedTypes   []string `yaml:"denied_types"`
}

// Policy action constants.
const (
	ActionAllow = "allow"
	ActionDeny  = "deny"
)

// Sentinel errors.
var (
	// ErrPolicyNotFound is returned when no policy file exists.
	ErrPolicyNotFound = errors.New("mcp: policy file not found")

	// ErrPolicyInsecure is returned when the policy file has permissions
	// other than 0600.
	ErrPolicyInsecure = errors.New("mcp: policy file has insecure permissions")

	// ErrPolicySymlink is returned when the policy file is a symlink.
	ErrPolicySymlink = errors.New("mcp: policy file is a symlink")
)

// LoadPolicy loads the exposure policy from path. The file must be a
// regular file with 0600 permissions; symlinks are rejected.
func LoadPolicy(path string) (*Policy, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPolicyNotFound
		}
		return nil, fmt.Errorf("mcp: failed to stat policy file: %w", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, ErrPolicySymlink
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		return nil, fmt.Errorf("%w: %o (expected 0600)", ErrPolicyInsecure, perm)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mcp: failed to read policy file: %w", err)
	}

	var policy Policy
	if err := yaml.Unmarshal(content, &policy); err != nil {
		return nil, fmt.Errorf("mcp: failed to parse policy file: %w", err)
	}
	if policy.Version != 1 {
		return nil, fmt.Errorf("mcp: unsupported policy version: %d", policy.Version)
	}
	if policy.DefaultAction == "" {
		policy.DefaultAction = ActionDeny
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &policy, nil
}

// Validate checks the policy for contradictions.
func (p *Policy) Validate() error {
	if p.DefaultAction != ActionDeny && p.DefaultAction != ActionAllow {
		return fmt.Errorf("mcp: invalid default_action: %s (must be %q or %q)",
			p.DefaultAction, ActionAllow, ActionDeny)
	}
	for _, t := range append(append([]string{}, p.ExposedTypes...), p.DeniedTypes...) {
		if !catalog.ItemType(t).Valid() {
			return fmt.Errorf("mcp: unknown item type in policy: %q", t)
		}
	}
	return nil
}

// IsTypeExposed reports whether items of type t may appear in tool
// results. Denied entries win over exposed entries; unlisted types fall
// back to the default action.
func (p *Policy) IsTypeExposed(t catalog.ItemType) bool {
	for _, denied := range p.DeniedTypes {
		if catalog.ItemType(denied) == t {
			return false
		}
	}
	for _, exposed := range p.ExposedTypes {
		if catalog.ItemType(exposed) == t {
			return true
		}
	}
	return p.DefaultAction == ActionAllow
}

// RestrictedPolicy is the policy used when no policy file exists:
// nothing is exposed.
func RestrictedPolicy() *Policy {
	return &Policy{Version: 1, DefaultAction: ActionDeny}
}
