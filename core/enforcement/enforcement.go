package enforcement

import (
	"fmt"
	"strings"

	coreerrors "github.com/davidahmann/reportgate/core/errors"
)

// FlagName is the per-project feature flag that turns validation problems into
// hard errors.
const FlagName = "enforce_security_report_validation"

// Resolver answers whether enforcement is on for a project. It is consulted
// once per validation call.
type Resolver interface {
	Enabled(projectRef string) bool
}

// Static applies the same answer to every project.
type Static bool

func (s Static) Enabled(string) bool {
	return bool(s)
}

// Policy is a default plus per-project overrides. The zero value enforces
// nothing; use NewPolicy for the usual enforce-by-default behaviour.
type Policy struct {
	defaultOn bool
	projects  map[string]bool
}

func NewPolicy(defaultOn bool, projects map[string]bool) Policy {
	overrides := make(map[string]bool, len(projects))
	for ref, enabled := range projects {
		trimmed := strings.TrimSpace(ref)
		if trimmed == "" {
			continue
		}
		overrides[trimmed] = enabled
	}
	return Policy{defaultOn: defaultOn, projects: overrides}
}

func (p Policy) Enabled(projectRef string) bool {
	if enabled, ok := p.projects[strings.TrimSpace(projectRef)]; ok {
		return enabled
	}
	return p.defaultOn
}

func (p Policy) Default() bool {
	return p.defaultOn
}

// Overrides returns a copy of the per-project settings.
func (p Policy) Overrides() map[string]bool {
	out := make(map[string]bool, len(p.projects))
	for ref, enabled := range p.projects {
		out[ref] = enabled
	}
	return out
}

// ParseToggle reads on/off style switches from flags and environment.
func ParseToggle(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "true", "1", "yes", "enforce":
		return true, nil
	case "off", "false", "0", "no", "warn":
		return false, nil
	default:
		return false, coreerrors.Wrap(
			fmt.Errorf("invalid enforcement toggle %q", value),
			coreerrors.CategoryInvalidInput,
			"invalid_enforcement_toggle",
			"use on or off",
			false,
		)
	}
}
