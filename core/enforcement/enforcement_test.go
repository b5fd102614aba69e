package enforcement

import (
	"testing"

	coreerrors "github.com/davidahmann/reportgate/core/errors"
)

func TestStatic(t *testing.T) {
	if !Static(true).Enabled("group/app") {
		t.Fatalf("expected static true to enforce")
	}
	if Static(false).Enabled("") {
		t.Fatalf("expected static false to not enforce")
	}
}

func TestPolicyOverrides(t *testing.T) {
	projects := map[string]bool{" group/legacy ": false, "group/strict": true, "": false}
	policy := NewPolicy(true, projects)
	projects["group/app"] = false

	cases := map[string]bool{
		"group/legacy":  false,
		"group/strict":  true,
		"group/app":     true,
		" group/legacy": false,
		"":              true,
	}
	for ref, want := range cases {
		if got := policy.Enabled(ref); got != want {
			t.Fatalf("Enabled(%q)=%t want %t", ref, got, want)
		}
	}
	if len(policy.Overrides()) != 2 {
		t.Fatalf("unexpected overrides: %v", policy.Overrides())
	}

	var zero Policy
	if zero.Enabled("group/app") {
		t.Fatalf("zero policy must not enforce")
	}
}

func TestParseToggle(t *testing.T) {
	for _, value := range []string{"on", "ON", " true ", "1", "enforce"} {
		if enabled, err := ParseToggle(value); err != nil || !enabled {
			t.Fatalf("ParseToggle(%q)=%t err=%v", value, enabled, err)
		}
	}
	for _, value := range []string{"off", "false", "0", "warn"} {
		if enabled, err := ParseToggle(value); err != nil || enabled {
			t.Fatalf("ParseToggle(%q)=%t err=%v", value, enabled, err)
		}
	}
	_, err := ParseToggle("sometimes")
	if coreerrors.CategoryOf(err) != coreerrors.CategoryInvalidInput {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}
