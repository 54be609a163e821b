package core

import (
	"slices"
	"testing"
)

// Client guards and backend rules report violations by name, so the
// built-in sets must stay stable and unambiguous.
func TestDefaultPolicyNames(t *testing.T) {
	var guards []string
	for _, g := range DefaultGuards().Guards() {
		guards = append(guards, g.Name())
	}
	var rules []string
	for _, r := range NewDefaultRulesEngine().Rules() {
		rules = append(rules, r.Name())
	}
	cases := []struct {
		name string
		got  []string
		want []string
	}{
		{name: "guards", got: guards, want: []string{"schema", "relation_item", "team_last_admin"}},
		{name: "rules", got: rules, want: []string{"team_admin", "unique_url"}},
	}
	for _, tc := range cases {
		if !slices.Equal(tc.got, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, tc.got)
		}
	}
}
