package pairs_test

import (
	"testing"

	"tgrelay/internal/domain/pairs"
)

func TestRuleNodeEval(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		node *pairs.RuleNode
		text string
		want bool
	}{
		{
			name: "keywordMatchesWordBoundary",
			node: &pairs.RuleNode{Type: "kw", Value: "crypto"},
			text: "new crypto airdrop live now",
			want: true,
		},
		{
			name: "keywordDoesNotMatchSubstring",
			node: &pairs.RuleNode{Type: "kw", Value: "crypto"},
			text: "cryptocurrency is not the same token",
			want: false,
		},
		{
			name: "regexLeaf",
			node: &pairs.RuleNode{Type: "re", Pattern: `(?i)giveaway`},
			text: "huge GIVEAWAY today",
			want: true,
		},
		{
			name: "andRequiresAll",
			node: &pairs.RuleNode{Op: "AND", Args: []*pairs.RuleNode{
				{Type: "kw", Value: "free"},
				{Type: "kw", Value: "nft"},
			}},
			text: "free nft drop",
			want: true,
		},
		{
			name: "andFailsIfOneMissing",
			node: &pairs.RuleNode{Op: "AND", Args: []*pairs.RuleNode{
				{Type: "kw", Value: "free"},
				{Type: "kw", Value: "nft"},
			}},
			text: "free shipping today",
			want: false,
		},
		{
			name: "notNegates",
			node: &pairs.RuleNode{Op: "NOT", Args: []*pairs.RuleNode{
				{Type: "kw", Value: "spam"},
			}},
			text: "totally normal update",
			want: true,
		},
		{
			name: "atLeastThreshold",
			node: &pairs.RuleNode{Op: "AT_LEAST", N: 2, Args: []*pairs.RuleNode{
				{Type: "kw", Value: "pump"},
				{Type: "kw", Value: "moon"},
				{Type: "kw", Value: "lambo"},
			}},
			text: "pump it to the moon",
			want: true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if err := tc.node.ValidateAndCompile(); err != nil {
				t.Fatalf("ValidateAndCompile() error = %v", err)
			}
			if got := tc.node.Eval(tc.text); got != tc.want {
				t.Fatalf("Eval(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestFilterRulePasses(t *testing.T) {
	t.Parallel()

	rule := &pairs.FilterRule{
		Deny:  &pairs.RuleNode{Type: "kw", Value: "scam"},
		Allow: &pairs.RuleNode{Type: "kw", Value: "official"},
	}
	if err := rule.ValidateAndCompile(); err != nil {
		t.Fatalf("ValidateAndCompile() error = %v", err)
	}

	cases := []struct {
		name string
		text string
		want bool
	}{
		{name: "deniedOverridesAllow", text: "official scam alert", want: false},
		{name: "allowedAndNotDenied", text: "official announcement", want: true},
		{name: "notAllowedFailsClosed", text: "random chatter", want: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := rule.Passes(tc.text); got != tc.want {
				t.Fatalf("Passes(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestFilterRuleNilPassesEverything(t *testing.T) {
	t.Parallel()
	var rule *pairs.FilterRule
	if !rule.Passes("anything at all") {
		t.Fatal("nil FilterRule should pass everything")
	}
}

func TestRuleNodeValidationErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		node *pairs.RuleNode
	}{
		{name: "emptyKeyword", node: &pairs.RuleNode{Type: "kw", Value: ""}},
		{name: "unknownLeafType", node: &pairs.RuleNode{Type: "bogus", Value: "x"}},
		{name: "notWithTwoArgs", node: &pairs.RuleNode{Op: "NOT", Args: []*pairs.RuleNode{
			{Type: "kw", Value: "a"}, {Type: "kw", Value: "b"},
		}}},
		{name: "atLeastNOutOfRange", node: &pairs.RuleNode{Op: "AT_LEAST", N: 5, Args: []*pairs.RuleNode{
			{Type: "kw", Value: "a"}, {Type: "kw", Value: "b"},
		}}},
		{name: "unknownOperator", node: &pairs.RuleNode{Op: "XOR", Args: []*pairs.RuleNode{
			{Type: "kw", Value: "a"}, {Type: "kw", Value: "b"},
		}}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if err := tc.node.ValidateAndCompile(); err == nil {
				t.Fatal("expected a validation error, got nil")
			}
		})
	}
}
