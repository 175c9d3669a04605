package guardrail

import "testing"

func TestValidate_Accepts(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		refined string
	}{
		{
			name:    "pure rewording",
			raw:     "um so I think we should maybe look at the logs",
			refined: "I think we should look at the logs.",
		},
		{
			name:    "numbers preserved",
			raw:     "deploy version 123 today",
			refined: "Deploy version 123 today.",
		},
		{
			name:    "url preserved",
			raw:     "see https://example.com/docs for details",
			refined: "See https://example.com/docs for details.",
		},
		{
			name:    "commitment already present in raw",
			raw:     "I will review this tomorrow",
			refined: "I will review this tomorrow.",
		},
		{
			name:    "refined may add numbers",
			raw:     "retry a few times",
			refined: "Retry 3 times.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.raw, tt.refined)
			if !res.Accepted {
				t.Errorf("Validate rejected with %s (%s)", res.Reason, res.Detail)
			}
		})
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		refined string
		want    Reason
	}{
		{
			name:    "changed number",
			raw:     "Deploy version 123 today.",
			refined: "Deploy version 124 today.",
			want:    ReasonNumericMismatch,
		},
		{
			name:    "dropped number",
			raw:     "ship 42 units",
			refined: "Ship the units.",
			want:    ReasonNumericMismatch,
		},
		{
			name:    "dropped url",
			raw:     "docs live at https://internal.dev/wiki",
			refined: "The docs live on the wiki.",
			want:    ReasonURLMismatch,
		},
		{
			name:    "dropped identifier",
			raw:     "rename the user_id column",
			refined: "Rename the user column.",
			want:    ReasonIdentifierMismatch,
		},
		{
			name:    "commitment shift",
			raw:     "I think we can review this tomorrow.",
			refined: "I will review this tomorrow.",
			want:    ReasonCommitmentShift,
		},
		{
			name:    "introduced guarantee",
			raw:     "this should probably work",
			refined: "This is guaranteed to work.",
			want:    ReasonCommitmentShift,
		},
		{
			name:    "empty refined",
			raw:     "hello there",
			refined: "   ",
			want:    ReasonEmptyText,
		},
		{
			name:    "empty raw",
			raw:     "",
			refined: "hello",
			want:    ReasonEmptyText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.raw, tt.refined)
			if res.Accepted {
				t.Fatal("Validate accepted, want rejection")
			}
			if res.Reason != tt.want {
				t.Errorf("Reason = %s, want %s", res.Reason, tt.want)
			}
		})
	}
}

// Rule order is part of the contract: a refinement that violates several
// rules reports the numeric mismatch first.
func TestValidate_RuleOrder(t *testing.T) {
	raw := "bump api_v2 to 1.5 and I think that's fine"
	refined := "We will bump the API."

	res := Validate(raw, refined)
	if res.Accepted {
		t.Fatal("expected rejection")
	}
	if res.Reason != ReasonNumericMismatch {
		t.Errorf("Reason = %s, want %s", res.Reason, ReasonNumericMismatch)
	}
}

func TestValidate_FullWidthDigitsCompareEqual(t *testing.T) {
	res := Validate("room １２３ please", "Room 123, please.")
	if !res.Accepted {
		t.Errorf("NFKC-equal digits rejected: %s (%s)", res.Reason, res.Detail)
	}
}
