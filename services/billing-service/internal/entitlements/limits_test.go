package entitlements

import "testing"

func TestLimitsForTier(t *testing.T) {
	cases := []struct {
		tier      string
		wantTier  string
		maxAgents int32
	}{
		{"free", "free", 1},
		{"starter", "starter", 3},
		{"pro", "pro", 10},
		{"", "free", 1},
		{"enterprise", "free", 1}, // unknown tiers degrade to free
	}
	for _, tc := range cases {
		got := LimitsForTier(tc.tier)
		if got.Tier != tc.wantTier {
			t.Fatalf("LimitsForTier(%q).Tier = %q, want %q", tc.tier, got.Tier, tc.wantTier)
		}
		if got.MaxAgents != tc.maxAgents {
			t.Fatalf("LimitsForTier(%q).MaxAgents = %d, want %d", tc.tier, got.MaxAgents, tc.maxAgents)
		}
		if got.MaxKnowledgeSources <= 0 || got.MaxMonthlyMessages <= 0 {
			t.Fatalf("LimitsForTier(%q) has non-positive caps: %+v", tc.tier, got)
		}
	}
}
