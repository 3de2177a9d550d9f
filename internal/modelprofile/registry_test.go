package modelprofile

import "testing"

func TestResolveTierFromFilename(t *testing.T) {
	cases := []struct {
		name string
		tier Tier
	}{
		{"qwen2.5-coder-7b-instruct-q4_k_m.gguf", TierBase},
		{"llama-3.2-1b-instruct.gguf", TierTiny},
		{"deepseek-coder-33b.gguf", TierMedium},
		{"mystery-model.gguf", TierTiny},
	}
	for _, c := range cases {
		p := Resolve(c.name, false)
		if p.Tier != c.tier {
			t.Errorf("Resolve(%q).Tier = %v, want %v", c.name, p.Tier, c.tier)
		}
	}
}

func TestThinkBudgetOnlyWhenSupported(t *testing.T) {
	p := Resolve("qwen2.5-7b.gguf", false)
	if p.ThinkMode != ThinkNone || p.ThinkBudget != 0 {
		t.Fatalf("non-thinking model must get ThinkNone/0 budget, got %v/%d", p.ThinkMode, p.ThinkBudget)
	}
	p2 := Resolve("qwen2.5-7b.gguf", true)
	if p2.ThinkMode != ThinkBudget || p2.ThinkBudget == 0 {
		t.Fatalf("thinking-capable model must get a nonzero budget, got %v/%d", p2.ThinkMode, p2.ThinkBudget)
	}
}

func TestUnknownFamilyFallsBackToBaseDefaults(t *testing.T) {
	p := Resolve("totally-unrecognized-weights.bin", false)
	if p.Family != "unknown" {
		t.Fatalf("want family unknown, got %s", p.Family)
	}
	if p.MaxToolsPerIter != tierDefaults[TierTiny].MaxToolsPerIter {
		t.Fatalf("unknown family should use tier-only defaults")
	}
}
