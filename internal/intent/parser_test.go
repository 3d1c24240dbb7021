package intent

import "testing"

func TestKeywordParserPicksFirstMatchingKeyword(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text string
		want string
	}{
		{"please shutdown now", "shutdown_system"},
		{"reboot the box", "reboot_system"},
		{"turn the wifi on", "manage_wifi"},
		{"open firefox", "open_app"},
		{"search for cats", "search_web"},
		{"play some jazz", "play_music"},
		{"some music please", "play_music"},
		{"what time is it", Unknown},
	}
	var p KeywordParser
	for _, tc := range cases {
		if got := p.Parse(tc.text, 1.0).Name; got != tc.want {
			t.Fatalf("Parse(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestKeywordParserExtractsEntitiesAndBoostsConfidence(t *testing.T) {
	t.Parallel()

	got := KeywordParser{}.Parse("play track 42 on volume", 0.7)
	if got.Entity("query") != "track 42 on volume" {
		t.Fatalf("unexpected query entity %+v", got.Entities)
	}
	if got.Entity("device") != "volume" {
		t.Fatalf("unexpected device entity %+v", got.Entities)
	}
	if got.Entities["number"] != 42 {
		t.Fatalf("unexpected number entity %+v", got.Entities)
	}
	if got.Confidence < 0.79 || got.Confidence > 0.81 {
		t.Fatalf("expected boosted confidence, got %f", got.Confidence)
	}

	capped := KeywordParser{}.Parse("open vim", 0.95)
	if capped.Confidence != 0.99 {
		t.Fatalf("confidence should cap at 0.99, got %f", capped.Confidence)
	}
}

func TestConditionsCopiesDoNotAlias(t *testing.T) {
	t.Parallel()

	base := Conditions{}
	confirmed := base.Confirmed().WithHour(3)
	if base.UserConfirmed || base.Hour != nil {
		t.Fatalf("base conditions mutated: %+v", base)
	}
	if !confirmed.UserConfirmed || *confirmed.Hour != 3 {
		t.Fatalf("unexpected copy %+v", confirmed)
	}
	if base.Confidence() != 1.0 {
		t.Fatalf("default confidence should be 1.0")
	}
	if RiskTier("").Normalize() != RiskLow || RiskTier("HIGH").Normalize() != RiskHigh {
		t.Fatalf("unexpected risk normalisation")
	}
}
