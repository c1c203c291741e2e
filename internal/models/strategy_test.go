package models

import "testing"

func TestParseRoutingStrategy(t *testing.T) {
	cases := map[string]RoutingStrategy{
		"manual_priority": StrategyManualPriority,
		"HIGHEST_YIELD":   StrategyHighestYield,
		" lowest_risk ":   StrategyLowestRisk,
		"balanced":        StrategyBalanced,
		"round_robin":     StrategyRoundRobin,
	}
	for raw, want := range cases {
		got, err := ParseRoutingStrategy(raw)
		if err != nil {
			t.Fatalf("parse %q failed: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q=%v want %v", raw, got, want)
		}
	}
	if _, err := ParseRoutingStrategy("martingale"); err == nil {
		t.Fatalf("want error for unknown strategy")
	}
}

func TestRoutingStrategy_RoundTrip(t *testing.T) {
	for _, s := range []RoutingStrategy{
		StrategyManualPriority,
		StrategyHighestYield,
		StrategyLowestRisk,
		StrategyBalanced,
		StrategyRoundRobin,
	} {
		got, err := ParseRoutingStrategy(s.String())
		if err != nil || got != s {
			t.Fatalf("round trip %v: got=%v err=%v", s, got, err)
		}
	}
}
