package types

import (
	"testing"
	"time"
)

func TestTradeBetSize(t *testing.T) {
	trade := Trade{Shares: 250, Price: 0.4}
	if got := trade.BetSize(); got != 100 {
		t.Errorf("Expected bet size 100, got %f", got)
	}
}

func TestTradeHasTimestamp(t *testing.T) {
	if (Trade{}).HasTimestamp() {
		t.Error("Expected zero timestamp to be unusable")
	}
	if !(Trade{Timestamp: time.Unix(1700000000, 0)}).HasTimestamp() {
		t.Error("Expected set timestamp to be usable")
	}
}

func TestResolutionWins(t *testing.T) {
	tests := []struct {
		name    string
		res     Resolution
		outcome string
		want    bool
	}{
		{"unresolved never wins", Resolution{}, "Yes", false},
		{"case insensitive match", Resolution{Resolved: true, WinningOutcome: "yes"}, "Yes", true},
		{"surrounding space", Resolution{Resolved: true, WinningOutcome: "no"}, " No ", true},
		{"loser", Resolution{Resolved: true, WinningOutcome: "no"}, "Yes", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.res.Wins(tt.outcome); got != tt.want {
				t.Errorf("Wins(%q) = %v, want %v", tt.outcome, got, tt.want)
			}
		})
	}
}
