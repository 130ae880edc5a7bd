package budget

import (
	"strings"
	"testing"

	"github.com/eblahq/ragchat/internal/store"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},        // < 4 chars → 1
		{"abcd", 1},     // exactly 4 chars → 1
		{"abcde", 1},    // 5 chars → 1
		{"abcdefgh", 2}, // 8 chars → 2
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		got := Estimate(tc.input)
		if got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_EstimateMessages(t *testing.T) {
	t.Parallel()
	msgs := []store.Message{
		{Role: store.RoleUser, Content: "hello world"},
		{Role: store.RoleUser, Content: "hello world"},
	}
	got := EstimateMessages(msgs)
	// Each message: 4 overhead + Estimate("user")=1 + Estimate("hello world")=2 = 7
	// Two messages: 14
	if got != 14 {
		t.Errorf("EstimateMessages = %d, want 14", got)
	}
}

func Test_TrimHistory_NoTrimNeeded(t *testing.T) {
	t.Parallel()
	history := []store.Message{
		{Role: store.RoleUser, Content: "hi"},
		{Role: store.RoleAssistant, Content: "there"},
	}
	got := TrimHistory(history, 10, DefaultMaxContextTokens)
	if len(got) != 2 {
		t.Errorf("want 2 history messages, got %d", len(got))
	}
}

func Test_TrimHistory_DropsOldest(t *testing.T) {
	t.Parallel()
	history := []store.Message{
		{Role: store.RoleUser, Content: "oldest"},
		{Role: store.RoleUser, Content: "newest"},
	}
	// Each message costs: 4 overhead + Estimate("user")=1 + Estimate(content)=1 = 6.
	// Budget 7 with no fixed cost fits one message (6 ≤ 7) but not two (12 > 7).
	got := TrimHistory(history, 0, 7)
	if len(got) != 1 {
		t.Fatalf("want 1 history message after trim, got %d", len(got))
	}
	if got[0].Content != "newest" {
		t.Errorf("want newest message retained, got %q", got[0].Content)
	}
}

func Test_TrimHistory_EmptyHistory(t *testing.T) {
	t.Parallel()
	got := TrimHistory(nil, 10, DefaultMaxContextTokens)
	if len(got) != 0 {
		t.Errorf("want empty, got %d", len(got))
	}
}

func Test_TrimHistory_AllDroppedWhenFixedExceedsBudget(t *testing.T) {
	t.Parallel()
	history := []store.Message{
		{Role: store.RoleUser, Content: "a"},
		{Role: store.RoleUser, Content: "b"},
	}
	got := TrimHistory(history, 7000, 6000)
	if len(got) != 0 {
		t.Errorf("want 0 history messages, got %d", len(got))
	}
}
