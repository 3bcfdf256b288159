package script

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultScript(t *testing.T) {
	s, err := Default()
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}

	if s.TotalItems != 28 || s.TrackedItems != 23 {
		t.Fatalf("unexpected item counts %d/%d", s.TrackedItems, s.TotalItems)
	}
	if s.Voice != "shimmer" || s.TranscriptionModel != "whisper-1" {
		t.Fatalf("unexpected voice settings %q %q", s.Voice, s.TranscriptionModel)
	}
	if s.TurnDetection.SilenceDurationMS != 1200 || s.TurnDetection.PrefixPaddingMS != 300 {
		t.Fatalf("unexpected turn detection %+v", s.TurnDetection)
	}
	if !strings.Contains(s.Instructions, `Question 23. "In the past 12 months`) {
		t.Fatal("expected instructions to carry the full question list")
	}
	if !s.SpeakFirst {
		t.Fatal("expected agent to speak first")
	}
}

func TestQuestionNumber(t *testing.T) {
	s, err := Default()
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}

	tests := []struct {
		text string
		want int
		ok   bool
	}{
		{text: "Question 1. Overall, I am blank with my job.", want: 1, ok: true},
		{text: "question 17. How often do you experience stress?", want: 17, ok: true},
		{text: "Great. Question 2. I am given a lot of freedom.", ok: false},
		{text: "Question two. Something", ok: false},
	}
	for _, tc := range tests {
		got, ok := s.QuestionNumber(tc.text)
		if ok != tc.ok || got != tc.want {
			t.Errorf("QuestionNumber(%q) = %d,%v want %d,%v", tc.text, got, ok, tc.want, tc.ok)
		}
	}

	if !s.EntersFinalSection("We're almost done! I want you to Dream Big.") {
		t.Fatal("expected section pattern to match case-insensitively")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yaml")
	doc := `
version: test
voice: alloy
total_items: 3
tracked_items: 2
question_pattern: '^Q(\d+)'
instructions: Ask three things.
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if n, ok := s.QuestionNumber("Q2 what next"); !ok || n != 2 {
		t.Fatalf("expected custom pattern to match, got %d %v", n, ok)
	}
	if s.EntersFinalSection("dream big") {
		t.Fatal("no section pattern configured, expected no match")
	}
}

func TestParseRejectsInvalidScripts(t *testing.T) {
	tests := map[string]string{
		"no instructions":   "total_items: 3\n",
		"tracked too large": "total_items: 3\ntracked_items: 4\ninstructions: x\n",
		"bad pattern":       "total_items: 3\nquestion_pattern: '('\ninstructions: x\n",
		"no capture group":  "total_items: 3\nquestion_pattern: 'Question'\ninstructions: x\n",
		"zero items":        "instructions: x\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
