// Package script loads the versioned interview script: the agent's
// instructions, voice settings and the patterns used to estimate progress.
package script

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultScript []byte

// TurnDetection holds server VAD tuning.
type TurnDetection struct {
	Threshold         float64 `yaml:"threshold"`
	PrefixPaddingMS   int     `yaml:"prefix_padding_ms"`
	SilenceDurationMS int     `yaml:"silence_duration_ms"`
}

// Script is an immutable interview definition once loaded.
type Script struct {
	Version            string        `yaml:"version"`
	AgentName          string        `yaml:"agent_name"`
	Voice              string        `yaml:"voice"`
	Temperature        float64       `yaml:"temperature"`
	TranscriptionModel string        `yaml:"transcription_model"`
	SpeakFirst         bool          `yaml:"speak_first"`
	TotalItems         int           `yaml:"total_items"`
	TrackedItems       int           `yaml:"tracked_items"`
	QuestionPattern    string        `yaml:"question_pattern"`
	SectionPattern     string        `yaml:"section_pattern"`
	TurnDetection      TurnDetection `yaml:"turn_detection"`
	Instructions       string        `yaml:"instructions"`

	question *regexp.Regexp
	section  *regexp.Regexp
}

// Default returns the embedded Clarity interview.
func Default() (*Script, error) {
	s, err := Parse(defaultScript)
	if err != nil {
		return nil, fmt.Errorf("default script: %w", err)
	}
	return s, nil
}

// Load reads a script file, or the embedded default when path is empty.
func Load(path string) (*Script, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a script document.
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if err := s.compile(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Script) compile() error {
	if strings.TrimSpace(s.Instructions) == "" {
		return errors.New("instructions are required")
	}
	if s.TotalItems <= 0 {
		return errors.New("total_items must be positive")
	}
	if s.TrackedItems < 0 || s.TrackedItems > s.TotalItems {
		return fmt.Errorf("tracked_items %d must be between 0 and total_items %d", s.TrackedItems, s.TotalItems)
	}

	var err error
	if s.QuestionPattern != "" {
		if s.question, err = regexp.Compile(s.QuestionPattern); err != nil {
			return fmt.Errorf("question_pattern: %w", err)
		}
		if s.question.NumSubexp() < 1 {
			return errors.New("question_pattern must capture the question number")
		}
	}
	if s.SectionPattern != "" {
		if s.section, err = regexp.Compile(s.SectionPattern); err != nil {
			return fmt.Errorf("section_pattern: %w", err)
		}
	}
	return nil
}

// QuestionNumber extracts the announced question number from an agent
// utterance, if the utterance announces one.
func (s *Script) QuestionNumber(text string) (int, bool) {
	if s.question == nil {
		return 0, false
	}
	m := s.question.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// EntersFinalSection reports whether text announces the untracked final
// section.
func (s *Script) EntersFinalSection(text string) bool {
	return s.section != nil && s.section.MatchString(text)
}
