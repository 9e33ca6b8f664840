package prompt

import (
	"fmt"
	"slices"
)

// Scripted answers prompts from a fixed list. An empty answer selects the
// default. Every asked message is recorded in Asked.
type Scripted struct {
	Answers []string
	Asked   []string
}

func NewScripted(answers ...string) *Scripted {
	return &Scripted{Answers: answers}
}

func (s *Scripted) next(msg string) (string, error) {
	s.Asked = append(s.Asked, msg)
	if len(s.Answers) == 0 {
		return "", fmt.Errorf("%w: unexpected prompt %q", ErrNoInput, msg)
	}
	answer := s.Answers[0]
	s.Answers = s.Answers[1:]
	return answer, nil
}

func (s *Scripted) Confirm(msg string, def Default) (bool, error) {
	answer, err := s.next(msg)
	if err != nil {
		return false, err
	}
	ok, valid := parseConfirm(answer, def)
	if !valid {
		return false, fmt.Errorf("invalid answer %q to %q", answer, msg)
	}
	return ok, nil
}

func (s *Scripted) Select(msg string, choices []string, def string) (string, error) {
	answer, err := s.next(msg)
	if err != nil {
		return "", err
	}
	if answer == "" {
		answer = def
	}
	choice, ok := matchChoice(answer, choices)
	if !ok {
		return "", fmt.Errorf("invalid answer %q to %q", answer, msg)
	}
	return choice, nil
}

func (s *Scripted) Input(msg, def string) (string, error) {
	answer, err := s.next(msg)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

func (s *Scripted) Secret(msg string) (string, error) {
	return s.next(msg)
}

// Defaults never asks: it answers every question with its default and fails
// when there is none.
type Defaults struct{}

func (Defaults) Confirm(msg string, def Default) (bool, error) {
	switch def {
	case DefaultYes:
		return true, nil
	case DefaultNo:
		return false, nil
	}
	return false, fmt.Errorf("%w: %q has no default answer", ErrNoInput, msg)
}

func (Defaults) Select(msg string, choices []string, def string) (string, error) {
	if def == "" || !slices.Contains(choices, def) {
		return "", fmt.Errorf("%w: %q has no default answer", ErrNoInput, msg)
	}
	return def, nil
}

func (Defaults) Input(msg, def string) (string, error) {
	if def == "" {
		return "", fmt.Errorf("%w: %q has no default answer", ErrNoInput, msg)
	}
	return def, nil
}

func (Defaults) Secret(msg string) (string, error) {
	return "", fmt.Errorf("%w: %q requires input", ErrNoInput, msg)
}
