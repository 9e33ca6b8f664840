// Package prompt asks the user questions on the terminal.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"golang.org/x/term"
)

// ErrNoInput is returned when input ends before a valid answer was given.
var ErrNoInput = errors.New("no input available")

// Default is the answer a yes/no question falls back to on empty input.
type Default int

const (
	NoDefault Default = iota
	DefaultYes
	DefaultNo
)

func (d Default) hint() string {
	switch d {
	case DefaultYes:
		return " (yes/no) [yes]"
	case DefaultNo:
		return " (yes/no) [no]"
	default:
		return " (yes/no)"
	}
}

type Prompter interface {
	Confirm(msg string, def Default) (bool, error)
	Select(msg string, choices []string, def string) (string, error)
	Input(msg, def string) (string, error)
	Secret(msg string) (string, error)
}

// Terminal prompts on a reader/writer pair, re-asking until the answer is valid.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
}

// NewTerminal prompts on stdin and stderr.
func NewTerminal() *Terminal {
	return &Terminal{
		in:  bufio.NewReader(os.Stdin),
		out: os.Stderr,
		fd:  int(os.Stdin.Fd()),
	}
}

// NewWithIO builds a prompter over arbitrary streams. Secrets are read as
// plain lines since no terminal is attached.
func NewWithIO(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out, fd: -1}
}

func (t *Terminal) readLine() (string, error) {
	line, err := t.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		if errors.Is(err, io.EOF) {
			return "", ErrNoInput
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (t *Terminal) Confirm(msg string, def Default) (bool, error) {
	for {
		fmt.Fprintf(t.out, "%s%s: ", msg, def.hint())
		answer, err := t.readLine()
		if err != nil {
			return false, err
		}
		if ok, valid := parseConfirm(answer, def); valid {
			return ok, nil
		}
	}
}

func parseConfirm(answer string, def Default) (bool, bool) {
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, true
	case "n", "no":
		return false, true
	case "":
		switch def {
		case DefaultYes:
			return true, true
		case DefaultNo:
			return false, true
		}
	}
	return false, false
}

// Select asks for one of choices. The answer is matched case-insensitively.
func (t *Terminal) Select(msg string, choices []string, def string) (string, error) {
	if def != "" && !slices.Contains(choices, def) {
		return "", fmt.Errorf("default %q is not one of %v", def, choices)
	}
	for {
		fmt.Fprintf(t.out, "%s (options: %s)", msg, strings.Join(choices, ", "))
		if def != "" {
			fmt.Fprintf(t.out, " [%s]", def)
		}
		fmt.Fprint(t.out, ": ")

		answer, err := t.readLine()
		if err != nil {
			return "", err
		}
		if answer == "" {
			answer = def
		}
		if choice, ok := matchChoice(answer, choices); ok {
			return choice, nil
		}
	}
}

func matchChoice(answer string, choices []string) (string, bool) {
	for _, c := range choices {
		if strings.EqualFold(c, answer) {
			return c, true
		}
	}
	return "", false
}

func (t *Terminal) Input(msg, def string) (string, error) {
	for {
		fmt.Fprint(t.out, msg)
		if def != "" {
			fmt.Fprintf(t.out, " [%s]", def)
		}
		fmt.Fprint(t.out, ": ")

		answer, err := t.readLine()
		if err != nil {
			return "", err
		}
		if answer == "" {
			answer = def
		}
		if answer != "" {
			return answer, nil
		}
	}
}

// Secret reads a value without echoing it when stdin is a terminal.
func (t *Terminal) Secret(msg string) (string, error) {
	for {
		fmt.Fprintf(t.out, "%s: ", msg)
		var answer string
		if t.fd >= 0 && term.IsTerminal(t.fd) {
			b, err := term.ReadPassword(t.fd)
			fmt.Fprintln(t.out)
			if err != nil {
				return "", fmt.Errorf("failed to read secret: %w", err)
			}
			answer = strings.TrimSpace(string(b))
		} else {
			line, err := t.readLine()
			if err != nil {
				return "", err
			}
			answer = line
		}
		if answer != "" {
			return answer, nil
		}
	}
}
