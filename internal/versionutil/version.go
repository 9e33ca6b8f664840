// Package versionutil parses, orders and matches Conduit release tags.
//
// Tags follow the v<major>.<minor>.<patch>[-rc<n>] convention. A stable tag
// always outranks any release candidate with the same numeric triple.
package versionutil

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	tagPrefix = "v"
	rcMarker  = "-rc"
)

var (
	// ErrMalformedTag is returned for strings that are not v<major>.<minor>.<patch>[-rc<n>].
	ErrMalformedTag = errors.New("malformed release tag")

	// ErrNoCompatibleRelease is returned when no companion release shares the
	// effective major of the primary tag.
	ErrNoCompatibleRelease = errors.New("no compatible release")
)

// MalformedTagError describes which part of a tag failed to parse.
type MalformedTagError struct {
	Tag     string
	Segment string
	Reason  string
}

func (e *MalformedTagError) Error() string {
	if e.Segment == "" {
		return fmt.Sprintf("malformed release tag %q: %s", e.Tag, e.Reason)
	}
	return fmt.Sprintf("malformed release tag %q: %s segment %s", e.Tag, e.Segment, e.Reason)
}

func (e *MalformedTagError) Unwrap() error {
	return ErrMalformedTag
}

// NoCompatibleReleaseError carries the primary tag for diagnostic display.
type NoCompatibleReleaseError struct {
	PrimaryTag string
}

func (e *NoCompatibleReleaseError) Error() string {
	return fmt.Sprintf("could not locate a compatible Conduit UI release for Conduit %s", e.PrimaryTag)
}

func (e *NoCompatibleReleaseError) Unwrap() error {
	return ErrNoCompatibleRelease
}

// Comparison is the ordering verdict between two tags.
type Comparison int

const (
	Equal Comparison = iota
	FirstIsNewer
	SecondIsNewer
)

func (c Comparison) String() string {
	switch c {
	case Equal:
		return "Equal"
	case FirstIsNewer:
		return "FirstIsNewer"
	case SecondIsNewer:
		return "SecondIsNewer"
	default:
		return fmt.Sprintf("Comparison(%d)", int(c))
	}
}

// Tag is a parsed release tag. The zero value is not a valid tag.
type Tag struct {
	Major int
	Minor int
	Patch int
	// RC is the release candidate ordinal, only meaningful when HasRC is set.
	RC    int
	HasRC bool

	raw string
}

// ParseTag parses a tag of the form v<major>.<minor>.<patch>[-rc<n>].
// Segments must be decimal numbers without leading zeros.
func ParseTag(s string) (Tag, error) {
	if s == "" {
		return Tag{}, &MalformedTagError{Tag: s, Reason: "empty tag"}
	}
	if !strings.HasPrefix(s, tagPrefix) {
		return Tag{}, &MalformedTagError{Tag: s, Reason: `missing "v" prefix`}
	}

	body := s[len(tagPrefix):]
	t := Tag{raw: s}

	if i := strings.Index(body, rcMarker); i >= 0 {
		rc, err := parseSegment(body[i+len(rcMarker):])
		if err != nil {
			return Tag{}, &MalformedTagError{Tag: s, Segment: "release candidate", Reason: err.Error()}
		}
		t.RC = rc
		t.HasRC = true
		body = body[:i]
	}

	parts := strings.Split(body, ".")
	if len(parts) != 3 {
		return Tag{}, &MalformedTagError{Tag: s, Reason: "expected major.minor.patch"}
	}

	names := [3]string{"major", "minor", "patch"}
	var segments [3]int
	for i, p := range parts {
		n, err := parseSegment(p)
		if err != nil {
			return Tag{}, &MalformedTagError{Tag: s, Segment: names[i], Reason: err.Error()}
		}
		segments[i] = n
	}
	t.Major, t.Minor, t.Patch = segments[0], segments[1], segments[2]

	return t, nil
}

func parseSegment(p string) (int, error) {
	if p == "" {
		return 0, errors.New("is empty")
	}
	for _, ch := range p {
		if ch < '0' || ch > '9' {
			return 0, fmt.Errorf("%q is not a number", p)
		}
	}
	if len(p) > 1 && p[0] == '0' {
		return 0, fmt.Errorf("%q has a leading zero", p)
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return 0, fmt.Errorf("%q is out of range", p)
	}
	return n, nil
}

// MustParseTag is like ParseTag but panics on malformed input.
func MustParseTag(s string) Tag {
	t, err := ParseTag(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the tag exactly as it was parsed.
func (t Tag) String() string {
	return t.raw
}

// IsStable reports whether the tag carries no release candidate suffix.
func (t Tag) IsStable() bool {
	return !t.HasRC
}

// EffectiveMajor is the compatibility key of the release train. Pre-1.0
// releases use the 0.x convention, where the minor segment acts as major.
func (t Tag) EffectiveMajor() int {
	if t.Major < 1 {
		return t.Minor
	}
	return t.Major
}

func (t Tag) segments() [3]int {
	return [3]int{t.Major, t.Minor, t.Patch}
}

// Compare orders t against other.
func (t Tag) Compare(other Tag) Comparison {
	if t.raw != "" && t.raw == other.raw {
		return Equal
	}

	a, b := t.segments(), other.segments()
	for i := range a {
		if a[i] > b[i] {
			return FirstIsNewer
		}
		if a[i] < b[i] {
			return SecondIsNewer
		}
	}

	switch {
	case !t.HasRC && !other.HasRC:
		return Equal
	case !t.HasRC:
		return FirstIsNewer
	case !other.HasRC:
		return SecondIsNewer
	case t.RC > other.RC:
		return FirstIsNewer
	case t.RC < other.RC:
		return SecondIsNewer
	default:
		return Equal
	}
}

// CompareTags parses and orders two tag strings.
func CompareTags(a, b string) (Comparison, error) {
	if a == b {
		if _, err := ParseTag(a); err != nil {
			return Equal, err
		}
		return Equal, nil
	}

	ta, err := ParseTag(a)
	if err != nil {
		return Equal, err
	}
	tb, err := ParseTag(b)
	if err != nil {
		return Equal, err
	}

	return ta.Compare(tb), nil
}

// IsNewer returns true if candidate is newer than current.
func IsNewer(candidate, current string) (bool, error) {
	cmp, err := CompareTags(candidate, current)
	if err != nil {
		return false, err
	}
	return cmp == FirstIsNewer, nil
}

// SortDescending orders tags newest first. Malformed tags are rejected.
func SortDescending(tags []string) error {
	parsed, err := parseAll(tags)
	if err != nil {
		return err
	}
	sortTags(parsed)
	for i, t := range parsed {
		tags[i] = t.String()
	}
	return nil
}

func parseAll(tags []string) ([]Tag, error) {
	parsed := make([]Tag, 0, len(tags))
	for _, s := range tags {
		t, err := ParseTag(s)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, t)
	}
	return parsed, nil
}

func sortTags(tags []Tag) {
	sort.SliceStable(tags, func(i, j int) bool {
		return tags[i].Compare(tags[j]) == FirstIsNewer
	})
}

// MatchingUITag selects the companion release compatible with primary.
//
// A pre-1.0 primary keys companions by their own effective major, so both
// v0.16.x and v16.x companions match v0.16.0. From 1.0 on companions are
// keyed by their major segment alone. When the matching set
// holds a stable release the newest stable one is returned, otherwise the
// newest release candidate. Malformed companion tags are ignored.
func MatchingUITag(primary string, companions []string) (string, error) {
	p, err := ParseTag(primary)
	if err != nil {
		return "", err
	}

	var stable, candidates []Tag
	for _, s := range companions {
		t, err := ParseTag(s)
		if err != nil {
			continue
		}
		key := t.Major
		if p.Major < 1 {
			key = t.EffectiveMajor()
		}
		if key != p.EffectiveMajor() {
			continue
		}
		if t.IsStable() {
			stable = append(stable, t)
		} else {
			candidates = append(candidates, t)
		}
	}

	if len(stable) > 0 {
		sortTags(stable)
		return stable[0].String(), nil
	}
	if len(candidates) > 0 {
		sortTags(candidates)
		return candidates[0].String(), nil
	}

	return "", &NoCompatibleReleaseError{PrimaryTag: primary}
}
