// Package contacts builds the known-contact directory used to classify
// conversations. Identifiers are normalized identically at load time and at
// lookup time so a phone number written three different ways still matches.
package contacts

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Directory maps a normalized identifier (phone digits or lowercase email) to
// a display name. Lookups never mutate it; loading the same source twice
// yields the same mapping.
type Directory map[string]string

// minPhoneDigits is the shortest normalized phone number worth registering.
// Shortcodes and extensions below this cause false matches.
const minPhoneDigits = 7

// NormalizePhone strips everything except digits. US numbers written with a
// leading country code collapse to the bare 10 digits.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && strings.HasPrefix(digits, "1") {
		digits = digits[1:]
	}
	return digits
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeIdentifier normalizes a raw identifier for the given channel.
func NormalizeIdentifier(value, channel string) string {
	switch channel {
	case "email":
		return NormalizeEmail(value)
	case "phone":
		return NormalizePhone(value)
	}
	return strings.TrimSpace(value)
}

// Lookup resolves a store handle (phone number or email) to a display name.
// Empty handles never match.
func (d Directory) Lookup(handle string) (string, bool) {
	if handle == "" || len(d) == 0 {
		return "", false
	}
	if strings.Contains(handle, "@") {
		name, ok := d[NormalizeEmail(handle)]
		return name, ok
	}
	name, ok := d[NormalizePhone(handle)]
	return name, ok
}

// profileFrontmatter is the structured part of a people document.
type profileFrontmatter struct {
	Name  string     `yaml:"name"`
	Phone stringList `yaml:"phone"`
	Email stringList `yaml:"email"`
}

// stringList accepts a YAML scalar or sequence; profile files write a single
// phone number as a bare string as often as a list.
type stringList []string

func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if strings.TrimSpace(node.Value) != "" {
			*l = stringList{node.Value}
		}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	return fmt.Errorf("expected scalar or sequence, got kind %d", node.Kind)
}

type profile struct {
	name   string
	phones []string
	emails []string
	body   string
}

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

// Load builds a Directory from the markdown profile documents in peopleDir.
// A missing directory is not an error: the caller proceeds with an empty
// Directory and every conversation classifies unknown.
func Load(peopleDir string) (Directory, error) {
	dir := Directory{}

	entries, err := os.ReadDir(peopleDir)
	if err != nil {
		if os.IsNotExist(err) {
			return dir, nil
		}
		return nil, fmt.Errorf("failed to read people directory: %w", err)
	}

	var profiles []profile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(peopleDir, entry.Name()))
		if err != nil {
			continue
		}
		if p, ok := parseProfile(entry.Name(), string(raw)); ok {
			profiles = append(profiles, p)
		}
	}

	// Structured frontmatter entries first; body-scan matches are a secondary
	// source and never override them, regardless of file order.
	for _, p := range profiles {
		for _, phone := range p.phones {
			normalized := NormalizePhone(phone)
			if len(normalized) >= minPhoneDigits {
				dir[normalized] = p.name
			}
		}
		for _, addr := range p.emails {
			if strings.Contains(addr, "@") {
				dir[NormalizeEmail(addr)] = p.name
			}
		}
	}
	for _, p := range profiles {
		for _, match := range emailPattern.FindAllString(p.body, -1) {
			key := NormalizeEmail(match)
			if _, exists := dir[key]; !exists {
				dir[key] = p.name
			}
		}
	}

	return dir, nil
}

func parseProfile(filename, text string) (profile, bool) {
	fmText, body, ok := splitFrontmatter(text)
	if !ok {
		return profile{}, false
	}

	var fm profileFrontmatter
	if err := yaml.Unmarshal([]byte(fmText), &fm); err != nil {
		return profile{}, false
	}

	name := strings.TrimSpace(fm.Name)
	if name == "" {
		name = strings.TrimSuffix(filename, ".md")
	}
	return profile{name: name, phones: fm.Phone, emails: fm.Email, body: body}, true
}

func splitFrontmatter(text string) (frontmatter, body string, ok bool) {
	if !strings.HasPrefix(text, "---") {
		return "", "", false
	}
	end := strings.Index(text[3:], "---")
	if end == -1 {
		return "", "", false
	}
	return text[3 : 3+end], text[3+end+3:], true
}
