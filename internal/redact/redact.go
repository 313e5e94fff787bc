// Package redact derives the publicly displayable variant of a
// message body: law letter boilerplate is removed and signature lines
// after a closing salutation are stripped.
package redact

import (
	"strings"
)

// Config lists the phrases the redactor recognizes. The same config
// and input always produce the same output.
type Config struct {
	// Boilerplate blocks removed verbatim, typically the law's letter
	// header and footer.
	Boilerplate []string
	// Closings are salutations that end the substantive content;
	// everything after a closing line is a signature and is dropped.
	Closings []string
	// Greetings are opening salutations; a personal name following a
	// greeting prefix is masked.
	Greetings []string
}

// DefaultClosings covers the salutations seen in German and English
// correspondence.
func DefaultClosings() []string {
	return []string{
		"Mit freundlichen Grüßen",
		"Mit freundlichem Gruß",
		"Kind regards",
		"Best regards",
		"Yours sincerely",
		"Sincerely",
	}
}

// DefaultGreetings covers common opening salutations carrying a name.
func DefaultGreetings() []string {
	return []string{
		"Sehr geehrter Herr",
		"Sehr geehrte Frau",
		"Dear Mr.",
		"Dear Ms.",
		"Dear Mrs.",
	}
}

const mask = "<redacted>"

// Redact returns the redacted variant of text. Boilerplate is removed
// first, then signature and greeting lines are masked line by line.
func Redact(cfg Config, text string) string {
	for _, block := range cfg.Boilerplate {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		text = strings.ReplaceAll(text, block, "")
	}

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	closed := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if closed {
			// Signature territory: drop everything after the closing.
			continue
		}
		if isClosing(cfg.Closings, trimmed) {
			out = append(out, line)
			closed = true
			continue
		}
		if masked, ok := maskGreeting(cfg.Greetings, line); ok {
			out = append(out, masked)
			continue
		}
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}

func isClosing(closings []string, line string) bool {
	for _, c := range closings {
		if strings.HasPrefix(line, c) {
			return true
		}
	}
	return false
}

func maskGreeting(greetings []string, line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	for _, g := range greetings {
		if rest := strings.TrimPrefix(trimmed, g); rest != trimmed {
			if strings.TrimSpace(strings.TrimSuffix(rest, ",")) == "" {
				return line, false
			}
			return g + " " + mask + ",", true
		}
	}
	return "", false
}
