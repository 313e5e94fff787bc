package law

import (
	"strings"

	"github.com/openfoi/foiportal/internal/models"
)

// LegalNotice is appended to every outbound message so recipients know
// the mail was relayed.
const LegalNotice = "Legal Note: This mail was sent through a Freedom Of Information Portal."

// LetterOptions carries the requester identity appended under the
// letter body.
type LetterOptions struct {
	// FullText skips the law's boilerplate header and footer; the body
	// already is the complete letter.
	FullText     bool
	Name         string
	Organization string
	// Address is included for postal fallback when present.
	Address string
}

// ComposeLetter renders the outbound request letter: boilerplate
// header, body, boilerplate footer, then the requester's signature
// block and the legal notice.
func ComposeLetter(l *models.Law, body string, opts LetterOptions) string {
	var b strings.Builder

	if !opts.FullText && l.LetterStart != "" {
		b.WriteString(l.LetterStart)
		b.WriteString("\n\n")
	}
	b.WriteString(strings.TrimSpace(body))
	if !opts.FullText && l.LetterEnd != "" {
		b.WriteString("\n\n")
		b.WriteString(l.LetterEnd)
	}

	if opts.Name != "" {
		b.WriteString("\n\n")
		b.WriteString(opts.Name)
		b.WriteString("\n")
		if opts.Organization != "" {
			b.WriteString(opts.Organization)
			b.WriteString("\n")
		}
	}
	if opts.Address != "" {
		b.WriteString("\n")
		b.WriteString(opts.Address)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(LegalNotice)
	b.WriteString("\n")
	return b.String()
}
