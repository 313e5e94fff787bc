package redact

import (
	"strings"
	"testing"
)

func testConfig() Config {
	return Config{
		Boilerplate: []string{
			"Dear Sir or Madam,",
			"Please respond within the legal deadline.",
		},
		Closings:  DefaultClosings(),
		Greetings: DefaultGreetings(),
	}
}

func TestRedactRemovesBoilerplateFooter(t *testing.T) {
	cfg := testConfig()
	text := "Dear Sir or Madam,\n\nSend me the documents.\n\nPlease respond within the legal deadline.\n"

	redacted := Redact(cfg, text)
	if strings.Contains(redacted, "Please respond within the legal deadline.") {
		t.Error("boilerplate footer must never appear in the redacted variant")
	}
	if !strings.Contains(redacted, "Send me the documents.") {
		t.Error("substantive content must survive redaction")
	}
	// The unredacted input is untouched by construction; this guards
	// against accidental in-place mutation of the caller's string use.
	if !strings.Contains(text, "Please respond within the legal deadline.") {
		t.Error("original text must retain the footer verbatim")
	}
}

func TestRedactStripsSignature(t *testing.T) {
	cfg := testConfig()
	text := "Sehr geehrte Damen und Herren,\nblub\nbla\n\nMit freundlichen Grüßen\nPetra Radetzky"

	redacted := Redact(cfg, text)
	if strings.Contains(redacted, "Petra Radetzky") {
		t.Errorf("signature name leaked into redacted text:\n%s", redacted)
	}
	if !strings.Contains(redacted, "Mit freundlichen Grüßen") {
		t.Error("the closing line itself stays")
	}
	if !strings.Contains(redacted, "blub") {
		t.Error("content before the closing stays")
	}
}

func TestRedactMasksGreetingName(t *testing.T) {
	cfg := testConfig()
	text := "Sehr geehrte Frau Radetzky,\n\nblub\n\nMit freundlichen Grüßen\nStefan Wehrmeyer"

	redacted := Redact(cfg, text)
	if strings.Contains(redacted, "Radetzky") {
		t.Errorf("greeting name leaked into redacted text:\n%s", redacted)
	}
	if !strings.Contains(redacted, "Sehr geehrte Frau <redacted>,") {
		t.Errorf("expected masked greeting, got:\n%s", redacted)
	}
}

func TestRedactGenericGreetingUntouched(t *testing.T) {
	cfg := testConfig()
	text := "Sehr geehrte Frau,\n\ncontent"
	redacted := Redact(cfg, text)
	if !strings.Contains(redacted, "Sehr geehrte Frau,") {
		t.Error("greeting without a name needs no masking")
	}
}

func TestRedactDeterministic(t *testing.T) {
	cfg := testConfig()
	text := "Dear Sir or Madam,\nbody\nKind regards\nJohn Doe"
	a := Redact(cfg, text)
	b := Redact(cfg, text)
	if a != b {
		t.Error("redaction must be deterministic")
	}
}
