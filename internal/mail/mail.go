// Package mail carries correspondence in and out of the portal: an
// Envelope type for inbound raw messages and a Transport interface
// with an SMTP implementation for outbound delivery.
package mail

import (
	"strings"
	"time"
)

// Address is a named email address.
type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// String renders the address in RFC 5322 form. Names containing
// specials are quoted: `"John Doe, Dr." <j.doe@example.org>`.
func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	name := a.Name
	if strings.ContainsAny(name, "()<>[]:;@\\,.\"") {
		name = `"` + strings.ReplaceAll(name, `"`, `\"`) + `"`
	}
	return name + " <" + a.Email + ">"
}

// File is an attachment payload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Envelope is an inbound raw message as handed over by the receiving
// MTA, before classification.
type Envelope struct {
	From        Address
	To          []Address
	CC          []Address
	Subject     string
	Body        string
	Date        time.Time
	Attachments []File
}

// Addressed reports whether any recipient field targets the given
// address.
func (e *Envelope) Addressed(addr string) bool {
	for _, a := range e.To {
		if strings.EqualFold(a.Email, addr) {
			return true
		}
	}
	for _, a := range e.CC {
		if strings.EqualFold(a.Email, addr) {
			return true
		}
	}
	return false
}

// Outbound is a composed message handed to a Transport.
type Outbound struct {
	From        Address
	To          []Address
	ReplyTo     string
	Subject     string
	Body        string
	Attachments []File
}
