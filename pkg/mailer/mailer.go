// Package mailer sends email through plain SMTP. Both the synchronous
// order-confirmation path and the outbox worker go through the Sender
// interface so delivery can be faked in tests.
package mailer

// Attachment is a file included inline in a message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Email is a single outbound message.
type Email struct {
	To          string
	Subject     string
	Text        string
	Attachments []Attachment
}

type Sender interface {
	Send(m Email) error
}
