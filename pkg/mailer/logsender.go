package mailer

import "log/slog"

// LogSender logs messages instead of sending them. Used when no SMTP
// credentials are configured, so local development does not need a mail
// server.
type LogSender struct{}

func NewLogSender() *LogSender {
	return &LogSender{}
}

func (s *LogSender) Send(m Email) error {
	slog.Info("mail (not sent, no SMTP configured)",
		slog.String("to", m.To),
		slog.String("subject", m.Subject),
		slog.Int("attachments", len(m.Attachments)))
	return nil
}
