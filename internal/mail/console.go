package mail

import (
	"context"
	"log"
)

// ConsoleMailer is the development fallback when no sendgrid key is set.
type ConsoleMailer struct{}

func (ConsoleMailer) Send(_ context.Context, msg Message) error {
	log.Printf("mail to=%s subject=%q\n%s", msg.To, msg.Subject, msg.Text)
	return nil
}
