package mail

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

type SendgridMailer struct {
	client *sendgrid.Client
	from   *sgmail.Email
}

func NewSendgridMailer(apiKey, appName, fromEmail string) *SendgridMailer {
	return &SendgridMailer{
		client: sendgrid.NewSendClient(apiKey),
		from:   sgmail.NewEmail(appName, fromEmail),
	}
}

func (m *SendgridMailer) Send(_ context.Context, msg Message) error {
	personalization := sgmail.NewPersonalization()
	personalization.Subject = msg.Subject
	personalization.AddTos(sgmail.NewEmail("", msg.To))

	message := sgmail.NewV3Mail()
	message.SetFrom(m.from)
	message.AddPersonalizations(personalization)
	message.AddContent(sgmail.NewContent("text/plain", msg.Text))
	if msg.HTML != "" {
		message.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}

	resp, err := m.client.Send(message)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid: status %d", resp.StatusCode)
	}
	return nil
}
