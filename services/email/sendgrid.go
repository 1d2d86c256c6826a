package emailsvc

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/trezcool/schoolerp/core"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"

	sendFunc = sendgrid.API // mockable; a single request, retries are done in send()
	sleep    = time.Sleep   // mockable
)

// DeliveryError is returned when SendGrid rejects a message.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (err *DeliveryError) Error() string {
	return fmt.Sprintf("sendgrid: status %d: %s", err.StatusCode, err.Body)
}

// temporary reports whether the message was turned away before being accepted, so it can be sent again.
// Other server errors are not retried: SendGrid may have queued the message anyway.
func (err *DeliveryError) temporary() bool {
	return err.StatusCode == http.StatusTooManyRequests || err.StatusCode == http.StatusServiceUnavailable
}

type sendgridService struct {
	key             string
	from            *sgmail.Email
	subjPrefix      string
	frontendBaseURL string
	maxAttempts     int
	logger          core.Logger
}

var _ core.EmailService = (*sendgridService)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) core.EmailService {
	from := conf.DefaultFromEmail()
	maxAttempts := conf.Mail.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &sendgridService{
		key:             conf.SendgridApiKey,
		from:            sgmail.NewEmail(from.Name, from.Address),
		subjPrefix:      "[" + conf.AppName + "] ",
		frontendBaseURL: conf.FrontendBaseURL,
		maxAttempts:     maxAttempts,
		logger:          logger,
	}
}

func (svc sendgridService) SendMessage(ctx context.Context, msg *core.EmailMessage) error {
	if err := msg.Render(svc.frontendBaseURL); err != nil {
		return errors.Wrap(err, "rendering email")
	}
	if !msg.HasRecipients() || !msg.HasContent() {
		return nil
	}
	return svc.send(ctx, *msg)
}

func (svc sendgridService) prepare(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject

	for _, to := range msg.To {
		p.AddTos(svc.getSGEmail(to))
	}
	for _, cc := range msg.Cc {
		p.AddCCs(svc.getSGEmail(cc))
	}
	for _, bcc := range msg.Bcc {
		p.AddBCCs(svc.getSGEmail(bcc))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)

	// text/plain must come first
	if msg.TextContent != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	}
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}
	return m
}

func (svc sendgridService) getSGEmail(addr mail.Address) *sgmail.Email {
	return sgmail.NewEmail(addr.Name, addr.Address)
}

// send posts msg to SendGrid. Rate limiting, unavailability and transport errors are retried,
// waiting 100ms longer between each attempt.
func (svc sendgridService) send(ctx context.Context, msg core.EmailMessage) error {
	body := sgmail.GetRequestBody(svc.prepare(msg))

	var err error
	for attempt := 1; attempt <= svc.maxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Wrap(ctxErr, "sending email")
		}

		req := sendgrid.GetRequest(svc.key, endpoint, host)
		req.Method = rest.Post
		req.Body = body

		var res *rest.Response
		res, err = sendFunc(req)
		if err == nil && res.StatusCode < http.StatusBadRequest {
			return nil
		}
		if err == nil {
			dErr := &DeliveryError{StatusCode: res.StatusCode, Body: res.Body}
			if !dErr.temporary() {
				return dErr
			}
			err = dErr
		}

		if attempt < svc.maxAttempts {
			svc.logger.Warn(fmt.Sprintf("sending email (attempt %d/%d): %v", attempt, svc.maxAttempts, err))
			sleep(time.Duration(attempt) * 100 * time.Millisecond)
		}
	}
	return errors.Wrap(err, "sending email")
}
