package capture

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/resendlabs/resend-go"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-concierge/internal/model"
	"github.com/sells-group/lead-concierge/internal/scorer"
)

// Message is an outbound notification email.
type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Sender transmits a Message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender submits mail over SMTP with STARTTLS and PLAIN auth.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string

	// sendMail is smtp.SendMail; replaced in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender returns a sender for host:port.
func NewSMTPSender(host string, port int, username, password string) *SMTPSender {
	return &SMTPSender{Host: host, Port: port, Username: username, Password: password, sendMail: smtp.SendMail}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if s.Username == "" || s.Password == "" {
		return ErrChannelDisabled
	}
	raw, err := buildMIME(msg, time.Now())
	if err != nil {
		return err
	}

	addr := s.Host + ":" + strconv.Itoa(s.Port)
	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
	done := make(chan error, 1)
	go func() { done <- s.sendMail(addr, auth, msg.From, msg.To, raw) }()
	select {
	case err := <-done:
		return eris.Wrapf(err, "email: smtp send via %s", addr)
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "email: smtp send")
	}
}

// buildMIME renders msg as a multipart/alternative message.
func buildMIME(msg Message, date time.Time) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, part := range []struct{ ctype, content string }{
		{"text/plain; charset=UTF-8", msg.Text},
		{"text/html; charset=UTF-8", msg.HTML},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.ctype},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, eris.Wrap(err, "email: create mime part")
		}
		if _, err := w.Write([]byte(part.content)); err != nil {
			return nil, eris.Wrap(err, "email: write mime part")
		}
	}
	if err := mw.Close(); err != nil {
		return nil, eris.Wrap(err, "email: close mime writer")
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "From: %s\r\n", msg.From)
	fmt.Fprintf(&out, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&out, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&out, "Date: %s\r\n", date.Format(time.RFC1123Z))
	out.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&out, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", mw.Boundary())
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

// ResendSender delivers mail through the Resend API.
type ResendSender struct {
	client *resend.Client
}

// NewResendSender returns a sender using apiKey. An empty key yields a
// sender that reports ErrChannelDisabled.
func NewResendSender(apiKey string) *ResendSender {
	if apiKey == "" {
		return &ResendSender{}
	}
	return &ResendSender{client: resend.NewClient(apiKey)}
}

func (s *ResendSender) Send(_ context.Context, msg Message) error {
	if s.client == nil {
		return ErrChannelDisabled
	}
	_, err := s.client.Emails.Send(&resend.SendEmailRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	})
	return eris.Wrap(err, "email: resend send")
}

// EmailChannel notifies the sales inbox about each lead.
type EmailChannel struct {
	sender Sender
	from   string
	to     []string
}

// NewEmailChannel returns the email channel. It is disabled when no
// recipient is configured.
func NewEmailChannel(sender Sender, from string, to ...string) *EmailChannel {
	return &EmailChannel{sender: sender, from: from, to: to}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Deliver(ctx context.Context, rec *model.LeadRecord) (string, error) {
	if c.sender == nil || len(c.to) == 0 || c.from == "" {
		return "", ErrChannelDisabled
	}
	msg, err := LeadEmail(rec)
	if err != nil {
		return "", err
	}
	msg.From = c.from
	msg.To = c.to
	if err := c.sender.Send(ctx, msg); err != nil {
		return "", err
	}
	return "sent to " + strings.Join(c.to, ", "), nil
}

type emailView struct {
	*model.LeadRecord
	Quality  string
	FollowUp string
	Captured string
}

// hawaiiZone is Hawaii-Aleutian Standard Time, which observes no DST.
var hawaiiZone = time.FixedZone("HST", -10*60*60)

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

const leadEmailHTML = `<html>
<body style="font-family: Arial, sans-serif; color: #333;">
<div style="background-color: #f8f9fa; padding: 20px; border-radius: 10px;">
<h2 style="color: #0081a7;">New Lead from the Leni Chatbot</h2>
<div style="background-color: white; padding: 20px; border-radius: 5px; margin: 20px 0;">
<h3>Lead Quality: {{.Quality}} (score {{.QualificationScore}}/100)</h3>
<h4>Contact Information:</h4>
<ul>
<li><strong>Name:</strong> {{or .Name "Not provided"}}</li>
<li><strong>Email:</strong> {{or .Email "Not provided"}}</li>
<li><strong>Phone:</strong> {{or .Phone "Not provided"}}</li>
<li><strong>Company:</strong> {{or .Company "Not provided"}}</li>
</ul>
<h4>Business Details:</h4>
<ul>
<li><strong>Type:</strong> {{or .BusinessType "Not specified"}}</li>
<li><strong>Location:</strong> {{or .Location "Not specified"}}</li>
<li><strong>Challenge:</strong> {{or .MainChallenge "Not specified"}}</li>
<li><strong>Budget Range:</strong> {{or .BudgetRange "Not discussed"}}</li>
</ul>
<h4>Conversation Summary:</h4>
<div style="background-color: #f8f9fa; padding: 15px; border-radius: 5px; white-space: pre-wrap;">{{or .ConversationSummary "No summary available"}}</div>
<h4>Recommended Next Steps:</h4>
<ul><li>{{.FollowUp}}</li></ul>
<p style="margin-top: 20px; color: #666;"><small>Lead {{.LeadID}} captured at {{.Captured}}</small></p>
</div>
</div>
</body>
</html>`

var leadEmailTmpl = template.Must(template.New("lead").Parse(leadEmailHTML))

// LeadEmail renders the notification for rec. From and To are left empty.
func LeadEmail(rec *model.LeadRecord) (Message, error) {
	v := emailView{
		LeadRecord: rec,
		Quality:    strings.ToUpper(string(rec.LeadQuality)) + " - " + scorer.Label(rec.LeadQuality),
		FollowUp:   scorer.FollowUp(rec.QualificationScore),
		Captured:   rec.CapturedAt.In(hawaiiZone).Format("Mon Jan 2 2006 3:04 PM HST"),
	}

	var html bytes.Buffer
	if err := leadEmailTmpl.Execute(&html, v); err != nil {
		return Message{}, eris.Wrap(err, "email: render html")
	}

	var text strings.Builder
	fmt.Fprintf(&text, "New lead from the Leni chatbot\n\n")
	fmt.Fprintf(&text, "Lead Quality: %s (score %d/100)\n\n", v.Quality, rec.QualificationScore)
	fmt.Fprintf(&text, "Name: %s\n", orDefault(rec.Name, "Not provided"))
	fmt.Fprintf(&text, "Email: %s\n", orDefault(rec.Email, "Not provided"))
	fmt.Fprintf(&text, "Phone: %s\n", orDefault(rec.Phone, "Not provided"))
	fmt.Fprintf(&text, "Company: %s\n\n", orDefault(rec.Company, "Not provided"))
	fmt.Fprintf(&text, "Business Type: %s\n", orDefault(rec.BusinessType, "Not specified"))
	fmt.Fprintf(&text, "Location: %s\n", orDefault(rec.Location, "Not specified"))
	fmt.Fprintf(&text, "Challenge: %s\n", orDefault(rec.MainChallenge, "Not specified"))
	fmt.Fprintf(&text, "Budget Range: %s\n\n", orDefault(rec.BudgetRange, "Not discussed"))
	fmt.Fprintf(&text, "Conversation Summary:\n%s\n\n", orDefault(rec.ConversationSummary, "No summary available"))
	fmt.Fprintf(&text, "Next Steps: %s\n\n", v.FollowUp)
	fmt.Fprintf(&text, "Lead %s captured at %s\n", rec.LeadID, v.Captured)

	return Message{
		Subject: fmt.Sprintf("New Lead: %s - %s", orDefault(rec.Name, "Unknown"), orDefault(rec.BusinessType, "Unknown Business")),
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
