// internal/app/system/mailer/templates.go
package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

// MessageData fills the shared notification layout.
type MessageData struct {
	Program    string
	Heading    string
	Body       string
	ButtonText string
	ButtonLink string
}

// QueuedEmailData holds data for the registration confirmation.
type QueuedEmailData struct {
	Name      string
	Program   string
	StatusURL string
}

// MatchEmailData holds data for the match announcement.
type MatchEmailData struct {
	Name      string
	Program   string
	Peers     []string // other members' names
	StatusURL string
	Via       string
}

// BuildQueuedEmail tells a learner they are in the waiting pool.
func BuildQueuedEmail(data QueuedEmailData) Email {
	body := fmt.Sprintf("Hi %s,\n\nYou are registered with PeerFinder for %s. "+
		"We will email you as soon as we find your study group.", data.Name, data.Program)
	return buildMessage(MessageData{
		Program:    data.Program,
		Heading:    "You're in the queue",
		Body:       body,
		ButtonText: "Check status",
		ButtonLink: data.StatusURL,
	})
}

// BuildMatchEmail announces a new group.
func BuildMatchEmail(data MatchEmailData) Email {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Hi %s,\n\n", data.Name)
	switch data.Via {
	case "random", "manual":
		fmt.Fprintf(&buf, "A PeerFinder admin has placed you in a %s study group.", data.Program)
	default:
		fmt.Fprintf(&buf, "You have been matched in %s!", data.Program)
	}
	if len(data.Peers) > 0 {
		buf.WriteString("\n\nYour group:\n")
		for _, p := range data.Peers {
			fmt.Fprintf(&buf, "- %s\n", p)
		}
	}
	buf.WriteString("\nOpen your status page to see contact details.")
	return buildMessage(MessageData{
		Program:    data.Program,
		Heading:    "It's a Match!",
		Body:       buf.String(),
		ButtonText: "View group",
		ButtonLink: data.StatusURL,
	})
}

func buildMessage(data MessageData) Email {
	return Email{
		To:       "", // Set by caller
		Subject:  data.Heading,
		TextBody: buildText(data),
		HTMLBody: buildHTML(data),
	}
}

func buildText(data MessageData) string {
	var buf bytes.Buffer
	buf.WriteString(data.Body + "\n")
	if data.ButtonLink != "" {
		buf.WriteString("\n" + data.ButtonText + ": " + data.ButtonLink + "\n")
	}
	return buf.String()
}

var messageTmpl = template.Must(template.New("message").Parse(messageHTMLTemplate))

func buildHTML(data MessageData) string {
	var buf bytes.Buffer
	_ = messageTmpl.Execute(&buf, data)
	return buf.String()
}

const messageHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.Heading}}</title>
</head>
<body style="margin: 0; padding: 20px; font-family: Arial, sans-serif; background-color: #f4f6f8;">
  <table role="presentation" width="100%" cellspacing="0" cellpadding="0">
    <tr>
      <td align="center">
        <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="max-width: 600px; background-color: #ffffff; border-radius: 10px;">
          <!-- Header -->
          <tr>
            <td style="background-color: #091F40; padding: 20px; text-align: center; border-radius: 10px 10px 0 0;">
              <h1 style="color: #ffffff; margin: 0; font-size: 24px;">PeerFinder ({{.Program}})</h1>
            </td>
          </tr>

          <!-- Content -->
          <tr>
            <td style="padding: 30px; color: #333333;">
              <h2 style="color: #091F40;">{{.Heading}}</h2>
              <div style="font-size: 16px; white-space: pre-wrap;">{{.Body}}</div>
              {{if .ButtonLink}}
              <div style="text-align: center; margin-top: 30px;">
                <a href="{{.ButtonLink}}" style="background-color: #D4AF37; color: #091F40; padding: 12px 25px; text-decoration: none; border-radius: 5px; font-weight: bold; display: inline-block;">{{.ButtonText}}</a>
              </div>
              {{end}}
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`
