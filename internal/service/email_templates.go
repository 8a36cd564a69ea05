package service

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/survivorsoul/soulsongs/internal/markdown"
)

//go:embed templates/*.md
var emailTemplatesFS embed.FS

var emailTemplates = template.Must(
	template.New("email").
		Funcs(template.FuncMap{"title": titleCase}).
		ParseFS(emailTemplatesFS, "templates/*.md"),
)

const (
	templateWelcome               = "welcome.md"
	templateSubscriptionActivated = "subscription_activated.md"
	templateSubscriptionCanceled  = "subscription_canceled.md"
)

type emailData struct {
	Name    string
	Tier    string
	AppURL  string
	AppName string
}

type renderedEmail struct {
	Subject string
	Text    string
	HTML    string
}

// renderEmail fills a Markdown template and produces the subject, a plain-text body
// and its HTML rendering.
func renderEmail(md *markdown.Parser, name string, data emailData) (*renderedEmail, error) {
	var buf bytes.Buffer
	err := emailTemplates.ExecuteTemplate(&buf, name, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute email template %s: %w", name, err)
	}

	html, meta, err := md.Render(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to render email template %s: %w", name, err)
	}

	subject, _ := meta["subject"].(string)
	if subject == "" {
		return nil, fmt.Errorf("email template %s has no subject", name)
	}

	return &renderedEmail{
		Subject: subject,
		Text:    strings.TrimSpace(string(markdown.Body(buf.Bytes()))),
		HTML:    string(html),
	}, nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
