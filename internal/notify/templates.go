package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"
)

const (
	TemplateVerificationCode = "verification_code"
	TemplateInvitationResend = "invitation_resend"
)

// Content is a rendered message. HTML is only used by the email channel.
type Content struct {
	Subject string
	Text    string
	HTML    string
}

type templateSet struct {
	subject *template.Template
	text    *template.Template
	html    *htmltemplate.Template
}

// Templates renders message bodies by template id.
type Templates struct {
	set map[string]templateSet
}

var defaultTemplates = map[string][3]string{
	TemplateVerificationCode: {
		`{{.app}} verification code`,
		`{{.app}}: your verification code is {{.code}}. It expires in {{.ttl_minutes}} min. Do not share it.`,
		`<h3>{{.app}} verification</h3>
<p>Your verification code is <strong>{{.code}}</strong>.</p>
<p>It expires in {{.ttl_minutes}} minutes. If you did not request it, ignore this message.</p>`,
	},
	TemplateInvitationResend: {
		`Your {{.app}} invitation`,
		`{{if .name}}{{.name}}, {{end}}your {{.app}} invitation: {{.link}}`,
		`<h3>{{if .name}}Hello {{.name}}!{{else}}Hello!{{end}}</h3>
<p>Open your {{.app}} invitation: <a href="{{.link}}">{{.link}}</a></p>`,
	},
}

// NewTemplates parses the built-in templates.
func NewTemplates() (*Templates, error) {
	t := &Templates{set: make(map[string]templateSet, len(defaultTemplates))}
	for id, parts := range defaultTemplates {
		if err := t.Add(id, parts[0], parts[1], parts[2]); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Add registers or replaces a template.
func (t *Templates) Add(id, subject, text, html string) error {
	s, err := template.New(id + ".subject").Option("missingkey=zero").Parse(subject)
	if err != nil {
		return fmt.Errorf("parse %s subject: %w", id, err)
	}
	b, err := template.New(id + ".text").Option("missingkey=zero").Parse(text)
	if err != nil {
		return fmt.Errorf("parse %s text: %w", id, err)
	}
	h, err := htmltemplate.New(id + ".html").Option("missingkey=zero").Parse(html)
	if err != nil {
		return fmt.Errorf("parse %s html: %w", id, err)
	}
	t.set[id] = templateSet{subject: s, text: b, html: h}
	return nil
}

func (t *Templates) Render(id string, vars map[string]string) (Content, error) {
	ts, ok := t.set[id]
	if !ok {
		return Content{}, fmt.Errorf("unknown template %q", id)
	}
	var subj, text, html bytes.Buffer
	if err := ts.subject.Execute(&subj, vars); err != nil {
		return Content{}, fmt.Errorf("render %s subject: %w", id, err)
	}
	if err := ts.text.Execute(&text, vars); err != nil {
		return Content{}, fmt.Errorf("render %s text: %w", id, err)
	}
	if err := ts.html.Execute(&html, vars); err != nil {
		return Content{}, fmt.Errorf("render %s html: %w", id, err)
	}
	return Content{Subject: subj.String(), Text: text.String(), HTML: html.String()}, nil
}
