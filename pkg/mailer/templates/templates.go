package templates

import (
	"bytes"
	"fmt"
	htmltpl "html/template"
	texttpl "text/template"
)

type emailTemplate struct {
	subject string
	text    string
	html    string
}

var registry = map[string]emailTemplate{
	"welcome": {
		subject: `Welcome to {{or .AppName "our service"}}`,
		text:    "Hi {{.Name}},\n\nYour account was created with the address {{.Email}}.\n",
		html: `<html><body>
<p>Hi {{.Name}},</p>
<p>Your account was created with the address <strong>{{.Email}}</strong>.</p>
</body></html>`,
	},
}

// Render renders the named template with data and returns subject, text and
// HTML bodies.
func Render(name string, data map[string]any) (string, string, string, error) {
	tpl, ok := registry[name]
	if !ok {
		return "", "", "", fmt.Errorf("unknown email template %q", name)
	}
	subject, err := renderText(name+":subject", tpl.subject, data)
	if err != nil {
		return "", "", "", err
	}
	text, err := renderText(name+":text", tpl.text, data)
	if err != nil {
		return "", "", "", err
	}
	html, err := renderHTML(name+":html", tpl.html, data)
	if err != nil {
		return "", "", "", err
	}
	return subject, text, html, nil
}

func renderText(name, body string, data map[string]any) (string, error) {
	t, err := texttpl.New(name).Parse(body)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderHTML(name, body string, data map[string]any) (string, error) {
	t, err := htmltpl.New(name).Parse(body)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
