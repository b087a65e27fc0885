package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"
	"time"
)

//go:embed templates/*
var templateFS embed.FS

var funcs = map[string]any{
	"date": func(t time.Time) string { return t.Format("Mon 2 Jan 2006, 15:04") },
}

// Renderer turns a message kind and its data into subject, html and text bodies.
type Renderer interface {
	Render(kind Kind, data any) (subject, htmlBody, textBody string, err error)
}

type templateRenderer struct{}

// NewTemplateRenderer returns a Renderer backed by the embedded templates folder.
func NewTemplateRenderer() Renderer {
	return &templateRenderer{}
}

func (r *templateRenderer) Render(kind Kind, data any) (subject, htmlBody, textBody string, err error) {
	name := string(kind)

	subject, err = r.renderFile(name+"_subject.txt", data, false)
	if err != nil {
		return "", "", "", fmt.Errorf("render subject: %w", err)
	}
	htmlBody, err = r.renderFile(name+".html", data, true)
	if err != nil {
		return "", "", "", fmt.Errorf("render html: %w", err)
	}
	textBody, err = r.renderFile(name+".txt", data, false)
	if err != nil {
		return "", "", "", fmt.Errorf("render text: %w", err)
	}
	return strings.TrimSpace(subject), htmlBody, textBody, nil
}

func (r *templateRenderer) renderFile(name string, data any, html bool) (string, error) {
	raw, err := templateFS.ReadFile("templates/" + name)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if html {
		t, err := template.New(name).Funcs(funcs).Parse(string(raw))
		if err != nil {
			return "", err
		}
		if err := t.Execute(&buf, data); err != nil {
			return "", err
		}
	} else {
		t, err := texttemplate.New(name).Funcs(funcs).Parse(string(raw))
		if err != nil {
			return "", err
		}
		if err := t.Execute(&buf, data); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}
