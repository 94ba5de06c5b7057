package notifications

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Format selects the markup a Sender expects.
type Format string

// Supported formats.
const (
	FormatPlain    Format = "plain"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

var bodyTemplates = map[Format]string{
	FormatPlain: `{{ label .Severity }}: {{ .Message }}
{{ .Site }} · {{ formatTime .CreatedAt }}`,
	FormatMarkdown: `{{ emoji .Severity }} **{{ label .Severity }}**: {{ .Message }}
_{{ .Site }} · {{ formatTime .CreatedAt }}_`,
	FormatHTML: `{{ emoji .Severity }} <b>{{ escape (label .Severity) }}</b>: {{ escape .Message }}
<i>{{ escape .Site }} · {{ formatTime .CreatedAt }}</i>`,
}

var titleCaser = cases.Title(language.Spanish)

// Renderer turns feed notifications into subject/body pairs per format.
type Renderer struct {
	site      string
	templates map[Format]*template.Template
}

// NewRenderer parses the body templates. site names the terminal in every message.
func NewRenderer(site string) (*Renderer, error) {
	funcMap := template.FuncMap{
		"label":      severityLabel,
		"emoji":      severityEmoji,
		"escape":     html.EscapeString,
		"formatTime": formatTime,
	}

	r := &Renderer{
		site:      site,
		templates: make(map[Format]*template.Template, len(bodyTemplates)),
	}
	for format, text := range bodyTemplates {
		tmpl, err := template.New(string(format)).Funcs(funcMap).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", format, err)
		}
		r.templates[format] = tmpl
	}
	return r, nil
}

// Render renders n for the given format.
func (r *Renderer) Render(n Notification, format Format) (Message, error) {
	tmpl, ok := r.templates[format]
	if !ok {
		return Message{}, fmt.Errorf("template not found: %s", format)
	}

	data := struct {
		Notification
		Site string
	}{Notification: n, Site: r.site}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("execute template %s: %w", format, err)
	}

	return Message{
		Subject:  r.subject(n),
		Body:     strings.TrimSpace(buf.String()),
		Severity: n.Severity,
	}, nil
}

func (r *Renderer) subject(n Notification) string {
	source := n.Source
	if source == "" {
		source = r.site
	}
	return fmt.Sprintf("[%s] %s", severityLabel(n.Severity), titleCaser.String(source))
}

func severityLabel(s Severity) string {
	switch s {
	case SeveritySuccess:
		return "Éxito"
	case SeverityWarning:
		return "Advertencia"
	case SeverityError:
		return "Error"
	default:
		return "Información"
	}
}

func severityEmoji(s Severity) string {
	switch s {
	case SeveritySuccess:
		return "✅"
	case SeverityWarning:
		return "🟠"
	case SeverityError:
		return "🔴"
	default:
		return "ℹ️"
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format("02/01/2006 15:04 UTC")
}
