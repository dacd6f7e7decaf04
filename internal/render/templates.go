package render

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"firemon/internal/feed"
)

//go:embed templates/card.html.tmpl templates/post.txt.tmpl
var templatesFS embed.FS

const mapCredit = "Map data © OpenStreetMap contributors (openstreetmap.org/copyright)."

// cardData is the payload both templates render from.
type cardData struct {
	Current  feed.Record
	Previous *feed.Record
	New      bool
	Fields   []string

	TerrainImage string // base64 PNG, empty when the render failed
	DetailImage  string
	MapCredit    string
	SourceURL    string
}

type templates struct {
	card *htmltemplate.Template
	post *texttemplate.Template
}

func loadTemplates() (*templates, error) {
	card, err := htmltemplate.ParseFS(templatesFS, "templates/card.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse card template: %w", err)
	}
	post, err := texttemplate.New("post.txt.tmpl").
		Funcs(texttemplate.FuncMap{"sub": func(a, b float64) float64 { return a - b }}).
		ParseFS(templatesFS, "templates/post.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse post template: %w", err)
	}
	return &templates{card: card, post: post}, nil
}

func (t *templates) renderCard(data cardData) (string, error) {
	var b bytes.Buffer
	if err := t.card.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render card: %w", err)
	}
	return b.String(), nil
}

func (t *templates) renderPost(data cardData) (string, error) {
	var b bytes.Buffer
	if err := t.post.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render post: %w", err)
	}
	return b.String(), nil
}
