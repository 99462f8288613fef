// Package i18n renders notification template keys into user-facing text.
// Stored notifications only ever carry keys and parameters.
package i18n

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nhle/task-reminders/internal/model"
)

//go:embed en.yaml
var defaultCatalog []byte

// Renderer turns a template key and parameters into localized text.
type Renderer interface {
	Render(key string, params model.Params) string
}

// Message is a catalog entry: either a single template or a one/other
// pair chosen by the days parameter.
type Message struct {
	One   string `yaml:"one"`
	Other string `yaml:"other"`
}

// UnmarshalYAML accepts both a plain string and a {one, other} mapping.
func (m *Message) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		m.One = node.Value
		m.Other = node.Value
		return nil
	}
	type plain Message
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	if p.Other == "" {
		return fmt.Errorf("line %d: plural message needs an \"other\" form", node.Line)
	}
	if p.One == "" {
		p.One = p.Other
	}
	*m = Message(p)
	return nil
}

// Catalog is a YAML-backed Renderer for one locale.
type Catalog struct {
	Locale   string             `yaml:"locale"`
	Messages map[string]Message `yaml:"messages"`
}

// Parse reads a catalog document.
func Parse(r io.Reader) (*Catalog, error) {
	var c Catalog
	if err := yaml.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("parsing message catalog: %w", err)
	}
	if len(c.Messages) == 0 {
		return nil, fmt.Errorf("parsing message catalog: no messages")
	}
	return &c, nil
}

// LoadFile reads a catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening message catalog: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Default returns the embedded English catalog.
func Default() *Catalog {
	c, err := Parse(bytes.NewReader(defaultCatalog))
	if err != nil {
		panic(err)
	}
	return c
}

// Render resolves key and substitutes {title} and {days}. Unknown keys
// render as the key itself so a missing translation is visible but
// harmless.
func (c *Catalog) Render(key string, params model.Params) string {
	msg, ok := c.Messages[key]
	if !ok {
		return key
	}
	tmpl := msg.Other
	if params.Days == 1 {
		tmpl = msg.One
	}
	return strings.NewReplacer(
		"{title}", params.TaskTitle,
		"{days}", strconv.Itoa(params.Days),
	).Replace(tmpl)
}

// Rendered is a notification paired with its display text.
type Rendered struct {
	model.Notification
	TitleText   string `json:"title_text"`
	MessageText string `json:"message_text"`
}

// RenderNotification renders n's title and message with r.
func RenderNotification(r Renderer, n model.Notification) Rendered {
	return Rendered{
		Notification: n,
		TitleText:    r.Render(n.Title, n.Params),
		MessageText:  r.Render(n.Message, n.Params),
	}
}
