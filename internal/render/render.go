// Package render assembles response markup for a podlet component under one
// of three rendering strategies: server-render only, client-render only, or
// hydrate. The server-rendering primitive itself is an external collaborator.
package render

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/podev-dev/podev/internal/logging"
	"github.com/podev-dev/podev/internal/registry"
)

// Mode selects the rendering strategy. Fixed for the process lifetime.
type Mode int

const (
	ModeSSROnly Mode = iota
	ModeCSROnly
	ModeHydrate
)

// String returns the configuration spelling of the mode.
func (m Mode) String() string {
	switch m {
	case ModeSSROnly:
		return "ssr-only"
	case ModeCSROnly:
		return "csr-only"
	case ModeHydrate:
		return "hydrate"
	default:
		return "unknown"
	}
}

// ParseMode maps a configuration value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "ssr-only":
		return ModeSSROnly, nil
	case "csr-only":
		return ModeCSROnly, nil
	case "hydrate":
		return ModeHydrate, nil
	default:
		return 0, fmt.Errorf("unknown render mode %q", s)
	}
}

// AppContext is the app-specific context handed to state functions.
type AppContext struct {
	Name        string
	Base        string
	Locale      string
	Development bool
}

// StateFunc produces the initial state for one route. Its result is
// serialized and embedded as a string attribute on the element.
type StateFunc func(r *http.Request, app AppContext) (any, error)

// ServerRenderer produces server-rendered markup from an element definition
// and its attribute set. Treated as a black box.
type ServerRenderer interface {
	Render(ctx context.Context, def *registry.ElementDefinition, attrs map[string]string) (string, error)
}

// Pipeline assembles markup for element responses.
type Pipeline struct {
	mode       Mode
	renderer   ServerRenderer
	hydrateSrc string
	log        logging.Logger
}

// NewPipeline creates a pipeline. hydrateSrc is the hydration-support
// bootstrap script reference emitted in hydrate mode.
func NewPipeline(mode Mode, renderer ServerRenderer, hydrateSrc string, log logging.Logger) *Pipeline {
	return &Pipeline{
		mode:       mode,
		renderer:   renderer,
		hydrateSrc: hydrateSrc,
		log:        log.WithComponent("render"),
	}
}

// Mode returns the configured rendering strategy.
func (p *Pipeline) Mode() Mode {
	return p.mode
}

// Markup renders the response body for def with the given initial state.
// The three modes form a total, order-independent mapping:
//
//	ssr-only  server-rendered template, no script markup
//	csr-only  raw element tag with serialized state, no script markup
//	hydrate   bootstrap script reference plus server-rendered template
func (p *Pipeline) Markup(ctx context.Context, def *registry.ElementDefinition, state any) (string, error) {
	attrs, err := stateAttributes(state)
	if err != nil {
		return "", fmt.Errorf("serializing initial state: %w", err)
	}

	switch p.mode {
	case ModeSSROnly:
		return p.renderer.Render(ctx, def, attrs)
	case ModeCSROnly:
		return elementTag(def.Tag, attrs), nil
	case ModeHydrate:
		body, err := p.renderer.Render(ctx, def, attrs)
		if err != nil {
			return "", err
		}
		return hydrateScript(p.hydrateSrc) + body, nil
	default:
		return "", fmt.Errorf("unknown render mode %d", p.mode)
	}
}

func stateAttributes(state any) (map[string]string, error) {
	attrs := make(map[string]string, 1)
	if state == nil {
		return attrs, nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	attrs["initial-state"] = string(data)
	return attrs, nil
}

// elementTag emits the raw custom-element tag for client-side rendering.
func elementTag(tag string, attrs map[string]string) string {
	var b strings.Builder
	b.WriteString("<")
	b.WriteString(tag)
	for k, v := range attrs {
		b.WriteString(fmt.Sprintf(` %s="%s"`, k, html.EscapeString(v)))
	}
	b.WriteString("></")
	b.WriteString(tag)
	b.WriteString(">")
	return b.String()
}

func hydrateScript(src string) string {
	return fmt.Sprintf(`<script type="module" src="%s"></script>`, html.EscapeString(src))
}
