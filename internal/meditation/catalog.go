// ============================================================================
// SpiritFlow - Guided Meditation Companion
// ============================================================================
//
// Package:     meditation
// Description: YAML prompt catalog: prompt templates, speech wrapper, voices
// Author:      Mike Stoffels with Claude
// Created:     2025-12-07
// License:     MIT
// ============================================================================

package meditation

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplates []byte

// Voice identifiers of the prebuilt speech voices
const (
	VoiceRise = "Kore"
	VoiceRest = "Zephyr"
)

// FieldYAML describes one intention input
type FieldYAML struct {
	Key         string `yaml:"key"`
	Label       string `yaml:"label"`
	Placeholder string `yaml:"placeholder,omitempty"`
}

// FlowYAML is one flow definition as it appears in the catalog file
type FlowYAML struct {
	Title      string    `yaml:"title"`
	AudioTitle string    `yaml:"audio_title"`
	Voice      string    `yaml:"voice"`
	Primary    FieldYAML `yaml:"primary"`
	Secondary  FieldYAML `yaml:"secondary"`
	Prompt     string    `yaml:"prompt"`
}

// CatalogYAML is the catalog file layout
type CatalogYAML struct {
	Speech string              `yaml:"speech"`
	Flows  map[string]FlowYAML `yaml:"flows"`
}

// FlowTemplate is a parsed flow definition
type FlowTemplate struct {
	Flow       Flow
	Title      string
	AudioTitle string
	Voice      string
	Primary    FieldYAML
	Secondary  FieldYAML

	prompt *template.Template
}

// Catalog holds the parsed prompt templates for every flow
type Catalog struct {
	speech *template.Template
	flows  map[Flow]*FlowTemplate
}

// DefaultCatalog returns the built-in catalog
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultTemplates)
	if err != nil {
		panic(fmt.Sprintf("meditation: built-in templates invalid: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog from a YAML file. An empty path yields the default.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses and validates catalog YAML
func ParseCatalog(data []byte) (*Catalog, error) {
	var raw CatalogYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	if strings.TrimSpace(raw.Speech) == "" {
		return nil, fmt.Errorf("speech template is required")
	}
	speech, err := template.New("speech").Option("missingkey=error").Parse(raw.Speech)
	if err != nil {
		return nil, fmt.Errorf("invalid speech template: %w", err)
	}

	c := &Catalog{speech: speech, flows: make(map[Flow]*FlowTemplate, len(Flows))}
	for _, flow := range Flows {
		def, ok := raw.Flows[flow.String()]
		if !ok {
			return nil, fmt.Errorf("flow %q missing from templates", flow)
		}
		if def.Voice == "" {
			return nil, fmt.Errorf("flow %q has no voice", flow)
		}
		if strings.TrimSpace(def.Prompt) == "" {
			return nil, fmt.Errorf("flow %q has no prompt", flow)
		}

		prompt, err := template.New(flow.String()).Option("missingkey=error").Parse(def.Prompt)
		if err != nil {
			return nil, fmt.Errorf("invalid prompt for flow %q: %w", flow, err)
		}

		c.flows[flow] = &FlowTemplate{
			Flow:       flow,
			Title:      def.Title,
			AudioTitle: def.AudioTitle,
			Voice:      def.Voice,
			Primary:    def.Primary,
			Secondary:  def.Secondary,
			prompt:     prompt,
		}
	}

	return c, nil
}

// Flow returns the template for a flow
func (c *Catalog) Flow(flow Flow) (*FlowTemplate, error) {
	ft, ok := c.flows[flow]
	if !ok {
		return nil, fmt.Errorf("unknown flow %q", flow)
	}
	return ft, nil
}

// Prompt builds the text-generation prompt for a complete intention set
func (c *Catalog) Prompt(set IntentionSet) (string, error) {
	if !set.Complete() {
		return "", fmt.Errorf("intentions for %s flow are incomplete", set.Flow)
	}
	ft, err := c.Flow(set.Flow)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if err := ft.prompt.Execute(&b, set.Normalized()); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return b.String(), nil
}

// SpeechText wraps a generated script in the speaking instruction
func (c *Catalog) SpeechText(script string) (string, error) {
	var b strings.Builder
	data := struct{ Script string }{Script: strings.TrimSpace(script)}
	if err := c.speech.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render speech text: %w", err)
	}
	return b.String(), nil
}

// Voice returns the voice identifier for a flow
func (c *Catalog) Voice(flow Flow) string {
	if ft, ok := c.flows[flow]; ok {
		return ft.Voice
	}
	return VoiceRise
}
