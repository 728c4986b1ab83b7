package renderer

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/autodoc/internal/analyzer"
)

func exampleModel() *analyzer.Model {
	return &analyzer.Model{
		Path:      "/apps/water_heater.py",
		Name:      "water_heater",
		Docstring: "Controls the water heater schedule.",
		Imports:   []string{"appdaemon.plugins.hass.hassapi"},
		Entities:  []string{"sensor.water_temp", "switch.water_heater"},
		Classes: []analyzer.Class{{
			Name:      "WaterHeater",
			Bases:     []string{"hass.Hass"},
			Docstring: "Schedule driven heater control.",
			Line:      5,
			Methods: []analyzer.Function{
				{Name: "initialize", Params: []string{"self"}, Line: 8, Callback: true},
				{Name: "on_schedule", Params: []string{"self", "kwargs"}, Line: 14, Callback: true, Calls: []string{"set_heater"}},
				{Name: "set_heater", Params: []string{"self", "state"}, Line: 20},
			},
		}},
		Relations: []analyzer.Relation{
			{From: "on_schedule", To: "set_heater", Kind: analyzer.RelationCalls},
			{From: "WaterHeater", To: "initialize", Kind: analyzer.RelationContains},
			{From: "WaterHeater", To: "on_schedule", Kind: analyzer.RelationContains},
			{From: "WaterHeater", To: "set_heater", Kind: analyzer.RelationContains},
			{From: "water_heater", To: "appdaemon.plugins.hass.hassapi", Kind: analyzer.RelationImports},
			{From: "initialize", To: "on_schedule", Kind: analyzer.RelationListens},
		},
	}
}

func TestRenderMarkdownSections(t *testing.T) {
	body := Render(exampleModel())
	md := string(body.Markdown)

	assert.True(t, strings.HasPrefix(md, "# Water Heater\n"))
	assert.Contains(t, md, "> **Class:** `WaterHeater`")
	assert.Contains(t, md, "> **Base Classes:** `hass.Hass`")
	assert.Contains(t, md, "Controls the water heater schedule.")
	assert.Contains(t, md, "- `sensor.water_temp`")
	assert.Contains(t, md, "| `on_schedule` | `self`, `kwargs` | yes | 14 |")
	assert.Contains(t, md, "- `appdaemon.plugins.hass.hassapi`")
	assert.Contains(t, md, "```mermaid")
}

func TestRenderDiagramFollowsModelRelations(t *testing.T) {
	body := Render(exampleModel())

	assert.Contains(t, body.Diagram, "flowchart TD")
	assert.Contains(t, body.Diagram, `WaterHeater["WaterHeater"]`)
	assert.Contains(t, body.Diagram, "WaterHeater --> initialize")
	assert.Contains(t, body.Diagram, "on_schedule -->|calls| set_heater")
	assert.Contains(t, body.Diagram, "initialize -->|registers| on_schedule")
	// Import relations stay out of the diagram.
	assert.NotContains(t, body.Diagram, "hassapi")
}

func TestRenderIsDeterministic(t *testing.T) {
	a := Render(exampleModel())
	b := Render(exampleModel())
	assert.Equal(t, a.Markdown, b.Markdown)
	assert.Equal(t, a.Diagram, b.Diagram)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
}

func TestRenderConcurrentCallsProduceIdenticalOutput(t *testing.T) {
	want := Render(exampleModel())

	const goroutines = 8
	bodies := make([]Body, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for n := 0; n < 50; n++ {
				bodies[i] = Render(exampleModel())
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < goroutines; i++ {
		assert.Equal(t, want.Markdown, bodies[i].Markdown)
		assert.Equal(t, want.Fingerprint, bodies[i].Fingerprint)
	}
}

func TestRenderFingerprintTracksContent(t *testing.T) {
	a := Render(exampleModel())

	changed := exampleModel()
	changed.Docstring = "Something else entirely."
	b := Render(changed)

	require.NotEmpty(t, a.Fingerprint)
	assert.NotEqual(t, a.Fingerprint, b.Fingerprint)
}

func TestRenderDegradedModel(t *testing.T) {
	m := &analyzer.Model{
		Name:        "broken",
		Degraded:    true,
		Diagnostics: []string{"content is not valid UTF-8 text; structural analysis skipped"},
	}
	body := Render(m)
	md := string(body.Markdown)

	assert.Contains(t, md, "# Broken")
	assert.Contains(t, md, "Structural analysis was not possible")
	assert.Contains(t, md, "not valid UTF-8")
	assert.Empty(t, body.Diagram)
}

func TestOutlineExtractsHeadings(t *testing.T) {
	body := Render(exampleModel())

	require.NotEmpty(t, body.Outline)
	assert.Equal(t, Heading{Level: 1, Text: "Water Heater"}, body.Outline[0])

	var texts []string
	for _, h := range body.Outline {
		if h.Level == 2 {
			texts = append(texts, h.Text)
		}
	}
	assert.Equal(t, []string{"Overview", "Entities", "API", "Dependencies", "Architecture"}, texts)
}
