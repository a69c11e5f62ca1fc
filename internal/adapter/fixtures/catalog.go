// Package fixtures serves the model and overlay catalogs from YAML embedded
// in the binary.
package fixtures

import (
	"context"
	_ "embed"
	"fmt"
	"slices"

	"github.com/streamcave/overlay-api/internal/domain"
	"gopkg.in/yaml.v3"
)

var (
	//go:embed models.yaml
	modelsYAML []byte
	//go:embed overlays.yaml
	overlaysYAML []byte
)

type catalogFile struct {
	Models []domain.Model `yaml:"models"`
}

type overlayFile struct {
	Overlays []domain.Overlay `yaml:"overlays"`
}

// Catalog is an immutable domain.ModelCatalog and domain.OverlayCatalog.
// It is safe for concurrent use.
type Catalog struct {
	models []domain.Model
	bySlug map[string]int

	overlays  []domain.Overlay
	byOverlay map[string]int
}

var (
	_ domain.ModelCatalog   = (*Catalog)(nil)
	_ domain.OverlayCatalog = (*Catalog)(nil)
)

// NewCatalog loads the embedded models.yaml and overlays.yaml.
func NewCatalog() (*Catalog, error) {
	return parseAll(modelsYAML, overlaysYAML)
}

// Parse loads a model catalog without overlays.
func Parse(data []byte) (*Catalog, error) {
	return parseAll(data, nil)
}

func parseAll(models, overlays []byte) (*Catalog, error) {
	c, err := parseModels(models)
	if err != nil {
		return nil, err
	}
	if err := c.loadOverlays(overlays); err != nil {
		return nil, err
	}
	return c, nil
}

func parseModels(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse model fixtures: %w", err)
	}

	c := &Catalog{
		models:    file.Models,
		bySlug:    make(map[string]int, len(file.Models)),
		byOverlay: map[string]int{},
	}
	for i, m := range file.Models {
		if err := validateModel(m); err != nil {
			return nil, fmt.Errorf("model %d: %w", i, err)
		}
		if _, dup := c.bySlug[m.UUID]; dup {
			return nil, fmt.Errorf("model %q defined twice", m.UUID)
		}
		c.bySlug[m.UUID] = i
	}
	return c, nil
}

func validateModel(m domain.Model) error {
	if m.UUID == "" {
		return fmt.Errorf("missing uuid")
	}
	for _, w := range m.Rules.Widgets {
		if !domain.KnownWidget(w) {
			return fmt.Errorf("model %q: unknown widget %q", m.UUID, w)
		}
	}
	maps := m.Rules.Maps
	if maps.Min < 0 || maps.Max < maps.Min {
		return fmt.Errorf("model %q: invalid map bounds %d..%d", m.UUID, maps.Min, maps.Max)
	}
	cams := m.Rules.Cameras
	if cams.NumberOfGroup < 0 || cams.MinPerGroup < 0 || cams.MaxPerGroup < cams.MinPerGroup {
		return fmt.Errorf("model %q: invalid camera rules", m.UUID)
	}
	return nil
}

func (c *Catalog) loadOverlays(data []byte) error {
	var file overlayFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse overlay fixtures: %w", err)
	}

	for i, o := range file.Overlays {
		if err := c.validateOverlay(o); err != nil {
			return fmt.Errorf("overlay %d: %w", i, err)
		}
		if _, dup := c.byOverlay[o.UUID]; dup {
			return fmt.Errorf("overlay %q defined twice", o.UUID)
		}
		c.byOverlay[o.UUID] = i
	}
	c.overlays = file.Overlays
	return nil
}

func (c *Catalog) validateOverlay(o domain.Overlay) error {
	if o.UUID == "" {
		return fmt.Errorf("missing uuid")
	}
	if _, ok := c.bySlug[o.Model]; !ok {
		return fmt.Errorf("overlay %q: unknown model %q", o.UUID, o.Model)
	}
	if o.Owner == "" {
		return fmt.Errorf("overlay %q: missing owner", o.UUID)
	}
	if slices.Contains(o.Access, o.Owner) {
		return fmt.Errorf("overlay %q: owner listed in access", o.UUID)
	}
	return nil
}

func (c *Catalog) ListModels(_ context.Context) ([]domain.Model, error) {
	out := make([]domain.Model, len(c.models))
	for i := range c.models {
		out[i] = cloneModel(c.models[i])
	}
	return out, nil
}

func (c *Catalog) GetModel(_ context.Context, uuid string) (*domain.Model, error) {
	i, ok := c.bySlug[uuid]
	if !ok {
		return nil, domain.ErrModelNotFound
	}
	m := cloneModel(c.models[i])
	return &m, nil
}

func (c *Catalog) OverlaysFor(_ context.Context, memberID string) ([]domain.Overlay, error) {
	out := []domain.Overlay{}
	for i := range c.overlays {
		if c.overlays[i].VisibleTo(memberID) {
			out = append(out, cloneOverlay(c.overlays[i]))
		}
	}
	return out, nil
}

func (c *Catalog) GetOverlay(_ context.Context, uuid string) (*domain.Overlay, error) {
	i, ok := c.byOverlay[uuid]
	if !ok {
		return nil, domain.ErrOverlayNotFound
	}
	o := cloneOverlay(c.overlays[i])
	return &o, nil
}

func cloneOverlay(o domain.Overlay) domain.Overlay {
	o.Access = append([]string(nil), o.Access...)
	return o
}

func cloneModel(m domain.Model) domain.Model {
	m.Rules.Widgets = append([]domain.WidgetKind(nil), m.Rules.Widgets...)
	m.Tags = append([]string(nil), m.Tags...)
	return m
}
