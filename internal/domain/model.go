package domain

import "context"

// WidgetKind names a widget an overlay can place on a model's layout.
type WidgetKind string

const (
	WidgetTopBar           WidgetKind = "TopBar"
	WidgetBottomBar        WidgetKind = "BottomBar"
	WidgetCameras          WidgetKind = "Cameras"
	WidgetMatch            WidgetKind = "Match"
	WidgetPoll             WidgetKind = "Poll"
	WidgetPopup            WidgetKind = "Popup"
	WidgetTweets           WidgetKind = "Tweets"
	WidgetMaps             WidgetKind = "Maps"
	WidgetPlanning         WidgetKind = "Planning"
	WidgetTwitchPoll       WidgetKind = "TwitchPoll"
	WidgetTwitchPrediction WidgetKind = "TwitchPrediction"
)

// KnownWidget reports whether k is one of the widget kinds above.
func KnownWidget(k WidgetKind) bool {
	switch k {
	case WidgetTopBar, WidgetBottomBar, WidgetCameras, WidgetMatch, WidgetPoll,
		WidgetPopup, WidgetTweets, WidgetMaps, WidgetPlanning,
		WidgetTwitchPoll, WidgetTwitchPrediction:
		return true
	}
	return false
}

type MapRules struct {
	Min         int  `json:"min" yaml:"min"`
	Max         int  `json:"max" yaml:"max"`
	InTopbar    bool `json:"inTopbar" yaml:"inTopbar"`
	InBottombar bool `json:"inBottombar" yaml:"inBottombar"`
}

type CameraRules struct {
	NumberOfGroup int `json:"numberOfGroup" yaml:"numberOfGroup"`
	MaxPerGroup   int `json:"maxPerGroup" yaml:"maxPerGroup"`
	MinPerGroup   int `json:"minPerGroup" yaml:"minPerGroup"`
}

type ModelRules struct {
	Maps    MapRules     `json:"Maps" yaml:"maps"`
	Cameras CameraRules  `json:"Cameras" yaml:"cameras"`
	Widgets []WidgetKind `json:"Widgets" yaml:"widgets"`
}

// Model is an overlay layout template. UUID is a stable slug such as
// "louvard", not an RFC 4122 value.
type Model struct {
	UUID        string     `json:"uuid" yaml:"uuid"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Price       int        `json:"price" yaml:"price"`
	Preview     string     `json:"preview" yaml:"preview"`
	Rules       ModelRules `json:"rules" yaml:"rules"`
	Tags        []string   `json:"tags" yaml:"tags"`
}

func (m *Model) AllowsWidget(kind WidgetKind) bool {
	for _, w := range m.Rules.Widgets {
		if w == kind {
			return true
		}
	}
	return false
}

// CameraSlots is the largest number of cameras the layout can show.
func (m *Model) CameraSlots() int {
	return m.Rules.Cameras.NumberOfGroup * m.Rules.Cameras.MaxPerGroup
}

type ModelCatalog interface {
	ListModels(ctx context.Context) ([]Model, error)
	// GetModel returns ErrModelNotFound for unknown slugs.
	GetModel(ctx context.Context, uuid string) (*Model, error)
}
