package genflow

import (
	"fmt"
	"slices"
	"strings"
)

// Model identifies a generation model.
type Model string

const (
	// ModelBase is the base generation model.
	ModelBase Model = "sora-2"
	// ModelPro is the pro model: longer clips, large size only, longer timeouts.
	ModelPro Model = "sora-2-pro"
)

// Orientation is the clip aspect.
type Orientation string

const (
	Portrait  Orientation = "portrait"
	Landscape Orientation = "landscape"
)

// Size is the output size class.
type Size string

const (
	SizeSmall Size = "small"
	SizeLarge Size = "large"
)

type modelLimits struct {
	durations []int
	sizes     []Size
}

// modelTable is the model/duration/size compatibility table enforced before submission.
var modelTable = map[Model]modelLimits{
	ModelBase: {durations: []int{10, 15}, sizes: []Size{SizeSmall, SizeLarge}},
	ModelPro:  {durations: []int{15, 25}, sizes: []Size{SizeLarge}},
}

// ParseModel accepts a model name or its short alias ("base", "pro").
func ParseModel(s string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ModelBase), "base":
		return ModelBase, nil
	case string(ModelPro), "pro":
		return ModelPro, nil
	}
	return "", fmt.Errorf("%w: unknown model %q", ErrInvalidParams, s)
}

// AllowedDurations returns the durations (seconds) the model accepts.
func (m Model) AllowedDurations() []int { return slices.Clone(modelTable[m].durations) }

// AllowedSizes returns the size classes the model accepts.
func (m Model) AllowedSizes() []Size { return slices.Clone(modelTable[m].sizes) }

// DefaultSize is the size used when the caller does not pick one.
func (m Model) DefaultSize() Size {
	if m == ModelPro {
		return SizeLarge
	}
	return SizeSmall
}

// CreateParams are the create-job request fields.
type CreateParams struct {
	Model       Model       `json:"model"`
	Prompt      string      `json:"prompt"`
	Images      []string    `json:"images"`
	Orientation Orientation `json:"orientation"`
	Size        Size        `json:"size"`
	Duration    int         `json:"duration"`
}

// Validate checks the params against the model table. It never touches the network.
func (p CreateParams) Validate() error {
	lim, ok := modelTable[p.Model]
	if !ok {
		return fmt.Errorf("%w: unknown model %q", ErrInvalidParams, p.Model)
	}
	if strings.TrimSpace(p.Prompt) == "" {
		return fmt.Errorf("%w: prompt is empty", ErrInvalidParams)
	}
	if p.Orientation != Portrait && p.Orientation != Landscape {
		return fmt.Errorf("%w: orientation %q", ErrInvalidParams, p.Orientation)
	}
	if !slices.Contains(lim.durations, p.Duration) {
		return fmt.Errorf("%w: duration %d not allowed for %s (allowed %v)", ErrInvalidParams, p.Duration, p.Model, lim.durations)
	}
	if !slices.Contains(lim.sizes, p.Size) {
		return fmt.Errorf("%w: size %q not allowed for %s (allowed %v)", ErrInvalidParams, p.Size, p.Model, lim.sizes)
	}
	return nil
}
