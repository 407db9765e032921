package config

import (
	"fmt"
)

// ModelParams mirrors the model argument group saved by training in the
// model directory (cfg_args).
type ModelParams struct {
	SHDegree        *int    `json:"sh_degree,omitempty" yaml:"sh_degree,omitempty"`
	SourcePath      *string `json:"source_path,omitempty" yaml:"source_path,omitempty"`
	ModelPath       *string `json:"model_path,omitempty" yaml:"model_path,omitempty"`
	Images          *string `json:"images,omitempty" yaml:"images,omitempty"`
	WhiteBackground *bool   `json:"white_background,omitempty" yaml:"white_background,omitempty"`
	// Eval is how training split the dataset. The checkpoint already stores
	// each split's cameras, so it is carried through but never read.
	Eval *bool `json:"eval,omitempty" yaml:"eval,omitempty"`
}

// PipelineParams holds renderer switches.
type PipelineParams struct {
	Debug         *bool    `json:"debug,omitempty" yaml:"debug,omitempty"`
	ScaleModifier *float64 `json:"scale_modifier,omitempty" yaml:"scale_modifier,omitempty"`
}

// HiddenParams holds the deformation switches.
type HiddenParams struct {
	NoDx   *bool    `json:"no_dx,omitempty" yaml:"no_dx,omitempty"`
	NoDs   *bool    `json:"no_ds,omitempty" yaml:"no_ds,omitempty"`
	NoDo   *bool    `json:"no_do,omitempty" yaml:"no_do,omitempty"`
	Bounds *float64 `json:"bounds,omitempty" yaml:"bounds,omitempty"`
}

// Params is the full set of argument groups. The group names match the
// section names used in --configs files.
type Params struct {
	Model    ModelParams    `json:"ModelParams,omitempty" yaml:"ModelParams,omitempty"`
	Pipeline PipelineParams `json:"PipelineParams,omitempty" yaml:"PipelineParams,omitempty"`
	Hidden   HiddenParams   `json:"ModelHiddenParams,omitempty" yaml:"ModelHiddenParams,omitempty"`
	// Optimization is accepted so training config files load unchanged.
	// Rendering does not use it.
	Optimization map[string]interface{} `json:"OptimizationParams,omitempty" yaml:"OptimizationParams,omitempty"`
}

// Helper functions to create pointers
func PtrFloat64(v float64) *float64 { return &v }
func PtrBool(v bool) *bool          { return &v }
func PtrString(v string) *string    { return &v }
func PtrInt(v int) *int             { return &v }

func pick[T any](dst **T, src *T) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

// Merge copies every field set in o over p.
func (p *Params) Merge(o *Params) {
	if o == nil {
		return
	}
	p.Model.Merge(&o.Model)

	pick(&p.Pipeline.Debug, o.Pipeline.Debug)
	pick(&p.Pipeline.ScaleModifier, o.Pipeline.ScaleModifier)

	pick(&p.Hidden.NoDx, o.Hidden.NoDx)
	pick(&p.Hidden.NoDs, o.Hidden.NoDs)
	pick(&p.Hidden.NoDo, o.Hidden.NoDo)
	pick(&p.Hidden.Bounds, o.Hidden.Bounds)

	if len(o.Optimization) > 0 {
		if p.Optimization == nil {
			p.Optimization = make(map[string]interface{})
		}
		for k, v := range o.Optimization {
			p.Optimization[k] = v
		}
	}
}

// Merge copies every field set in o over m.
func (m *ModelParams) Merge(o *ModelParams) {
	if o == nil {
		return
	}
	pick(&m.SHDegree, o.SHDegree)
	pick(&m.SourcePath, o.SourcePath)
	pick(&m.ModelPath, o.ModelPath)
	pick(&m.Images, o.Images)
	pick(&m.WhiteBackground, o.WhiteBackground)
	pick(&m.Eval, o.Eval)
}

// Validate checks that the configuration values are valid.
func (p *Params) Validate() error {
	if p.Model.SHDegree != nil && (*p.Model.SHDegree < 0 || *p.Model.SHDegree > 3) {
		return fmt.Errorf("sh_degree must be between 0 and 3, got %d", *p.Model.SHDegree)
	}
	if p.Pipeline.ScaleModifier != nil && *p.Pipeline.ScaleModifier <= 0 {
		return fmt.Errorf("scale_modifier must be positive, got %f", *p.Pipeline.ScaleModifier)
	}
	if p.Hidden.Bounds != nil && *p.Hidden.Bounds < 0 {
		return fmt.Errorf("bounds must be non-negative, got %f", *p.Hidden.Bounds)
	}
	return nil
}

// GetSHDegree returns the sh_degree value or the default.
func (m *ModelParams) GetSHDegree() int {
	if m.SHDegree == nil {
		return 3
	}
	return *m.SHDegree
}

// GetSourcePath returns the source_path value or the default.
func (m *ModelParams) GetSourcePath() string {
	if m.SourcePath == nil {
		return ""
	}
	return *m.SourcePath
}

// GetModelPath returns the model_path value or the default.
func (m *ModelParams) GetModelPath() string {
	if m.ModelPath == nil {
		return ""
	}
	return *m.ModelPath
}

// GetImages returns the images directory name or the default.
func (m *ModelParams) GetImages() string {
	if m.Images == nil || *m.Images == "" {
		return "images"
	}
	return *m.Images
}

// GetWhiteBackground returns the white_background value or the default.
func (m *ModelParams) GetWhiteBackground() bool {
	if m.WhiteBackground == nil {
		return false
	}
	return *m.WhiteBackground
}

// GetDebug returns the debug value or the default.
func (p *PipelineParams) GetDebug() bool {
	if p.Debug == nil {
		return false
	}
	return *p.Debug
}

// GetScaleModifier returns the scale_modifier value or the default.
func (p *PipelineParams) GetScaleModifier() float64 {
	if p.ScaleModifier == nil {
		return 1.0
	}
	return *p.ScaleModifier
}

// GetNoDx returns the no_dx value or the default.
func (h *HiddenParams) GetNoDx() bool {
	if h.NoDx == nil {
		return false
	}
	return *h.NoDx
}

// GetNoDs returns the no_ds value or the default.
func (h *HiddenParams) GetNoDs() bool {
	if h.NoDs == nil {
		return false
	}
	return *h.NoDs
}

// GetNoDo returns the no_do value or the default.
func (h *HiddenParams) GetNoDo() bool {
	if h.NoDo == nil {
		return false
	}
	return *h.NoDo
}

// GetBounds returns the bounds value or the default (0, unbounded).
func (h *HiddenParams) GetBounds() float64 {
	if h.Bounds == nil {
		return 0
	}
	return *h.Bounds
}
