package config

import (
	"github.com/banshee-data/splat.report/internal/deform"
	"github.com/banshee-data/splat.report/internal/render"
)

// RenderPipeline converts the pipeline group into renderer options.
func (p *PipelineParams) RenderPipeline() render.Pipeline {
	return render.Pipeline{
		ScaleModifier: p.GetScaleModifier(),
		Debug:         p.GetDebug(),
	}
}

// Deformation builds the deformation field. When noHexplane is set the
// model is rendered without any time-dependent motion.
func (h *HiddenParams) Deformation(noHexplane bool) deform.Field {
	if noHexplane {
		return deform.None{}
	}
	return deform.Linear{
		NoDx:   h.GetNoDx(),
		NoDs:   h.GetNoDs(),
		NoDo:   h.GetNoDo(),
		Bounds: h.GetBounds(),
	}
}
