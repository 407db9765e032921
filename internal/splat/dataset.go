package splat

import "fmt"

// DatasetType tags the loader a scene came from. It decides how ground
// truth is extracted from a camera view.
type DatasetType string

const (
	DatasetColmap         DatasetType = "Colmap"
	DatasetBlender        DatasetType = "Blender"
	DatasetDyNeRF         DatasetType = "dynerf"
	DatasetNerfies        DatasetType = "nerfies"
	DatasetPanopticSports DatasetType = "PanopticSports"
	DatasetMultipleView   DatasetType = "MultipleView"
)

// KnownDatasetTypes lists every accepted tag.
var KnownDatasetTypes = []DatasetType{
	DatasetColmap,
	DatasetBlender,
	DatasetDyNeRF,
	DatasetNerfies,
	DatasetPanopticSports,
	DatasetMultipleView,
}

// ParseDatasetType validates a tag. An empty string maps to Colmap.
func ParseDatasetType(s string) (DatasetType, error) {
	if s == "" {
		return DatasetColmap, nil
	}
	for _, t := range KnownDatasetTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown dataset type %q", s)
}

// GroundTruth returns the reference image for view. PanopticSports views
// carry a ready-made RGB image which is used as is; every other loader
// stores the source photo, of which the first three channels are kept.
func GroundTruth(view *Camera, camType DatasetType) (*Image, error) {
	if view == nil || view.OriginalImage == nil {
		name := "<nil>"
		if view != nil {
			name = view.Name
		}
		return nil, fmt.Errorf("view %s has no ground-truth image", name)
	}
	if camType == DatasetPanopticSports {
		return view.OriginalImage, nil
	}
	return view.OriginalImage.Channels(0, 3)
}
