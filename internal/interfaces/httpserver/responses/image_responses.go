package responses

import (
	"time"

	"imagevault/internal/domain/image"
)

// ImageResponse is the external shape of an image record.
type ImageResponse struct {
	ID        string    `json:"id"`
	ObjectKey string    `json:"object_key"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BuildImageResponse creates a response from a domain record.
func BuildImageResponse(rec *image.ImageRecord) *ImageResponse {
	return &ImageResponse{
		ID:        rec.ID,
		ObjectKey: rec.ObjectKey,
		URL:       rec.PublicURL,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

// ImageListResponse wraps a collection of records.
type ImageListResponse struct {
	Images []ImageResponse `json:"images"`
	Count  int             `json:"count"`
}

// BuildImageListResponse creates a list response from domain records.
func BuildImageListResponse(recs []image.ImageRecord) *ImageListResponse {
	out := make([]ImageResponse, 0, len(recs))
	for i := range recs {
		out = append(out, *BuildImageResponse(&recs[i]))
	}
	return &ImageListResponse{Images: out, Count: len(out)}
}

// DetectionResponse is one classifier detection.
type DetectionResponse struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// ScreenResponse is the result of a standalone screening call.
type ScreenResponse struct {
	Flagged    bool                `json:"flagged"`
	Detections []DetectionResponse `json:"detections"`
}

// BuildScreenResponse creates a screening response.
func BuildScreenResponse(flagged bool, detections []image.Detection) *ScreenResponse {
	out := make([]DetectionResponse, 0, len(detections))
	for _, d := range detections {
		out = append(out, DetectionResponse{Label: d.Label, Score: d.Score})
	}
	return &ScreenResponse{Flagged: flagged, Detections: out}
}
