package model

// Camera represents a roadside camera a violation was captured from.
type Camera struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	StreamURL string `json:"stream_url"`
}
