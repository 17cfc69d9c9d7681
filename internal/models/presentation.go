package models

// ContentElement types.
const (
	ContentText  = "text"
	ContentTable = "table"
	ContentImage = "image"
)

// ContentElement is one piece of extracted slide content. Data holds plain text for
// text elements, a markdown table for table elements and a base64 data URI for images.
type ContentElement struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// SlideRecord is one slide's extracted content, numbered from 1 in deck order.
type SlideRecord struct {
	SlideNumber int              `json:"slide_number"`
	Content     []ContentElement `json:"content"`
	Notes       string           `json:"notes"`
}

// FirstImage returns the data URI of the first image element, if any.
func (s SlideRecord) FirstImage() (string, bool) {
	for _, el := range s.Content {
		if el.Type == ContentImage && el.Data != "" {
			return el.Data, true
		}
	}
	return "", false
}

// HasData reports whether at least one content element carries data.
func (s SlideRecord) HasData() bool {
	for _, el := range s.Content {
		if el.Data != "" {
			return true
		}
	}
	return false
}

// ScriptItem is the narration written for a single slide.
type ScriptItem struct {
	SlideNumber int    `json:"slide_number"`
	Script      string `json:"script"`
}

// AudioArtifact is a synthesized narration file inside a presentation's scratch directory.
type AudioArtifact struct {
	SlideNumber int    `json:"slide_number"`
	Path        string `json:"path"`
}
