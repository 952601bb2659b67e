package models

import (
	"encoding/base64"
	"strings"
)

// DefaultMimeType is assumed for screenshot uploads that omit one.
const DefaultMimeType = "image/png"

// ScreenshotRequest is the payload for submitting a screenshot for analysis.
type ScreenshotRequest struct {
	UserID   string `json:"user_id"`
	Image    string `json:"image"`               // base64-encoded screenshot, data URL prefix allowed
	MimeType string `json:"mime_type,omitempty"` // defaults to image/png
	AppType  string `json:"app_type,omitempty"`  // source app hint, e.g. "google-fit"
}

// Validate performs validation on a ScreenshotRequest structure.
func (r *ScreenshotRequest) Validate() error {
	if r.UserID == "" {
		return ErrEmptyUserID
	}
	if strings.TrimSpace(r.Image) == "" {
		return ErrEmptyImage
	}
	if len(r.Image) > MaxImageBase64Length {
		return ErrImageTooLarge
	}
	return nil
}

// DecodeImage strips an optional data URL prefix and decodes the base64
// payload. The MIME type embedded in a data URL wins over the field.
func (r *ScreenshotRequest) DecodeImage() ([]byte, string, error) {
	raw := strings.TrimSpace(r.Image)
	mime := r.MimeType
	if rest, ok := strings.CutPrefix(raw, "data:"); ok {
		header, body, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", ErrInvalidImage
		}
		if m, _, found := strings.Cut(header, ";"); found && m != "" {
			mime = m
		} else if header != "" {
			mime = header
		}
		raw = body
	}
	if mime == "" {
		mime = DefaultMimeType
	}

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, "", ErrInvalidImage
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}
	return data, mime, nil
}

// MessageRequest is the payload for classifying a user message.
type MessageRequest struct {
	UserID string `json:"user_id"`
	Body   string `json:"body"`
}

// Validate performs validation on a MessageRequest structure.
func (r *MessageRequest) Validate() error {
	if r.UserID == "" {
		return ErrEmptyUserID
	}
	if strings.TrimSpace(r.Body) == "" {
		return ErrEmptyMessage
	}
	if len(r.Body) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// AssessmentScoreRequest is the payload for scoring one completed
// instrument, or several at once when Sections is set.
type AssessmentScoreRequest struct {
	UserID     string           `json:"user_id,omitempty"`
	Instrument string           `json:"instrument,omitempty"` // "phq9", "gad7" or "pss4"
	Responses  []int            `json:"responses,omitempty"`
	Sections   map[string][]int `json:"sections,omitempty"` // instrument name -> responses
}

// Validate performs validation on an AssessmentScoreRequest structure.
// Instrument-specific checks (count, option range) happen in the assessment
// package, which knows each template.
func (r *AssessmentScoreRequest) Validate() error {
	if len(r.Sections) > 0 {
		return nil
	}
	if r.Instrument == "" {
		return ErrUnknownInstrument
	}
	if len(r.Responses) == 0 {
		return ErrResponseCount
	}
	return nil
}
