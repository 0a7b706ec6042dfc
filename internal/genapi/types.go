package genapi

import (
	"encoding/json"
	"fmt"
)

// Status is the job state reported by the API.
type Status int

const (
	StatusProcessing Status = 1
	StatusCompleted  Status = 2
	StatusFailed     Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type ImageRequest struct {
	Prompt      string `json:"prompt"`
	Model       string `json:"model,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Style       string `json:"style,omitempty"`
	// FileURLs are reference images, such as a character's master image.
	FileURLs   []string `json:"file_urls,omitempty"`
	RefHistory string   `json:"ref_history,omitempty"`
	WebhookURL string   `json:"webhook_url,omitempty"`
}

type VideoRequest struct {
	Prompt      string   `json:"prompt"`
	Model       string   `json:"model,omitempty"`
	Resolution  string   `json:"resolution,omitempty"`
	AspectRatio string   `json:"aspect_ratio,omitempty"`
	FileURLs    []string `json:"file_urls"`
	RefHistory  string   `json:"ref_history,omitempty"`
	WebhookURL  string   `json:"webhook_url,omitempty"`
}

// Response is shared by the generate and status endpoints and by webhook
// pushes from the API.
type Response struct {
	UUID             string     `json:"uuid"`
	Status           Status     `json:"status"`
	StatusPercentage int        `json:"status_percentage,omitempty"`
	StatusDesc       string     `json:"status_desc,omitempty"`
	GenerateResult   ResultURLs `json:"generate_result,omitempty"`
	Credits          int        `json:"credits,omitempty"`
}

// MediaURL is the first result URL, if any.
func (r Response) MediaURL() string {
	if len(r.GenerateResult) == 0 {
		return ""
	}
	return r.GenerateResult[0]
}

// Err converts a failed status into ErrGenerationFailed.
func (r Response) Err() error {
	if r.Status != StatusFailed {
		return nil
	}
	if r.StatusDesc != "" {
		return fmt.Errorf("%w: %s", ErrGenerationFailed, r.StatusDesc)
	}
	return ErrGenerationFailed
}

// ResultURLs accepts either a single URL string or a list of URLs.
type ResultURLs []string

func (u *ResultURLs) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*u = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*u = nil
		} else {
			*u = ResultURLs{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("generate_result: %w", err)
	}
	*u = many
	return nil
}

type errorBody struct {
	Detail struct {
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
	} `json:"detail"`
}
