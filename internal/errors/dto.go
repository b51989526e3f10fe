package errors

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrorDetail contains error information
type ErrorDetail struct {
	Code          string         `json:"code"`
	Display       string         `json:"message"`
	InternalError string         `json:"internal_error,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}

// NewErrorDetail flattens an error built with ErrorBuilder into its wire form.
// Hints become the display message and reportable details are decoded back
// into a map.
func NewErrorDetail(err error) ErrorDetail {
	detail := ErrorDetail{
		Code:          CodeFromErr(err),
		InternalError: err.Error(),
	}

	if hints := errors.GetAllHints(err); len(hints) > 0 {
		detail.Display = strings.Join(hints, "; ")
	} else {
		detail.Display = err.Error()
	}

	for _, d := range errors.GetAllSafeDetails(err) {
		for _, payload := range d.SafeDetails {
			raw, ok := strings.CutPrefix(payload, "__json__:")
			if !ok {
				continue
			}
			details := map[string]any{}
			if json.Unmarshal([]byte(raw), &details) != nil {
				continue
			}
			if detail.Details == nil {
				detail.Details = map[string]any{}
			}
			for k, v := range details {
				detail.Details[k] = v
			}
		}
	}
	return detail
}
