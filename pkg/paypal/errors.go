package paypal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// APIError is a non-2xx response from PayPal.
type APIError struct {
	StatusCode int
	Name       string
	Message    string
	DebugID    string
	Issues     []string
}

func (e *APIError) Error() string {
	if len(e.Issues) > 0 {
		return fmt.Sprintf("paypal %d %s: %s", e.StatusCode, e.Name, strings.Join(e.Issues, ","))
	}
	return fmt.Sprintf("paypal %d %s: %s", e.StatusCode, e.Name, e.Message)
}

// HasIssue reports whether PayPal listed issue among the error details.
func (e *APIError) HasIssue(issue string) bool {
	if e == nil {
		return false
	}
	for _, candidate := range e.Issues {
		if candidate == issue {
			return true
		}
	}
	return false
}

// IsIssue reports whether err wraps a PayPal API error carrying issue.
func IsIssue(err error, issue string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.HasIssue(issue)
}

func parseAPIError(status int, raw []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var payload struct {
		Name    string `json:"name"`
		Message string `json:"message"`
		DebugID string `json:"debug_id"`
		Details []struct {
			Issue string `json:"issue"`
		} `json:"details"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(raw))
		return apiErr
	}
	apiErr.Name = payload.Name
	apiErr.Message = payload.Message
	apiErr.DebugID = payload.DebugID
	for _, detail := range payload.Details {
		if detail.Issue != "" {
			apiErr.Issues = append(apiErr.Issues, detail.Issue)
		}
	}
	return apiErr
}

func mapAPIError(err error, op string) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return pkgerrors.Wrap(domainCodeForStatus(apiErr.StatusCode), err, fmt.Sprintf("paypal %s failed", op))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("paypal %s failed", op))
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusUnprocessableEntity, http.StatusPaymentRequired:
		return pkgerrors.CodePaymentFailed
	case http.StatusBadRequest:
		return pkgerrors.CodeValidation
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}
