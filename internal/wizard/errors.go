package wizard

import (
	"errors"
	"net/http"

	pkgerrors "github.com/civictrack/civictrack-backend/pkg/errors"
)

// Rejection causes. Every refusal returned by the Controller wraps exactly one
// of these, so callers can use errors.Is.
var (
	ErrMissingCaptureData     = errors.New("image and location are required")
	ErrEmptyDescription       = errors.New("description is empty")
	ErrClassificationNotReady = errors.New("classification has not finished")
	ErrDuplicateSubmission    = errors.New("report was already submitted")
	ErrInvalidTransition      = errors.New("operation not allowed in the current step")

	// ErrLocationUnavailable is never returned: location lookups always
	// resolve to a fallback position.
	ErrLocationUnavailable = errors.New("location unavailable")
)

// Rejection codes
const (
	CodeMissingCaptureData     = "MISSING_CAPTURE_DATA"
	CodeEmptyDescription       = "EMPTY_DESCRIPTION"
	CodeClassificationNotReady = "CLASSIFICATION_NOT_READY"
	CodeDuplicateSubmission    = "DUPLICATE_SUBMISSION"
	CodeInvalidTransition      = "INVALID_TRANSITION"
)

func missingCaptureData(hasImage, hasLocation bool) *pkgerrors.AppError {
	details := make(map[string]string)
	if !hasImage {
		details["image"] = "required"
	}
	if !hasLocation {
		details["location"] = "required"
	}
	return pkgerrors.Rejected(ErrMissingCaptureData, CodeMissingCaptureData,
		"wizard.missing_capture_data", http.StatusUnprocessableEntity).WithDetails(details)
}

func emptyDescription() *pkgerrors.AppError {
	return pkgerrors.Rejected(ErrEmptyDescription, CodeEmptyDescription,
		"wizard.empty_description", http.StatusUnprocessableEntity)
}

func classificationNotReady() *pkgerrors.AppError {
	return pkgerrors.Rejected(ErrClassificationNotReady, CodeClassificationNotReady,
		"wizard.classification_not_ready", http.StatusConflict)
}

func duplicateSubmission() *pkgerrors.AppError {
	return pkgerrors.Rejected(ErrDuplicateSubmission, CodeDuplicateSubmission,
		"wizard.duplicate_submission", http.StatusConflict)
}

// Actions named in invalid transition messages
const (
	actionAttachPhoto        = "attach_photo"
	actionSetLocation        = "set_location"
	actionContinueToDescribe = "continue_to_describe"
	actionBackToCapture      = "back_to_capture"
	actionAnalyze            = "analyze"
	actionCancelAnalysis     = "cancel_analysis"
	actionBackToDescribe     = "back_to_describe"
	actionContinueToConfirm  = "continue_to_confirm"
	actionSubmit             = "submit"
)

func invalidTransition(action string, stage Stage) *pkgerrors.AppError {
	return pkgerrors.Rejected(ErrInvalidTransition, CodeInvalidTransition,
		"wizard.invalid_transition", http.StatusConflict,
		map[string]string{"action": action, "stage": stage.String()}).
		WithParamKeys(map[string]string{
			"action": "wizard.actions." + action,
			"stage":  "wizard.stages." + stage.String(),
		})
}
