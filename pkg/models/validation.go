package models

// ValidationResult reports the outcome of a registration or definition check.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// AddError appends a failure message and flips the result invalid.
func (vr *ValidationResult) AddError(message string) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, message)
}

// NewValidationResult returns a passing result.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{Valid: true}
}
