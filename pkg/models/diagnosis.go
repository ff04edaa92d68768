package models

// Confidence represents the confidence level of a diagnosis
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Diagnosis is a model-generated root cause for the failures of a run.
type Diagnosis struct {
	RootCause    string     `json:"root_cause"`
	Evidence     []string   `json:"evidence"`
	SuggestedFix string     `json:"suggested_fix"`
	Confidence   Confidence `json:"confidence"`
	Model        string     `json:"model,omitempty"`
}
