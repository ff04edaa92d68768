package models

import "time"

// HealingStage identifies the rung of the resolution ladder an attempt ran on.
type HealingStage string

const (
	StagePrimary   HealingStage = "primary"
	StageHeuristic HealingStage = "heuristic"
)

// HealingEvent is one element-resolution attempt recorded by a page registry.
// Test processes write these as JSON lines so that the runner can observe
// locator drift after the fact.
type HealingEvent struct {
	Time         time.Time    `json:"time"`
	Page         string       `json:"page,omitempty"`
	Element      string       `json:"element"`
	Stage        HealingStage `json:"stage"`
	Strategy     string       `json:"strategy,omitempty"`
	Success      bool         `json:"success"`
	MatchedToken string       `json:"matched_token,omitempty"`
	Detail       string       `json:"detail,omitempty"`
}
