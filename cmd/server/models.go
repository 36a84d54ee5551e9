package main

import (
	"github.com/liamcoop/rulesets/rules"
)

// API request and response models

// CreateRulesetResponse is returned when a ruleset is saved
type CreateRulesetResponse struct {
	RulesetID        string `json:"rulesetId" example:"r_k3x9a0qz"`
	EvaluateEndpoint string `json:"evaluateEndpoint" example:"http://localhost:8080/evaluate/r_k3x9a0qz"`
}

// RulesetsListResponse represents the response for listing rulesets
type RulesetsListResponse struct {
	Rulesets []*rules.Ruleset `json:"rulesets"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"duplicate id c1"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string           `json:"status" example:"healthy"`
	Store    string           `json:"store" example:"sql"`
	Error    string           `json:"error,omitempty"`
	Counters map[string]int64 `json:"counters,omitempty"`
}
