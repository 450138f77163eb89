package server

import "secretsanta/internal/domain"

// Request payloads

type AssignRequest struct {
	Participants []domain.Participant     `json:"participants" doc:"Participants; emails must be unique"`
	Prior        []domain.PriorAssignment `json:"prior,omitempty" doc:"Last round's assignments; records missing an email are ignored"`
	Record       bool                     `json:"record,omitempty" doc:"Store the result in run history"`
}

// Response payloads

type AssignResponse struct {
	RunID       string              `json:"run_id,omitempty"`
	Attempts    int                 `json:"attempts"`
	Assignments []domain.Assignment `json:"assignments"`
}

type RunListResponse struct {
	Items []domain.Run `json:"items"`
}

type RunDetailResponse struct {
	Run         domain.Run          `json:"run"`
	Assignments []domain.Assignment `json:"assignments"`
}

type EventListResponse struct {
	Items []domain.Event `json:"items"`
}
