package models

import (
	"time"
)

// EventType names a board change
type EventType string

const (
	EventOpportunityCreated EventType = "opportunity.created"
	EventOpportunityUpdated EventType = "opportunity.updated"
	EventOpportunityMoved   EventType = "opportunity.moved"
	EventOpportunityDeleted EventType = "opportunity.deleted"
	EventOptionCreated      EventType = "option.created"
	EventOptionUpdated      EventType = "option.updated"
	EventOptionDeleted      EventType = "option.deleted"
	EventProjectCreated     EventType = "project.created"
	EventProjectMoved       EventType = "project.moved"
)

// BoardEvent is pushed to realtime subscribers after every board write
type BoardEvent struct {
	Type     EventType `json:"type"`
	ID       string    `json:"id"`
	ParentID string    `json:"parent_id,omitempty"`
	Column   ColumnID  `json:"column_id,omitempty"`
	Position int       `json:"position"`
	At       time.Time `json:"at"`
}
