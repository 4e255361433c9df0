package models

import (
	"time"
)

// ColumnID identifies a board column
type ColumnID string

const (
	ColumnDrafts    ColumnID = "drafts"
	ColumnPresented ColumnID = "presented"
	ColumnApproved  ColumnID = "approved"
)

// Column is a kanban board column
type Column struct {
	ID    ColumnID `yaml:"id" json:"id"`
	Title string   `yaml:"title" json:"title"`
}

// DefaultColumns returns the built-in column list
func DefaultColumns() []Column {
	return []Column{
		{ID: ColumnDrafts, Title: "Drafts"},
		{ID: ColumnPresented, Title: "Presented"},
		{ID: ColumnApproved, Title: "Approved"},
	}
}

// ProjectStatus represents the state of a project card
type ProjectStatus string

const (
	ProjectDraft     ProjectStatus = "draft"
	ProjectActive    ProjectStatus = "active"
	ProjectCompleted ProjectStatus = "completed"
)

// Project is a card on the board
type Project struct {
	ID        string        `yaml:"id" json:"id"`
	Status    ProjectStatus `yaml:"status" json:"status"`
	Type      string        `yaml:"type" json:"type"`
	Title     string        `yaml:"title" json:"title"`
	Subtitle  string        `yaml:"subtitle" json:"subtitle,omitempty"`
	Date      *time.Time    `yaml:"date" json:"date,omitempty"`
	ImageURL  string        `yaml:"image_url" json:"image_url,omitempty"`
	Column    ColumnID      `yaml:"column_id" json:"column_id"`
	Position  int           `yaml:"position" json:"position"`
	CreatedAt time.Time     `yaml:"-" json:"created_at"`
	UpdatedAt time.Time     `yaml:"-" json:"updated_at"`
}

// CreateProjectRequest represents a request to create a project card
type CreateProjectRequest struct {
	Status   ProjectStatus `json:"status,omitempty"`
	Type     string        `json:"type"`
	Title    string        `json:"title"`
	Subtitle string        `json:"subtitle,omitempty"`
	Date     *time.Time    `json:"date,omitempty"`
	ImageURL string        `json:"image_url,omitempty"`
	Column   ColumnID      `json:"column_id,omitempty"`
}

// MoveRequest moves a card to a column and position
type MoveRequest struct {
	Column   ColumnID `json:"column_id"`
	Position int      `json:"position"`
}

// BoardColumn is a column with its cards sorted by position
type BoardColumn struct {
	Column
	Opportunities []*Opportunity `json:"opportunities"`
	Projects      []*Project     `json:"projects"`
}

// Board is the full kanban board
type Board struct {
	Columns     []*BoardColumn `json:"columns"`
	GeneratedAt time.Time      `json:"generated_at"`
}
