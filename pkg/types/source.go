package types

import "time"

type SourceType string

const (
	SourceTypeGmail SourceType = "gmail"
	SourceTypeSlack SourceType = "slack"
)

// Project is the owner of imported data sources.
type Project struct {
	Id        string    `json:"id"`
	UserId    string    `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// DataSource is an imported document attached to a project. Created once per
// import and never mutated.
type DataSource struct {
	Id         string         `json:"id"`
	ProjectId  string         `json:"project_id"`
	SourceType SourceType     `json:"source_type"`
	Name       string         `json:"name"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	FilePath   string         `json:"file_path,omitempty"`
	OriginId   string         `json:"origin_id"` // thread id, message id or channel id
	CreatedAt  time.Time      `json:"created_at"`
}

// ImportResult is returned to the UI after a successful import.
type ImportResult struct {
	Success      bool        `json:"success"`
	Source       *DataSource `json:"source"`
	MessageCount int         `json:"messageCount"`
	Skipped      bool        `json:"skipped,omitempty"`
}
