package models

import "time"

type PlaybookType string

const (
	PlaybookShell   PlaybookType = "shell"
	PlaybookAnsible PlaybookType = "ansible"
	PlaybookPython  PlaybookType = "python"
)

// PlaybookIdle is the status of a playbook that has never been executed.
const PlaybookIdle = "idle"

type Playbook struct {
	ID          int64        `json:"id" db:"id"`
	Name        string       `json:"name" db:"name"`
	Description string       `json:"description" db:"description"`
	Filename    string       `json:"filename" db:"filename"`
	Type        PlaybookType `json:"type" db:"type"`
	Content     string       `json:"-" db:"content"`
	Sections    []Section    `json:"sections,omitempty" db:"-"`
	Status      string       `json:"status" db:"status"`
	LastRun     *time.Time   `json:"last_run,omitempty" db:"last_run"`
	TaskCount   int          `json:"tasks" db:"task_count"`
	SHA256Hash  string       `json:"sha256_hash" db:"sha256_hash"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}

// Section is an independently selectable fragment of a structured playbook.
type Section struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Content     string `json:"content"`
	LineStart   int    `json:"line_start,omitempty"`
	LineEnd     int    `json:"line_end,omitempty"`
}

// HasSection reports whether id names one of the playbook's sections.
func (p *Playbook) HasSection(id string) bool {
	for _, s := range p.Sections {
		if s.ID == id {
			return true
		}
	}
	return false
}

// ScriptContent is the raw (optionally section-filtered) content of a playbook.
type ScriptContent struct {
	PlaybookID       int64        `json:"playbook_id"`
	PlaybookName     string       `json:"playbook_name"`
	Filename         string       `json:"filename"`
	ScriptContent    string       `json:"script_content"`
	SelectedSections []string     `json:"selected_sections"`
	FileType         PlaybookType `json:"file_type"`
	ContentLength    int          `json:"content_length"`
}
