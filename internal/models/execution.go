package models

import "time"

type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
)

func (s ExecutionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Phase is the dispatcher's internal state. It only moves forward.
type Phase int

const (
	PhaseCreated Phase = iota
	PhaseDispatching
	PhaseRunning
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseDispatching:
		return "dispatching"
	case PhaseRunning:
		return "running"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// Status maps the internal phase onto the polled status vocabulary.
func (p Phase) Status() ExecutionStatus {
	switch p {
	case PhaseRunning:
		return StatusRunning
	case PhaseCompleted:
		return StatusCompleted
	case PhaseFailed:
		return StatusFailed
	}
	return StatusPending
}

type Execution struct {
	ID               string                    `json:"execution_id"`
	PlaybookID       int64                     `json:"playbook_id"`
	PlaybookName     string                    `json:"playbook_name"`
	PlaybookFilename string                    `json:"playbook_filename"`
	HostIDs          []int64                   `json:"host_ids"`
	SectionIDs       []string                  `json:"section_ids,omitempty"`
	Hosts            []HostSnapshot            `json:"hosts"`
	Status           ExecutionStatus           `json:"status"`
	Error            string                    `json:"error,omitempty"`
	StartedAt        time.Time                 `json:"start_time"`
	EndedAt          *time.Time                `json:"end_time,omitempty"`
	TotalHosts       int                       `json:"total_hosts"`
	SucceededHosts   int                       `json:"completed_hosts"`
	FailedHosts      int                       `json:"failed_hosts"`
	Results          map[int64]ExecutionResult `json:"results"`
}

// Clone returns a deep copy safe to hand to readers.
func (e *Execution) Clone() *Execution {
	c := *e
	c.HostIDs = append([]int64(nil), e.HostIDs...)
	c.SectionIDs = append([]string(nil), e.SectionIDs...)
	c.Hosts = append([]HostSnapshot(nil), e.Hosts...)
	if e.EndedAt != nil {
		t := *e.EndedAt
		c.EndedAt = &t
	}
	c.Results = make(map[int64]ExecutionResult, len(e.Results))
	for k, v := range e.Results {
		c.Results[k] = v
	}
	return &c
}

// ExecutionResult is the immutable outcome of one host run.
type ExecutionResult struct {
	HostID      int64     `json:"host_id" db:"host_id"`
	Hostname    string    `json:"hostname" db:"hostname"`
	IP          string    `json:"ip" db:"ip"`
	Success     bool      `json:"success" db:"success"`
	Output      string    `json:"output" db:"output"`
	ReturnCode  int       `json:"return_code" db:"return_code"`
	CompletedAt time.Time `json:"completed_at" db:"completed_at"`
	Cancelled   bool      `json:"cancelled,omitempty" db:"cancelled"`

	// Report holds the raw audit CSV collected from the host, if any.
	Report []byte `json:"-" db:"-"`
}
