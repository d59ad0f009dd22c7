package models

import "time"

// Host is a registered audit target. The login credential is never part of
// the record handed to callers.
type Host struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	IP        string    `json:"ip" db:"ip"`
	Username  string    `json:"username" db:"username"`
	OS        string    `json:"os,omitempty" db:"os"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HostInfo is the subset of Host used by host selection lists.
type HostInfo struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IP       string `json:"ip"`
	Username string `json:"username"`
	OS       string `json:"os,omitempty"`
}

func (h Host) Info() HostInfo {
	return HostInfo{ID: h.ID, Name: h.Name, IP: h.IP, Username: h.Username, OS: h.OS}
}

// HostSnapshot is the denormalized copy of a host kept on an execution so
// history survives host deletion.
type HostSnapshot struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IP       string `json:"ip"`
	Username string `json:"username"`
}

func (h Host) Snapshot() HostSnapshot {
	return HostSnapshot{ID: h.ID, Name: h.Name, IP: h.IP, Username: h.Username}
}

// CheckResult is the outcome of a synchronous single-host check.
type CheckResult struct {
	Message    string `json:"message"`
	HostID     int64  `json:"host_id"`
	HostName   string `json:"host_name"`
	Result     string `json:"result"`
	Error      string `json:"error"`
	ReturnCode int    `json:"return_code"`
	Success    bool   `json:"success"`
	Rows       int    `json:"rows"`
}
