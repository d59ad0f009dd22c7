package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/metorial/auditor/internal/models"
)

func TestClientHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/playbooks/health" {
			t.Errorf("Expected path /api/playbooks/health, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":          "healthy",
			"playbooks_count": 2,
		})
	}))
	defer server.Close()

	data, err := NewClient(server.URL).Health()
	if err != nil {
		t.Fatalf("Health() error: %v", err)
	}
	if data["status"] != "healthy" {
		t.Errorf("Expected status healthy, got %v", data["status"])
	}

	var out bytes.Buffer
	if err := FormatHealth(&out, data); err != nil {
		t.Fatalf("FormatHealth() error: %v", err)
	}
	if !strings.Contains(out.String(), "Playbooks: 2") {
		t.Errorf("Unexpected output: %s", out.String())
	}
}

func TestClientRegisterHost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inventory/register" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret" || body["ip"] != "10.0.0.5" {
			t.Errorf("Unexpected body: %v", body)
		}
		json.NewEncoder(w).Encode(models.Host{ID: 7, Name: body["name"], IP: body["ip"], Username: body["username"]})
	}))
	defer server.Close()

	host, err := NewClient(server.URL).RegisterHost("web-01", "root", "secret", "10.0.0.5")
	if err != nil {
		t.Fatalf("RegisterHost() error: %v", err)
	}
	if host.ID != 7 || host.Name != "web-01" {
		t.Errorf("Unexpected host: %+v", host)
	}
}

func TestClientErrorDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"detail": "playbook 9 not found"})
	}))
	defer server.Close()

	_, err := NewClient(server.URL).GetPlaybook(9)
	if err == nil {
		t.Fatal("Expected error")
	}
	if err.Error() != "HTTP 404: playbook 9 not found" {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestClientUploadPlaybook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		if r.FormValue("name") != "baseline" {
			t.Errorf("Expected name baseline, got %q", r.FormValue("name"))
		}
		_, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		json.NewEncoder(w).Encode(models.Playbook{ID: 1, Name: "baseline", Filename: header.Filename})
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "audit.sh")
	if err := os.WriteFile(path, []byte("echo hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := NewClient(server.URL).UploadPlaybook("baseline", "", path)
	if err != nil {
		t.Fatalf("UploadPlaybook() error: %v", err)
	}
	if p.Filename != "audit.sh" {
		t.Errorf("Expected filename audit.sh, got %s", p.Filename)
	}
}

func TestClientExecuteAndWait(t *testing.T) {
	polls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/playbooks/3/execute":
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			if body["password"] != "pw" {
				t.Errorf("Unexpected password in body")
			}
			json.NewEncoder(w).Encode(map[string]string{"execution_id": "abc"})
		case r.URL.Path == "/api/playbooks/execution/abc":
			polls++
			status := models.StatusRunning
			if polls >= 2 {
				status = models.StatusCompleted
			}
			json.NewEncoder(w).Encode(models.Execution{ID: "abc", Status: status})
		default:
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	id, err := client.Execute(3, []int64{1, 2}, "pw", []string{"section_2"})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if id != "abc" {
		t.Fatalf("Expected execution id abc, got %s", id)
	}

	exec, err := client.WaitExecution(id, time.Millisecond, 5)
	if err != nil {
		t.Fatalf("WaitExecution() error: %v", err)
	}
	if exec.Status != models.StatusCompleted {
		t.Errorf("Expected completed, got %s", exec.Status)
	}
}

func TestFormatExecution(t *testing.T) {
	exec := &models.Execution{
		ID:           "abc",
		PlaybookName: "baseline",
		Status:       models.StatusCompleted,
		TotalHosts:   2,
		Results: map[int64]models.ExecutionResult{
			2: {Hostname: "h2", IP: "10.0.0.2", Output: "dial tcp: refused", ReturnCode: -1},
			1: {Hostname: "h1", IP: "10.0.0.1", Success: true, Output: "line one\nall done\n"},
		},
	}

	var out bytes.Buffer
	if err := FormatExecution(&out, exec); err != nil {
		t.Fatal(err)
	}
	text := out.String()
	if strings.Index(text, "h1") > strings.Index(text, "h2") {
		t.Errorf("Expected results ordered by host id:\n%s", text)
	}
	if !strings.Contains(text, "all done") {
		t.Errorf("Expected last output line in table:\n%s", text)
	}
}

func TestFormatRowsTable(t *testing.T) {
	set := &models.AuditResultSet{
		Columns: []string{"항목코드", "결과", "note"},
		Rows: []models.AuditRow{
			{CheckName: "U-01", Verdict: models.VerdictGood, Details: map[string]string{"note": "root login disabled"}},
			{CheckName: "U-02", Verdict: models.VerdictBad, Details: map[string]string{"note": "weak policy"}},
		},
	}

	var out bytes.Buffer
	if err := FormatRowsTable(&out, set); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[0], "NOTE") || !strings.Contains(lines[2], "weak policy") {
		t.Errorf("Unexpected table:\n%s", out.String())
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{float64(512), "512.0 B"},
		{float64(2048), "2.0 KB"},
		{float64(3 << 30), "3.0 GB"},
		{"nope", "0 B"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
