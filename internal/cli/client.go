// Package cli is the HTTP client and output formatting behind auditctl.
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/metorial/auditor/internal/models"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func (c *Client) Health() (map[string]interface{}, error) {
	var out map[string]interface{}
	return out, c.do(http.MethodGet, "/api/playbooks/health", nil, &out)
}

func (c *Client) ListHosts() ([]models.Host, error) {
	var out []models.Host
	return out, c.do(http.MethodGet, "/inventory/list", nil, &out)
}

func (c *Client) RegisterHost(name, username, password, ip string) (*models.Host, error) {
	var out models.Host
	err := c.do(http.MethodPost, "/inventory/register", map[string]string{
		"name": name, "username": username, "password": password, "ip": ip,
	}, &out)
	return &out, err
}

func (c *Client) DeleteHost(id int64) error {
	return c.do(http.MethodDelete, fmt.Sprintf("/inventory/delete/%d", id), nil, nil)
}

func (c *Client) CheckHost(username, password, ip string) (*models.CheckResult, error) {
	var out models.CheckResult
	err := c.do(http.MethodPost, "/inventory/check", map[string]string{
		"username": username, "password": password, "ip": ip,
	}, &out)
	return &out, err
}

func (c *Client) ListPlaybooks() ([]models.Playbook, error) {
	var out []models.Playbook
	return out, c.do(http.MethodGet, "/api/playbooks", nil, &out)
}

func (c *Client) GetPlaybook(id int64) (*models.Playbook, error) {
	var out models.Playbook
	return &out, c.do(http.MethodGet, fmt.Sprintf("/api/playbooks/%d", id), nil, &out)
}

func (c *Client) Script(id int64, sectionIDs []string) (*models.ScriptContent, error) {
	q := url.Values{"section_ids": sectionIDs}
	path := fmt.Sprintf("/api/playbooks/%d/script", id)
	if len(sectionIDs) > 0 {
		path += "?" + q.Encode()
	}
	var out models.ScriptContent
	return &out, c.do(http.MethodGet, path, nil, &out)
}

// UploadPlaybook sends the file at path as a new playbook.
func (c *Client) UploadPlaybook(name, description, path string) (*models.Playbook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("name", name); err != nil {
		return nil, err
	}
	if err := mw.WriteField("description", description); err != nil {
		return nil, err
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/playbooks", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out models.Playbook
	return &out, c.send(req, &out)
}

func (c *Client) DeletePlaybook(id int64) error {
	return c.do(http.MethodDelete, fmt.Sprintf("/api/playbooks/%d", id), nil, nil)
}

func (c *Client) ValidateYAML(content string) (*models.ValidationResult, error) {
	var out models.ValidationResult
	return &out, c.do(http.MethodPost, "/api/playbooks/validate-yaml", map[string]string{"content": content}, &out)
}

// Execute starts a playbook run and returns the execution id.
func (c *Client) Execute(playbookID int64, hostIDs []int64, password string, sectionIDs []string) (string, error) {
	var out struct {
		ExecutionID string `json:"execution_id"`
	}
	err := c.do(http.MethodPost, fmt.Sprintf("/api/playbooks/%d/execute", playbookID), map[string]interface{}{
		"host_ids":    hostIDs,
		"password":    password,
		"section_ids": sectionIDs,
	}, &out)
	return out.ExecutionID, err
}

func (c *Client) Execution(id string) (*models.Execution, error) {
	var out models.Execution
	return &out, c.do(http.MethodGet, "/api/playbooks/execution/"+url.PathEscape(id), nil, &out)
}

func (c *Client) Executions(limit int) ([]models.Execution, error) {
	var out []models.Execution
	return out, c.do(http.MethodGet, fmt.Sprintf("/api/playbooks/executions?limit=%d", limit), nil, &out)
}

func (c *Client) CancelExecution(id string) (*models.Execution, error) {
	var out models.Execution
	return &out, c.do(http.MethodPost, "/api/playbooks/execution/"+url.PathEscape(id)+"/cancel", nil, &out)
}

// WaitExecution polls until the execution is terminal or attempts run out.
func (c *Client) WaitExecution(id string, interval time.Duration, attempts int) (*models.Execution, error) {
	for i := 0; i < attempts; i++ {
		exec, err := c.Execution(id)
		if err != nil {
			return nil, err
		}
		if exec.Status.Terminal() {
			return exec, nil
		}
		time.Sleep(interval)
	}
	return nil, fmt.Errorf("execution %s still running after %d checks", id, attempts)
}

func (c *Client) Results(hostID int64, username string) (*models.AuditResultSet, error) {
	var out models.AuditResultSet
	return &out, c.do(http.MethodGet, fmt.Sprintf("/api/download/%d/%s/json", hostID, url.PathEscape(username)), nil, &out)
}

func (c *Client) Summary(hostID int64, username string) (*models.AuditSummary, error) {
	var out models.AuditSummary
	return &out, c.do(http.MethodGet, fmt.Sprintf("/api/download/%d/%s/summary", hostID, url.PathEscape(username)), nil, &out)
}

func (c *Client) do(method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var e struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(body, &e) == nil && e.Detail != "" {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, e.Detail)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
