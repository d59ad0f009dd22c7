package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/metorial/auditor/internal/models"
)

func FormatJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func FormatHealth(out io.Writer, data map[string]interface{}) error {
	fmt.Fprintf(out, "Status: %s\n", getString(data["status"]))
	fmt.Fprintf(out, "Playbooks: %s\n", formatNumber(data["playbooks_count"]))

	engine, ok := data["engine"].(map[string]interface{})
	if !ok {
		return nil
	}
	fmt.Fprintf(out, "Engine host: %s (%s)\n", getString(engine["hostname"]), getString(engine["os"]))
	fmt.Fprintf(out, "Uptime: %s\n", formatUptime(engine["uptime_seconds"]))
	fmt.Fprintf(out, "CPU: %s cores, %s%%\n", formatNumber(engine["cpu_cores"]), formatFloat(engine["cpu_percent"]))
	fmt.Fprintf(out, "Memory: %s / %s\n", formatBytes(engine["used_memory_bytes"]), formatBytes(engine["total_memory_bytes"]))
	fmt.Fprintf(out, "Disk: %s / %s\n", formatBytes(engine["used_disk_bytes"]), formatBytes(engine["total_disk_bytes"]))
	return nil
}

func FormatHostsTable(out io.Writer, hosts []models.Host) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tIP\tUSERNAME\tOS\tCREATED")
	for _, h := range hosts {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			h.ID, h.Name, h.IP, h.Username, orDash(h.OS), formatTime(h.CreatedAt))
	}
	return w.Flush()
}

func FormatPlaybooksTable(out io.Writer, playbooks []models.Playbook) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tFILE\tSECTIONS\tTASKS\tSTATUS\tLAST RUN")
	for _, p := range playbooks {
		lastRun := "-"
		if p.LastRun != nil {
			lastRun = formatTime(*p.LastRun)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			p.ID, p.Name, p.Type, p.Filename, len(p.Sections), p.TaskCount, p.Status, lastRun)
	}
	return w.Flush()
}

func FormatPlaybookDetail(out io.Writer, p *models.Playbook) error {
	fmt.Fprintf(out, "Playbook: %s (#%d)\n", p.Name, p.ID)
	fmt.Fprintf(out, "File: %s (%s)\n", p.Filename, p.Type)
	if p.Description != "" {
		fmt.Fprintf(out, "Description: %s\n", p.Description)
	}
	fmt.Fprintf(out, "SHA-256: %s\n", p.SHA256Hash)
	fmt.Fprintf(out, "Status: %s\n", p.Status)

	if len(p.Sections) == 0 {
		return nil
	}
	fmt.Fprintf(out, "\nSections (%d):\n\n", len(p.Sections))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")
	for _, s := range p.Sections {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Name, s.Description)
	}
	return w.Flush()
}

func FormatValidation(out io.Writer, r *models.ValidationResult) error {
	fmt.Fprintf(out, "Valid: %t\n", r.Valid)
	fmt.Fprintf(out, "Syntax: %s\n", passFail(r.SyntaxValid))
	if r.SyntaxError != "" {
		fmt.Fprintf(out, "  %s\n", r.SyntaxError)
	}
	fmt.Fprintf(out, "Structure: %s\n", passFail(r.StructureValid))
	for _, issue := range r.StructureIssues {
		fmt.Fprintf(out, "  - %s\n", issue)
	}
	fmt.Fprintf(out, "Security: %s\n", passFail(r.SecurityValid))
	for _, v := range r.SecurityViolations {
		fmt.Fprintf(out, "  - %s\n", v)
	}
	return nil
}

func FormatExecution(out io.Writer, e *models.Execution) error {
	fmt.Fprintf(out, "Execution: %s\n", e.ID)
	fmt.Fprintf(out, "Playbook: %s (#%d)\n", e.PlaybookName, e.PlaybookID)
	fmt.Fprintf(out, "Status: %s\n", e.Status)
	if e.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", e.Error)
	}
	if len(e.SectionIDs) > 0 {
		fmt.Fprintf(out, "Sections: %s\n", strings.Join(e.SectionIDs, ", "))
	}
	fmt.Fprintf(out, "Hosts: %d total, %d succeeded, %d failed\n", e.TotalHosts, e.SucceededHosts, e.FailedHosts)
	if len(e.Results) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(e.Results))
	for id := range e.Results {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HOST\tIP\tRESULT\tCODE\tLAST LINE")
	for _, id := range ids {
		r := e.Results[id]
		result := passFail(r.Success)
		if r.Cancelled {
			result = "cancelled"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.Hostname, r.IP, result, r.ReturnCode, lastLine(r.Output))
	}
	return w.Flush()
}

func FormatExecutionsTable(out io.Writer, execs []models.Execution) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPLAYBOOK\tSTATUS\tHOSTS\tOK\tFAILED\tSTARTED")
	for _, e := range execs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			e.ID, e.PlaybookName, e.Status, e.TotalHosts, e.SucceededHosts, e.FailedHosts, formatTime(e.StartedAt))
	}
	return w.Flush()
}

func FormatRowsTable(out io.Writer, set *models.AuditResultSet) error {
	detail := detailColumns(set)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := append([]string{"CHECK", "VERDICT"}, upper(detail)...)
	fmt.Fprintln(w, strings.Join(header, "\t"))
	for _, r := range set.Rows {
		cells := []string{r.CheckName, string(r.Verdict)}
		for _, col := range detail {
			cells = append(cells, r.Details[col])
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	return w.Flush()
}

func FormatSummary(out io.Writer, s *models.AuditSummary) error {
	fmt.Fprintf(out, "GOOD: %d\nBAD: %d\nN/A: %d\nTotal: %d\n", s.Good, s.Bad, s.NA, s.Total)
	return nil
}

// detailColumns returns the report columns, in report order, that carry
// per-row details.
func detailColumns(set *models.AuditResultSet) []string {
	var cols []string
	for _, c := range set.Columns {
		for _, r := range set.Rows {
			if _, ok := r.Details[c]; ok {
				cols = append(cols, c)
				break
			}
		}
	}
	return cols
}

func upper(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToUpper(s)
	}
	return out
}

func passFail(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if len(s) > 60 {
		s = s[:57] + "..."
	}
	return s
}

func getString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func formatNumber(v interface{}) string {
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("%d", int64(f))
	}
	return "0"
}

func formatFloat(v interface{}) string {
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("%.1f", f)
	}
	return "0.0"
}

func formatBytes(v interface{}) string {
	bytes, ok := v.(float64)
	if !ok {
		return "0 B"
	}

	units := []string{"B", "KB", "MB", "GB", "TB"}
	i := 0
	for bytes >= 1024 && i < len(units)-1 {
		bytes /= 1024
		i++
	}
	return fmt.Sprintf("%.1f %s", bytes, units[i])
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatUptime(v interface{}) string {
	f, ok := v.(float64)
	if !ok {
		return "0m"
	}
	seconds := int64(f)

	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
