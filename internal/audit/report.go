package audit

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/metorial/auditor/internal/models"
)

const (
	checkColumn   = "항목코드"
	verdictColumn = "결과"
)

var (
	utf8BOM       = []byte{0xEF, 0xBB, 0xBF}
	verdictNames  = map[string]bool{verdictColumn: true, "result": true, "verdict": true}
	textResultRow = regexp.MustCompile(`※\s*(U-\d+)\s*결과\s*:\s*(.+)`)
)

// ParseReport reads an audit CSV. The first record is the header; the check
// name is the first column and the verdict is the column named 결과, result
// or verdict, falling back to the second column.
func ParseReport(data []byte) ([]string, []models.AuditRow, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, models.Validationf("audit report is empty")
	}
	if err != nil {
		return nil, nil, models.Validationf("malformed audit report: %v", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) < 2 {
		return nil, nil, models.Validationf("audit report header needs a check and a verdict column")
	}

	verdictIdx := 1
	for i, name := range header {
		if i > 0 && verdictNames[strings.ToLower(name)] {
			verdictIdx = i
			break
		}
	}

	var rows []models.AuditRow
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, models.Validationf("malformed audit report: %v", err)
		}

		check := strings.TrimSpace(record[0])
		if check == "" {
			continue
		}
		row := models.AuditRow{CheckName: check, Verdict: models.VerdictNA}
		if verdictIdx < len(record) {
			row.Verdict = models.ParseVerdict(record[verdictIdx])
		}
		for i := 1; i < len(header) && i < len(record); i++ {
			if i == verdictIdx {
				continue
			}
			if row.Details == nil {
				row.Details = map[string]string{}
			}
			row.Details[header[i]] = strings.TrimSpace(record[i])
		}
		rows = append(rows, row)
	}

	return header, rows, nil
}

// ParseText extracts "※ U-01 결과 : GOOD" lines from plain script output.
// A repeated check keeps its last verdict in first-seen position.
func ParseText(output string) []models.AuditRow {
	index := map[string]int{}
	var rows []models.AuditRow
	for _, line := range strings.Split(output, "\n") {
		m := textResultRow.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		verdict := models.ParseVerdict(m[2])
		if i, ok := index[m[1]]; ok {
			rows[i].Verdict = verdict
			continue
		}
		index[m[1]] = len(rows)
		rows = append(rows, models.AuditRow{CheckName: m[1], Verdict: verdict})
	}
	return rows
}

// detailColumns are the header columns other than check and verdict.
func detailColumns(set *models.AuditResultSet) []string {
	var cols []string
	for i, c := range set.Columns {
		if i == 0 || verdictNames[strings.ToLower(c)] {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

// EncodeCSV writes a result set with the canonical 항목코드,결과 header
// followed by any detail columns.
func EncodeCSV(set *models.AuditResultSet) ([]byte, error) {
	details := detailColumns(set)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(append([]string{checkColumn, verdictColumn}, details...)); err != nil {
		return nil, err
	}
	for _, row := range set.Rows {
		record := []string{row.CheckName, string(row.Verdict)}
		for _, c := range details {
			record = append(record, row.Details[c])
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// Filename is the download name of a result set.
func Filename(set *models.AuditResultSet) string {
	return fmt.Sprintf("Results_%d_%s_%d.csv", set.HostID, set.Username, set.CreatedAt.Unix())
}
