// Package validator checks Ansible-style YAML playbooks for syntax, shape
// and deny-listed constructs. It holds no state and is safe for concurrent use.
package validator

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/metorial/auditor/internal/models"
	"gopkg.in/yaml.v3"
)

type rule struct {
	pattern string
	re      *regexp.Regexp
}

func compile(flags string, patterns ...string) []rule {
	rules := make([]rule, 0, len(patterns))
	for _, p := range patterns {
		rules = append(rules, rule{pattern: p, re: regexp.MustCompile(flags + p)})
	}
	return rules
}

var (
	dangerousCommands = compile("(?i)",
		`rm\s+-rf\s+/`,
		`dd\s+if=/dev/zero`,
		`mkfs\.`,
		`fdisk`,
		`format`,
		`del\s+/[qsf]`,
		`shutdown`,
		`reboot`,
		`halt`,
		`init\s+0`,
		`init\s+6`,
		`systemctl\s+poweroff`,
		`systemctl\s+reboot`,
		`curl.*\|\s*sh`,
		`wget.*\|\s*sh`,
		`nc\s+-[el]`,
		`netcat\s+-[el]`,
		`/bin/sh`,
		`/bin/bash`,
		`exec\s+`,
		`eval\s+`,
		`system\s*\(`,
		`os\.system`,
		`subprocess\.call`,
		`subprocess\.run`,
		`subprocess\.Popen`,
	)

	dangerousPaths = compile("(?im)",
		`/etc/passwd`,
		`/etc/shadow`,
		`/etc/sudoers`,
		`/boot`,
		`/sys`,
		`/proc`,
		`/dev`,
		`\.ssh/`,
		`authorized_keys`,
		`id_rsa`,
		`id_dsa`,
		`\.key$`,
		`\.pem$`,
	)

	suspiciousProtocols = compile("(?i)",
		`ftp://`,
		`http://.*download`,
		`tftp://`,
		`telnet://`,
	)

	dangerousModules = map[string]bool{
		"shell":     true,
		"raw":       true,
		"script":    true,
		"win_shell": true,
	}

	becomeEnabled  = regexp.MustCompile(`(?i)become:\s*true`)
	becomeMethod   = regexp.MustCompile(`(?i)become_method:\s*(sudo|su)`)
	shellInjection = regexp.MustCompile(`\{\{.*\|.*shell.*\}\}`)
	taskMetaKeys   = map[string]bool{"name": true, "when": true, "tags": true, "become": true, "register": true, "with_items": true, "loop": true}
)

// Validate runs the syntax, structure and security checks over content.
// A syntax failure short-circuits the other two checks to false.
func Validate(content string) models.ValidationResult {
	result := models.ValidationResult{
		StructureIssues:    []string{},
		SecurityViolations: []string{},
	}

	var doc interface{}
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		result.SyntaxError = err.Error()
		return result
	}
	if doc == nil {
		result.SyntaxError = "empty YAML document"
		return result
	}
	result.SyntaxValid = true

	result.StructureIssues = checkStructure(doc)
	result.StructureValid = len(result.StructureIssues) == 0

	result.SecurityViolations = checkSecurity(content, doc)
	result.SecurityValid = len(result.SecurityViolations) == 0

	result.Valid = result.SyntaxValid && result.StructureValid && result.SecurityValid
	return result
}

func checkStructure(doc interface{}) []string {
	issues := []string{}

	plays, ok := doc.([]interface{})
	if !ok {
		// A single mapping is accepted as a one-play document.
		plays = []interface{}{doc}
	}

	for i, p := range plays {
		n := i + 1
		play, ok := asMap(p)
		if !ok {
			issues = append(issues, fmt.Sprintf("play %d: must be a mapping", n))
			continue
		}

		hosts, hasHosts := play["hosts"]
		if !hasHosts {
			issues = append(issues, fmt.Sprintf("play %d: missing required field 'hosts'", n))
		} else {
			switch hosts.(type) {
			case string, []interface{}:
			default:
				issues = append(issues, fmt.Sprintf("play %d: 'hosts' must be a string or a list", n))
			}
		}

		tasks, hasTasks := play["tasks"]
		if !hasTasks {
			issues = append(issues, fmt.Sprintf("play %d: missing required field 'tasks'", n))
			continue
		}
		issues = append(issues, checkTasks(tasks, n)...)
	}
	return issues
}

func checkTasks(raw interface{}, play int) []string {
	tasks, ok := raw.([]interface{})
	if !ok {
		return []string{fmt.Sprintf("play %d: 'tasks' must be a list", play)}
	}

	var issues []string
	for i, t := range tasks {
		task, ok := asMap(t)
		if !ok {
			issues = append(issues, fmt.Sprintf("play %d, task %d: must be a mapping", play, i+1))
			continue
		}
		if _, ok := task["name"]; !ok {
			issues = append(issues, fmt.Sprintf("play %d, task %d: missing required field 'name'", play, i+1))
		}
		if len(moduleKeys(task)) == 0 {
			issues = append(issues, fmt.Sprintf("play %d, task %d: no module to run", play, i+1))
		}
	}
	return issues
}

func checkSecurity(content string, doc interface{}) []string {
	violations := []string{}

	for _, r := range dangerousCommands {
		if r.re.MatchString(content) {
			violations = append(violations, "dangerous command pattern: "+r.pattern)
		}
	}
	for _, r := range dangerousPaths {
		if r.re.MatchString(content) {
			violations = append(violations, "dangerous path access: "+r.pattern)
		}
	}
	for _, r := range suspiciousProtocols {
		if r.re.MatchString(content) {
			violations = append(violations, "suspicious protocol: "+r.pattern)
		}
	}

	walkModules(doc, "", &violations)

	if becomeEnabled.MatchString(content) && !becomeMethod.MatchString(content) {
		violations = append(violations, "privilege escalation enabled without become_method sudo or su")
	}
	if shellInjection.MatchString(content) {
		violations = append(violations, "template expression pipes into a shell filter")
	}
	return violations
}

func walkModules(node interface{}, path string, violations *[]string) {
	if m, ok := asMap(node); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			current := k
			if path != "" {
				current = path + "." + k
			}
			if dangerousModules[k] {
				*violations = append(*violations, fmt.Sprintf("dangerous module: %s (at %s)", k, current))
			}
			walkModules(m[k], current, violations)
		}
		return
	}
	if list, ok := node.([]interface{}); ok {
		for i, item := range list {
			walkModules(item, fmt.Sprintf("%s[%d]", path, i), violations)
		}
	}
}

// moduleKeys returns the task keys that name a module rather than task metadata.
func moduleKeys(task map[string]interface{}) []string {
	var keys []string
	for k := range task {
		if !taskMetaKeys[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// asMap normalizes the two mapping shapes yaml.v3 can produce.
func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

