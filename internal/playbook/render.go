package playbook

import (
	"fmt"
	"sort"
	"strings"

	"github.com/metorial/auditor/internal/models"
	"gopkg.in/yaml.v3"
)

const shebang = "#!/bin/bash"

// Select returns the playbook content restricted to the given sections, in
// the playbook's own format. No section ids means the full content.
func Select(p *models.Playbook, sectionIDs []string) (string, error) {
	if len(sectionIDs) == 0 {
		return p.Content, nil
	}
	for _, id := range sectionIDs {
		if !p.HasSection(id) {
			return "", models.Validationf("unknown section %q for playbook %d", id, p.ID)
		}
	}

	switch p.Type {
	case models.PlaybookShell:
		return selectShell(p, sectionIDs), nil
	case models.PlaybookAnsible:
		return selectYAML(p, sectionIDs)
	}
	return p.Content, nil
}

func selectShell(p *models.Playbook, sectionIDs []string) string {
	want := make(map[string]bool, len(sectionIDs))
	for _, id := range sectionIDs {
		want[id] = true
	}

	parts := []string{shebang, ""}
	for _, s := range p.Sections {
		if !want[s.ID] {
			continue
		}
		parts = append(parts, "# === "+s.Name+" ===", s.Content, s.Name, "")
	}
	return strings.Join(parts, "\n")
}

func selectYAML(p *models.Playbook, sectionIDs []string) (string, error) {
	plays, err := decodePlays(p.Content)
	if err != nil {
		return "", models.Validationf("invalid YAML playbook: %v", err)
	}

	tags := map[string]bool{}
	for _, s := range p.Sections {
		for _, id := range sectionIDs {
			if s.ID == id {
				tags[s.Name] = true
			}
		}
	}

	out, err := yaml.Marshal(filterPlays(plays, tags))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Render produces the bash script the runners execute.
func Render(p *models.Playbook, sectionIDs []string) (string, error) {
	content, err := Select(p, sectionIDs)
	if err != nil {
		return "", err
	}

	switch p.Type {
	case models.PlaybookShell:
		return stripResultSetup(content), nil
	case models.PlaybookAnsible:
		return translateYAML(content)
	case models.PlaybookPython:
		return fmt.Sprintf("%s\npython3 - <<'AUDITOR_PY'\n%s\nAUDITOR_PY\n", shebang, strings.TrimRight(content, "\n")), nil
	}
	return "", models.Validationf("unsupported playbook type %q", p.Type)
}

// stripResultSetup drops the shebang and any local result file setup; the
// runner provides $resultfile and writes its header.
func stripResultSetup(content string) string {
	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines)+1)
	out = append(out, shebang)
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "#!"):
			continue
		case strings.HasPrefix(trimmed, "resultfile=") || strings.HasPrefix(trimmed, "export resultfile="):
			continue
		case trimmed == `echo "항목코드,결과" > "$resultfile"` || trimmed == `echo "항목코드,결과" > $resultfile`:
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// translateYAML converts the command-style tasks of a playbook into a bash
// script. Other modules and any keyword the script cannot honour, such as
// when or loop, are rejected.
func translateYAML(content string) (string, error) {
	plays, err := decodePlays(content)
	if err != nil {
		return "", models.Validationf("invalid YAML playbook: %v", err)
	}

	var b strings.Builder
	b.WriteString(shebang + "\n")
	for _, p := range plays {
		if k := firstUnsupported(p.Extra, playKeys); k != "" {
			return "", models.Validationf("play %q: keyword %s is not supported", p.Name, k)
		}
		if p.Name != "" {
			fmt.Fprintf(&b, "echo %s\n", quote("PLAY ["+p.Name+"]"))
		}
		for i, t := range p.Tasks {
			cmd, err := taskCommand(t)
			if err != nil {
				return "", models.Validationf("task %d of play %q: %v", i+1, p.Name, err)
			}
			name := t.name()
			if name == "" {
				name = fmt.Sprintf("task %d", i+1)
			}
			fmt.Fprintf(&b, "echo %s\n%s\n", quote("TASK ["+name+"]"), cmd)
		}
	}
	return b.String(), nil
}

var commandModules = []string{
	"shell", "command", "raw",
	"ansible.builtin.shell", "ansible.builtin.command", "ansible.builtin.raw",
}

var debugModules = []string{"debug", "ansible.builtin.debug"}

// taskKeys are the only non-module task keys the translation preserves.
var taskKeys = map[string]bool{"name": true, "tags": true}

// playKeys are the play keys besides name, hosts and tasks that do not
// change what the tasks run.
var playKeys = map[string]bool{"gather_facts": true, "tags": true}

func taskCommand(t task) (string, error) {
	module, cmd, err := moduleCommand(t)
	if err != nil {
		return "", err
	}
	for _, k := range sortedKeys(t) {
		if k == module || taskKeys[k] {
			continue
		}
		return "", fmt.Errorf("keyword %s is not supported", k)
	}
	return cmd, nil
}

func moduleCommand(t task) (string, string, error) {
	for _, m := range commandModules {
		v, ok := t[m]
		if !ok {
			continue
		}
		if arg, ok := v.(string); ok {
			return m, arg, nil
		}
		if args, ok := asMap(v); ok {
			if cmd, ok := args["cmd"].(string); ok && len(args) == 1 {
				return m, cmd, nil
			}
		}
		return m, "", fmt.Errorf("module %s needs a command string", m)
	}

	for _, m := range debugModules {
		v, ok := t[m]
		if !ok {
			continue
		}
		if args, ok := asMap(v); ok {
			if msg, ok := args["msg"]; ok && len(args) == 1 {
				return m, "echo " + quote(fmt.Sprint(msg)), nil
			}
		}
		return m, "", fmt.Errorf("module %s needs msg", m)
	}

	var modules []string
	for _, k := range sortedKeys(t) {
		if !taskKeys[k] && !taskKeywords[k] && !strings.HasPrefix(k, "with_") {
			modules = append(modules, k)
		}
	}
	if len(modules) == 0 {
		return "", "", fmt.Errorf("no module to run")
	}
	return "", "", fmt.Errorf("module %s is not supported", modules[0])
}

// taskKeywords are Ansible task keywords, as opposed to module names.
var taskKeywords = map[string]bool{
	"when": true, "loop": true, "loop_control": true, "register": true,
	"become": true, "become_user": true, "become_method": true,
	"ignore_errors": true, "changed_when": true, "failed_when": true,
	"until": true, "retries": true, "delay": true, "notify": true,
	"delegate_to": true, "vars": true, "environment": true, "args": true,
	"no_log": true, "check_mode": true, "run_once": true,
}

func firstUnsupported(m map[string]interface{}, allowed map[string]bool) string {
	for _, k := range sortedKeys(m) {
		if !allowed[k] {
			return k
		}
	}
	return ""
}

func sortedKeys[M ~map[string]interface{}](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// quote wraps s in single quotes for bash.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
