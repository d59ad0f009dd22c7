package playbook

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/metorial/auditor/internal/models"
	"gopkg.in/yaml.v3"
)

var shellFunc = regexp.MustCompile(`^(u_\d+)\s*\(\)\s*\{`)

// ParseSections extracts the selectable sections of a playbook. Input the
// parser cannot split unambiguously yields no sections.
func ParseSections(kind models.PlaybookType, content string) []models.Section {
	switch kind {
	case models.PlaybookShell:
		return parseShell(content)
	case models.PlaybookAnsible:
		return parseYAML(content)
	}
	return nil
}

type shellFunction struct {
	name      string
	lines     []string
	lineStart int
	lineEnd   int
}

// splitShell separates top-level u_NN functions from the rest of the
// script. ok is false when braces do not balance or a function name repeats.
func splitShell(content string) (funcs []shellFunction, preamble []string, ok bool) {
	seen := map[string]bool{}
	var current *shellFunction
	depth := 0

	for i, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if current == nil {
			if m := shellFunc.FindStringSubmatch(trimmed); m != nil && depth == 0 {
				if seen[m[1]] {
					return nil, nil, false
				}
				seen[m[1]] = true
				current = &shellFunction{name: m[1], lineStart: i + 1}
			} else {
				depth += braceDelta(trimmed)
				if depth < 0 {
					return nil, nil, false
				}
				preamble = append(preamble, line)
				continue
			}
		}

		current.lines = append(current.lines, line)
		depth += braceDelta(trimmed)
		if depth < 0 {
			return nil, nil, false
		}
		if depth == 0 {
			current.lineEnd = i + 1
			funcs = append(funcs, *current)
			current = nil
		}
	}

	if current != nil || depth != 0 {
		return nil, nil, false
	}
	return funcs, preamble, true
}

// braceDelta counts braces outside of comment lines.
func braceDelta(trimmed string) int {
	if strings.HasPrefix(trimmed, "#") {
		return 0
	}
	return strings.Count(trimmed, "{") - strings.Count(trimmed, "}")
}

func parseShell(content string) []models.Section {
	funcs, _, ok := splitShell(content)
	if !ok {
		return nil
	}

	sections := make([]models.Section, 0, len(funcs))
	for i, f := range funcs {
		sections = append(sections, models.Section{
			ID:          sectionID(i),
			Name:        f.name,
			Description: fmt.Sprintf("%s check", strings.ToUpper(f.name)),
			Content:     strings.TrimSpace(strings.Join(f.lines, "\n")),
			LineStart:   f.lineStart,
			LineEnd:     f.lineEnd,
		})
	}
	return sections
}

// play is the subset of an Ansible play the engine understands. Unknown
// keys are preserved so a filtered play re-encodes faithfully.
type play struct {
	Name  string                 `yaml:"name,omitempty"`
	Hosts interface{}            `yaml:"hosts,omitempty"`
	Tasks []task                 `yaml:"tasks"`
	Extra map[string]interface{} `yaml:",inline"`
}

type task map[string]interface{}

// asMap accepts the mapping shapes yaml.v3 produces. Mappings nested in a
// task decode as task rather than map[string]interface{}.
func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case task:
		return m, true
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

func (t task) name() string {
	if s, ok := t["name"].(string); ok {
		return s
	}
	return ""
}

// tags returns the task's tags. Both the scalar and list forms are accepted.
func (t task) tags() []string {
	switch v := t["tags"].(type) {
	case string:
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, s := range v {
			out = append(out, fmt.Sprint(s))
		}
		return out
	}
	return nil
}

func (t task) hasAnyTag(tags map[string]bool) bool {
	for _, tag := range t.tags() {
		if tags[tag] {
			return true
		}
	}
	return false
}

func decodePlays(content string) ([]play, error) {
	var plays []play
	if err := yaml.Unmarshal([]byte(content), &plays); err != nil {
		// A single mapping is a one-play document.
		var single play
		if errSingle := yaml.Unmarshal([]byte(content), &single); errSingle != nil {
			return nil, err
		}
		plays = []play{single}
	}
	return plays, nil
}

func parseYAML(content string) []models.Section {
	plays, err := decodePlays(content)
	if err != nil {
		return nil
	}

	var order []string
	seen := map[string]bool{}
	for _, p := range plays {
		for _, t := range p.Tasks {
			for _, tag := range t.tags() {
				if !seen[tag] {
					seen[tag] = true
					order = append(order, tag)
				}
			}
		}
	}

	sections := make([]models.Section, 0, len(order))
	for i, tag := range order {
		filtered := filterPlays(plays, map[string]bool{tag: true})
		out, err := yaml.Marshal(filtered)
		if err != nil {
			return nil
		}
		sections = append(sections, models.Section{
			ID:          sectionID(i),
			Name:        tag,
			Description: fmt.Sprintf("tasks tagged %s", tag),
			Content:     strings.TrimSpace(string(out)),
		})
	}
	return sections
}

// filterPlays keeps the tasks carrying any of the given tags and drops plays
// left without tasks.
func filterPlays(plays []play, tags map[string]bool) []play {
	var out []play
	for _, p := range plays {
		var kept []task
		for _, t := range p.Tasks {
			if t.hasAnyTag(tags) {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			continue
		}
		p.Tasks = kept
		out = append(out, p)
	}
	return out
}

func countYAMLTasks(content string) int {
	plays, err := decodePlays(content)
	if err != nil {
		return 0
	}
	n := 0
	for _, p := range plays {
		n += len(p.Tasks)
	}
	return n
}

func sectionID(i int) string {
	return fmt.Sprintf("section_%d", i+1)
}
