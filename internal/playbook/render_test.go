package playbook

import (
	"errors"
	"strings"
	"testing"

	"github.com/metorial/auditor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shellPlaybook() *models.Playbook {
	return &models.Playbook{
		ID:       1,
		Type:     models.PlaybookShell,
		Content:  threeChecks,
		Sections: ParseSections(models.PlaybookShell, threeChecks),
	}
}

func TestSelectShellSections(t *testing.T) {
	out, err := Select(shellPlaybook(), []string{"section_2"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "#!/bin/bash\n"))
	assert.Contains(t, out, "marker-two")
	assert.Contains(t, out, "\nu_02\n")
	assert.NotContains(t, out, "marker-one")
	assert.NotContains(t, out, "marker-three")
}

func TestSelectUnknownSection(t *testing.T) {
	_, err := Select(shellPlaybook(), []string{"section_9"})
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestRenderShellStripsResultSetup(t *testing.T) {
	out, err := Render(shellPlaybook(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(out, "#!/bin/bash"))
	assert.NotContains(t, out, "resultfile=/tmp/out.csv")
	assert.Contains(t, out, `echo "U-02,BAD" >> "$resultfile"`)
}

func TestRenderYAMLSection(t *testing.T) {
	p := &models.Playbook{
		ID:       2,
		Type:     models.PlaybookAnsible,
		Content:  taggedPlaybook,
		Sections: ParseSections(models.PlaybookAnsible, taggedPlaybook),
	}

	out, err := Render(p, []string{"section_2"})
	require.NoError(t, err)

	assert.Contains(t, out, "echo 'TASK [second]'\necho s2-marker\n")
	assert.Contains(t, out, "echo 's2-debug'")
	assert.NotContains(t, out, "s1-marker")
	assert.NotContains(t, out, "s3-marker")
	assert.NotContains(t, out, "always")

	full, err := Render(p, nil)
	require.NoError(t, err)
	assert.Contains(t, full, "echo always")
}

func TestRenderYAMLUnsupportedModule(t *testing.T) {
	p := &models.Playbook{
		Type:    models.PlaybookAnsible,
		Content: "- hosts: all\n  tasks:\n    - name: pkg\n      apt:\n        name: nginx\n",
	}
	_, err := Render(p, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrValidation))
	assert.Contains(t, err.Error(), "module apt is not supported")
}

func TestRenderYAMLMappingArguments(t *testing.T) {
	p := &models.Playbook{
		Type:    models.PlaybookAnsible,
		Content: "- hosts: all\n  tasks:\n    - debug:\n        msg: hello\n    - command:\n        cmd: echo hi\n",
	}
	out, err := Render(p, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "echo 'TASK [task 1]'\necho 'hello'\n")
	assert.Contains(t, out, "echo 'TASK [task 2]'\necho hi\n")
}

func TestRenderYAMLRejectsUnhonouredKeywords(t *testing.T) {
	tests := []struct {
		name    string
		extra   string
		keyword string
	}{
		{"when", "      when: ansible_os_family == \"RedHat\"\n", "when"},
		{"loop", "      loop: [a, b, c]\n", "loop"},
		{"with_items", "      with_items: [a, b]\n", "with_items"},
		{"become", "      become: true\n", "become"},
		{"register", "      register: out\n", "register"},
		{"ignore_errors", "      ignore_errors: true\n", "ignore_errors"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &models.Playbook{
				Type:    models.PlaybookAnsible,
				Content: "- hosts: all\n  tasks:\n    - name: gated\n      shell: echo ITEM\n" + tt.extra,
			}
			out, err := Render(p, nil)
			require.Error(t, err)
			assert.Empty(t, out)
			assert.True(t, errors.Is(err, models.ErrValidation))
			assert.Contains(t, err.Error(), "keyword "+tt.keyword+" is not supported")
		})
	}
}

func TestRenderYAMLRejectsPlayKeywords(t *testing.T) {
	for _, kw := range []string{"when: false", "become: true", "vars: {a: 1}", "roles: [common]"} {
		p := &models.Playbook{
			Type:    models.PlaybookAnsible,
			Content: "- hosts: all\n  " + kw + "\n  tasks:\n    - shell: echo hi\n",
		}
		_, err := Render(p, nil)
		require.Error(t, err, kw)
		assert.True(t, errors.Is(err, models.ErrValidation), kw)
		assert.Contains(t, err.Error(), "is not supported", kw)
	}

	p := &models.Playbook{
		Type:    models.PlaybookAnsible,
		Content: "- hosts: all\n  gather_facts: false\n  tasks:\n    - shell: echo hi\n",
	}
	_, err := Render(p, nil)
	assert.NoError(t, err)
}

func TestRenderYAMLCommandWithExtraArguments(t *testing.T) {
	p := &models.Playbook{
		Type:    models.PlaybookAnsible,
		Content: "- hosts: all\n  tasks:\n    - command:\n        cmd: ls\n        chdir: /tmp\n",
	}
	_, err := Render(p, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "module command needs a command string")
}

func TestRenderPython(t *testing.T) {
	p := &models.Playbook{Type: models.PlaybookPython, Content: "print('hi')\n"}
	out, err := Render(p, nil)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/bash\npython3 - <<'AUDITOR_PY'\nprint('hi')\nAUDITOR_PY\n", out)
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `'it'\''s'`, quote("it's"))
}
