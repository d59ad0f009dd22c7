package playbook

import (
	"testing"

	"github.com/metorial/auditor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const threeChecks = `#!/bin/bash
resultfile=/tmp/out.csv

u_01() {
  echo "marker-one"
  if [ -f /etc/passwd ]; then
    echo "U-01,GOOD" >> "$resultfile"
  fi
}

u_02() {
  echo "marker-two"
  echo "U-02,BAD" >> "$resultfile"
}

u_03() { echo "marker-three"; }

u_01
u_02
u_03
`

func TestParseShellSections(t *testing.T) {
	sections := ParseSections(models.PlaybookShell, threeChecks)
	require.Len(t, sections, 3)

	assert.Equal(t, "section_1", sections[0].ID)
	assert.Equal(t, "u_01", sections[0].Name)
	assert.Equal(t, 4, sections[0].LineStart)
	assert.Equal(t, 9, sections[0].LineEnd)
	assert.Contains(t, sections[0].Content, "marker-one")
	assert.NotContains(t, sections[0].Content, "marker-two")

	assert.Equal(t, "section_2", sections[1].ID)
	assert.Equal(t, "u_02", sections[1].Name)

	assert.Equal(t, "u_03() { echo \"marker-three\"; }", sections[2].Content)
	assert.Equal(t, sections[2].LineStart, sections[2].LineEnd)
}

func TestParseShellFailsClosed(t *testing.T) {
	tests := map[string]string{
		"unbalanced":   "u_01() {\n  echo one\n",
		"extra close":  "u_01() {\n  echo one\n}\n}\n",
		"duplicate":    "u_01() {\n  true\n}\nu_01() {\n  false\n}\n",
		"no functions": "echo plain script\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Empty(t, ParseSections(models.PlaybookShell, content))
		})
	}
}

func TestParseShellIgnoresCommentBraces(t *testing.T) {
	content := "u_01() {\n  # closing } in a comment\n  echo ok\n}\n"
	sections := ParseSections(models.PlaybookShell, content)
	require.Len(t, sections, 1)
	assert.Equal(t, 4, sections[0].LineEnd)
}

const taggedPlaybook = `
- name: baseline
  hosts: all
  tasks:
    - name: first
      command: echo s1-marker
      tags: [s1]
    - name: second
      command: echo s2-marker
      tags: s2
    - name: second again
      debug:
        msg: s2-debug
      tags: [s2]
    - name: third
      command: echo s3-marker
      tags: [s3]
    - name: untagged
      command: echo always
`

func TestParseYAMLSections(t *testing.T) {
	sections := ParseSections(models.PlaybookAnsible, taggedPlaybook)
	require.Len(t, sections, 3)

	assert.Equal(t, []string{"s1", "s2", "s3"}, []string{sections[0].Name, sections[1].Name, sections[2].Name})
	assert.Equal(t, "section_2", sections[1].ID)
	assert.Contains(t, sections[1].Content, "s2-marker")
	assert.Contains(t, sections[1].Content, "s2-debug")
	assert.NotContains(t, sections[1].Content, "s1-marker")
	assert.NotContains(t, sections[1].Content, "always")
}

func TestParseYAMLInvalid(t *testing.T) {
	assert.Empty(t, ParseSections(models.PlaybookAnsible, "- hosts: [all\n"))
	assert.Empty(t, ParseSections(models.PlaybookPython, "print('hi')\n"))
}

func TestCountYAMLTasks(t *testing.T) {
	assert.Equal(t, 5, countYAMLTasks(taggedPlaybook))
	assert.Equal(t, 1, countYAMLTasks("hosts: all\ntasks:\n  - name: a\n    ping:\n"))
}
