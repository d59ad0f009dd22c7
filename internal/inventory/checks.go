package inventory

import (
	"bufio"
	"embed"
	"strings"
)

//go:embed checks/*.sh
var checkScripts embed.FS

const osReleaseCommand = "cat /etc/os-release"

// checkScript picks the default check script for an OS description.
func checkScript(osName string) string {
	name := "checks/generic.sh"
	lower := strings.ToLower(osName)
	switch {
	case strings.Contains(lower, "ubuntu"), strings.Contains(lower, "debian"):
		name = "checks/ubuntu.sh"
	case strings.Contains(lower, "centos"), strings.Contains(lower, "red hat"),
		strings.Contains(lower, "rocky"), strings.Contains(lower, "alma"):
		name = "checks/centos.sh"
	}
	data, err := checkScripts.ReadFile(name)
	if err != nil {
		panic("inventory: missing embedded check script " + name)
	}
	return string(data)
}

// parseOSRelease returns PRETTY_NAME, or NAME VERSION_ID when it is absent.
func parseOSRelease(content string) string {
	values := map[string]string{}
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		values[key] = strings.Trim(value, `"'`)
	}
	if v := values["PRETTY_NAME"]; v != "" {
		return v
	}
	return strings.TrimSpace(values["NAME"] + " " + values["VERSION_ID"])
}
