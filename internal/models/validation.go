package models

type ValidationResult struct {
	Valid              bool     `json:"valid"`
	SyntaxValid        bool     `json:"syntax_valid"`
	StructureValid     bool     `json:"structure_valid"`
	SecurityValid      bool     `json:"security_valid"`
	SyntaxError        string   `json:"syntax_error"`
	StructureIssues    []string `json:"structure_issues"`
	SecurityViolations []string `json:"security_violations"`
}
