// Package playbook stores audit playbooks and turns them into runnable
// scripts, optionally restricted to a subset of their sections.
package playbook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"time"

	"github.com/metorial/auditor/internal/models"
	"github.com/metorial/auditor/internal/store"
	"github.com/metorial/auditor/internal/validator"
	"go.uber.org/zap"
)

var extensionTypes = map[string]models.PlaybookType{
	".sh":   models.PlaybookShell,
	".yml":  models.PlaybookAnsible,
	".yaml": models.PlaybookAnsible,
	".py":   models.PlaybookPython,
}

type Service struct {
	db     *store.DB
	logger *zap.Logger
}

func NewService(db *store.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// Create stores a new playbook. Existing playbooks are never modified; an
// edit is a delete followed by a create.
func (s *Service) Create(ctx context.Context, name, description, filename string, content []byte) (*models.Playbook, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.Validationf("name is required")
	}
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || len(content) == 0 {
		return nil, models.Validationf("a non-empty playbook file is required")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	kind, ok := extensionTypes[ext]
	if !ok {
		return nil, models.Validationf("unsupported file type %s: allowed .yml, .yaml, .sh, .py", filename)
	}

	text := string(content)
	if kind == models.PlaybookShell {
		text = strings.ReplaceAll(text, "\r\n", "\n")
	}
	if kind == models.PlaybookAnsible {
		if result := validator.Validate(text); !result.SyntaxValid {
			return nil, models.Validationf("invalid YAML playbook: %s", result.SyntaxError)
		}
	}

	sections := ParseSections(kind, text)
	hash := sha256.Sum256([]byte(text))

	p := &models.Playbook{
		Name:        name,
		Description: strings.TrimSpace(description),
		Filename:    filename,
		Type:        kind,
		Content:     text,
		Sections:    sections,
		TaskCount:   taskCount(kind, text, sections),
		SHA256Hash:  hex.EncodeToString(hash[:]),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.db.CreatePlaybook(ctx, p); err != nil {
		return nil, models.Infrastructuref("failed to store playbook: %v", err)
	}

	s.logger.Info("playbook created",
		zap.Int64("playbook_id", p.ID),
		zap.String("name", p.Name),
		zap.String("type", string(p.Type)),
		zap.Int("sections", len(p.Sections)))
	return p, nil
}

func taskCount(kind models.PlaybookType, content string, sections []models.Section) int {
	switch kind {
	case models.PlaybookShell:
		if len(sections) > 0 {
			return len(sections)
		}
	case models.PlaybookAnsible:
		return countYAMLTasks(content)
	}
	return 1
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Playbook, error) {
	return s.db.GetPlaybook(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]models.Playbook, error) {
	return s.db.GetAllPlaybooks(ctx)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.db.DeletePlaybook(ctx, id); err != nil {
		return err
	}
	s.logger.Info("playbook deleted", zap.Int64("playbook_id", id))
	return nil
}

// Content returns the playbook text, restricted to sectionIDs when given.
func (s *Service) Content(ctx context.Context, id int64, sectionIDs []string) (*models.ScriptContent, error) {
	p, err := s.db.GetPlaybook(ctx, id)
	if err != nil {
		return nil, err
	}
	text, err := Select(p, sectionIDs)
	if err != nil {
		return nil, err
	}
	return &models.ScriptContent{
		PlaybookID:       p.ID,
		PlaybookName:     p.Name,
		Filename:         p.Filename,
		ScriptContent:    text,
		SelectedSections: append([]string{}, sectionIDs...),
		FileType:         p.Type,
		ContentLength:    len(text),
	}, nil
}

// Download returns the selected content and the file name to serve it as.
func (s *Service) Download(ctx context.Context, id int64, sectionIDs []string) (string, []byte, error) {
	c, err := s.Content(ctx, id, sectionIDs)
	if err != nil {
		return "", nil, err
	}
	ext := filepath.Ext(c.Filename)
	if ext == "" {
		ext = ".sh"
	}
	name := c.PlaybookName + ext
	if len(sectionIDs) > 0 {
		name = c.PlaybookName + "_sections" + ext
	}
	return name, []byte(c.ScriptContent), nil
}

type Health struct {
	Status         string   `json:"status"`
	PlaybooksCount int      `json:"playbooks_count"`
	ScriptFiles    []string `json:"actual_script_files"`
}

func (s *Service) Health(ctx context.Context) (*Health, error) {
	playbooks, err := s.db.GetAllPlaybooks(ctx)
	if err != nil {
		return nil, models.Infrastructuref("playbook store unavailable: %v", err)
	}
	files := make([]string, 0, len(playbooks))
	for _, p := range playbooks {
		files = append(files, p.Filename)
	}
	return &Health{Status: "healthy", PlaybooksCount: len(playbooks), ScriptFiles: files}, nil
}
