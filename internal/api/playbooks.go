package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/metorial/auditor/internal/execution"
	"github.com/metorial/auditor/internal/models"
	"github.com/metorial/auditor/internal/validator"
	"go.uber.org/zap"
)

type validateRequest struct {
	Content string `json:"content"`
}

type executeRequest struct {
	HostIDs    []int64  `json:"host_ids"`
	Password   string   `json:"password"`
	SectionIDs []string `json:"section_ids"`
}

func (a *API) listPlaybooks(c *gin.Context) {
	playbooks, err := a.playbooks.List(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, playbooks)
}

func (a *API) getPlaybook(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	p, err := a.playbooks.Get(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (a *API) createPlaybook(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		a.badRequest(c, "file is required")
		return
	}
	if header.Size > maxUploadBytes {
		a.badRequest(c, fmt.Sprintf("file exceeds %d bytes", maxUploadBytes))
		return
	}
	f, err := header.Open()
	if err != nil {
		a.fail(c, err)
		return
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		a.fail(c, err)
		return
	}

	p, err := a.playbooks.Create(c.Request.Context(), c.PostForm("name"), c.PostForm("description"), header.Filename, content)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (a *API) deletePlaybook(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := a.playbooks.Delete(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "playbook deleted"})
}

func (a *API) playbookScript(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	content, err := a.playbooks.Content(c.Request.Context(), id, c.QueryArray("section_ids"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, content)
}

func (a *API) downloadPlaybook(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	name, data, err := a.playbooks.Download(c.Request.Context(), id, c.QueryArray("section_ids"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func (a *API) playbookHealth(c *gin.Context) {
	health, err := a.playbooks.Health(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}

	body := gin.H{
		"status":              health.Status,
		"playbooks_count":     health.PlaybooksCount,
		"actual_script_files": health.ScriptFiles,
	}
	if a.sysinfo != nil {
		snapshot, err := a.sysinfo.Collect()
		if err != nil {
			a.logger.Warn("failed to collect host load", zap.Error(err))
		} else {
			body["engine"] = snapshot
		}
	}
	c.JSON(http.StatusOK, body)
}

func (a *API) validateYAML(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, "invalid request payload")
		return
	}
	c.JSON(http.StatusOK, validator.Validate(req.Content))
}

func (a *API) executePlaybook(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, "invalid request payload")
		return
	}

	exec, err := a.dispatcher.Start(c.Request.Context(), execution.Request{
		PlaybookID: id,
		HostIDs:    req.HostIDs,
		Credential: models.NewCredential(req.Password),
		SectionIDs: req.SectionIDs,
	})
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"execution_id":  exec.ID,
		"status":        exec.Status,
		"message":       fmt.Sprintf("playbook '%s' execution started", exec.PlaybookName),
		"hosts_count":   exec.TotalHosts,
		"playbook_name": exec.PlaybookName,
	})
}
