package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/metorial/auditor/internal/models"
)

type registerRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
	IP       string `json:"ip"`
}

type checkRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	IP       string `json:"ip"`
}

func (a *API) listHosts(c *gin.Context) {
	hosts, err := a.inventory.List(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, hosts)
}

func (a *API) registerHost(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, "invalid request payload")
		return
	}
	cred := models.NewCredential(req.Password)
	defer cred.Wipe()

	host, err := a.inventory.Register(c.Request.Context(), req.Name, req.Username, cred, req.IP)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, host)
}

func (a *API) checkHost(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.badRequest(c, "invalid request payload")
		return
	}
	cred := models.NewCredential(req.Password)
	defer cred.Wipe()

	result, err := a.inventory.Check(c.Request.Context(), req.Username, cred, req.IP)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *API) deleteHost(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := a.inventory.Delete(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "host deleted"})
}

func (a *API) inventoryHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "inventory",
		"features": gin.H{
			"host_management": true,
			"os_detection":    true,
			"security_check":  true,
		},
	})
}

func (a *API) hostInfos(c *gin.Context) {
	infos, err := a.inventory.Infos(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, infos)
}
