package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

func (a *API) downloadCSV(c *gin.Context) {
	hostID, ok := paramID(c, "host_id")
	if !ok {
		return
	}
	name, data, err := a.audit.CSV(c.Request.Context(), hostID, c.Param("username"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

func (a *API) downloadJSON(c *gin.Context) {
	hostID, ok := paramID(c, "host_id")
	if !ok {
		return
	}
	set, err := a.audit.Rows(c.Request.Context(), hostID, c.Param("username"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"rows":         set.Rows,
		"columns":      set.Columns,
		"execution_id": set.ExecutionID,
		"created_at":   set.CreatedAt,
	})
}

func (a *API) downloadSummary(c *gin.Context) {
	hostID, ok := paramID(c, "host_id")
	if !ok {
		return
	}
	summary, err := a.audit.Summary(c.Request.Context(), hostID, c.Param("username"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
