package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

func (a *API) getExecution(c *gin.Context) {
	exec, err := a.dispatcher.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, exec)
}

func (a *API) listExecutions(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		a.badRequest(c, "invalid limit")
		return
	}
	execs, err := a.dispatcher.List(c.Request.Context(), limit)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, execs)
}

func (a *API) cancelExecution(c *gin.Context) {
	exec, err := a.dispatcher.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, exec)
}

// watchExecution pushes execution snapshots over a websocket until the
// execution reaches a terminal state.
func (a *API) watchExecution(c *gin.Context) {
	id := c.Param("id")
	updates, unsubscribe, err := a.dispatcher.Subscribe(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	defer unsubscribe()

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", zap.String("execution_id", id), zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		select {
		case exec, ok := <-updates:
			if !ok {
				// Best effort; the connection is closed right after.
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "execution finished"))
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				a.logger.Debug("websocket deadline failed", zap.String("execution_id", id), zap.Error(err))
				return
			}
			if err := conn.WriteJSON(exec); err != nil {
				a.logger.Debug("websocket write failed", zap.String("execution_id", id), zap.Error(err))
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
