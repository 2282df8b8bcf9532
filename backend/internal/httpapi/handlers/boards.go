package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"kanbanServer/backend/internal/model"
	"kanbanServer/backend/internal/store"
)

type Snapshotter interface {
	Snapshot(ctx context.Context, boardID string) (model.BoardSnapshot, error)
}

// OnlineSource lists the sessions present on a board.
type OnlineSource interface {
	Online(ctx context.Context, boardID string) ([]model.Presence, error)
}

// OnlineFunc adapts an in-process presence lookup to OnlineSource.
type OnlineFunc func(boardID string) []model.Presence

func (f OnlineFunc) Online(_ context.Context, boardID string) ([]model.Presence, error) {
	return f(boardID), nil
}

type BoardHandler struct {
	boards Snapshotter
	online OnlineSource
	sf     singleflight.Group
}

func NewBoardHandler(boards Snapshotter, online OnlineSource) *BoardHandler {
	return &BoardHandler{boards: boards, online: online}
}

func (h *BoardHandler) Register(r gin.IRoutes) {
	r.GET("/boards/:boardID", h.GetBoard)
	r.GET("/boards/:boardID/online", h.GetOnline)
	r.GET("/healthz", Healthz)
}

// snapshot coalesces concurrent loads of the same board, e.g. a whole team
// reloading after a deploy.
func (h *BoardHandler) snapshot(ctx context.Context, boardID string) (model.BoardSnapshot, error) {
	v, err, _ := h.sf.Do(boardID, func() (interface{}, error) {
		// detached so one caller's cancellation doesn't fail the others
		return h.boards.Snapshot(context.WithoutCancel(ctx), boardID)
	})
	if err != nil {
		return model.BoardSnapshot{}, err
	}
	if snap, ok := v.(model.BoardSnapshot); ok {
		return snap, nil
	}
	return model.BoardSnapshot{}, errors.New("internal type error")
}

func (h *BoardHandler) GetBoard(c *gin.Context) {
	boardID := c.Param("boardID")
	if boardID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION_ERROR", "message": "missing board id"})
		return
	}
	snap, err := h.snapshot(c.Request.Context(), boardID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "message": "board not found"})
			return
		}
		log.WithError(err).WithField("board", boardID).Error("load board snapshot")
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "PERSISTENCE_UNAVAILABLE", "message": "failed to load board"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *BoardHandler) GetOnline(c *gin.Context) {
	boardID := c.Param("boardID")
	users, err := h.online.Online(c.Request.Context(), boardID)
	if err != nil {
		log.WithError(err).WithField("board", boardID).Warn("load online users")
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "PERSISTENCE_UNAVAILABLE", "message": "presence unavailable"})
		return
	}
	if users == nil {
		users = []model.Presence{}
	}
	c.JSON(http.StatusOK, gin.H{"boardId": boardID, "users": users})
}

func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "OK"})
}
