package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanbanServer/backend/internal/model"
	"kanbanServer/backend/internal/store"
)

type gatedSnapshots struct {
	inner Snapshotter
	gate  chan struct{}
	calls atomic.Int32
}

func (g *gatedSnapshots) Snapshot(ctx context.Context, boardID string) (model.BoardSnapshot, error) {
	g.calls.Add(1)
	<-g.gate
	return g.inner.Snapshot(ctx, boardID)
}

type failingOnline struct{}

func (failingOnline) Online(context.Context, string) ([]model.Presence, error) {
	return nil, errors.New("redis down")
}

func seedStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	_, err := st.CreateBoard(ctx, model.Board{ID: "b1", Title: "Sprint"})
	require.NoError(t, err)
	col, err := st.CreateItem(ctx, model.Item{Kind: model.KindColumn, BoardID: "b1", ParentID: "b1", Title: "Todo", Order: 1000})
	require.NoError(t, err)
	_, err = st.CreateItem(ctx, model.Item{Kind: model.KindCard, BoardID: "b1", ParentID: col.ID, Title: "second", Order: 2000})
	require.NoError(t, err)
	_, err = st.CreateItem(ctx, model.Item{Kind: model.KindCard, BoardID: "b1", ParentID: col.ID, Title: "first", Order: 1000})
	require.NoError(t, err)
	return st
}

func newEngine(h *BoardHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.Register(r.Group("/board"))
	return r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestGetBoardSnapshot(t *testing.T) {
	r := newEngine(NewBoardHandler(seedStore(t), OnlineFunc(func(string) []model.Presence { return nil })))

	w := get(r, "/board/boards/b1")
	require.Equal(t, http.StatusOK, w.Code)
	var snap model.BoardSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "Sprint", snap.Board.Title)
	require.Len(t, snap.Columns, 1)
	require.Len(t, snap.Cards, 2)
	assert.Equal(t, "first", snap.Cards[0].Title)

	missing := get(r, "/board/boards/nope")
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Contains(t, missing.Body.String(), "NOT_FOUND")
}

func TestSnapshotLoadsAreCoalesced(t *testing.T) {
	g := &gatedSnapshots{inner: seedStore(t), gate: make(chan struct{})}
	h := NewBoardHandler(g, OnlineFunc(func(string) []model.Presence { return nil }))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := h.snapshot(context.Background(), "b1")
			assert.NoError(t, err)
			assert.Equal(t, "b1", snap.Board.ID)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(g.gate)
	wg.Wait()
	assert.Equal(t, int32(1), g.calls.Load())
}

func TestGetOnline(t *testing.T) {
	who := model.Identity{ID: "u1", Name: "Ada", Email: "ada@example.com"}
	online := OnlineFunc(func(boardID string) []model.Presence {
		if boardID != "b1" {
			return nil
		}
		return []model.Presence{{SessionID: "s1", BoardID: "b1", UserID: who.ID, User: who}}
	})
	r := newEngine(NewBoardHandler(seedStore(t), online))

	w := get(r, "/board/boards/b1/online")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		BoardID string           `json:"boardId"`
		Users   []model.Presence `json:"users"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Users, 1)
	assert.Equal(t, who, body.Users[0].User)

	empty := get(r, "/board/boards/b2/online")
	assert.JSONEq(t, `{"boardId":"b2","users":[]}`, empty.Body.String())

	down := newEngine(NewBoardHandler(seedStore(t), failingOnline{}))
	assert.Equal(t, http.StatusServiceUnavailable, get(down, "/board/boards/b1/online").Code)
}

func TestHealthz(t *testing.T) {
	r := newEngine(NewBoardHandler(seedStore(t), failingOnline{}))
	assert.Equal(t, http.StatusOK, get(r, "/board/healthz").Code)
}
