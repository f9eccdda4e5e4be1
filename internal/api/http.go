package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/victornm/quizbox/internal/domain"
	"github.com/victornm/quizbox/internal/errors"
	"github.com/victornm/quizbox/internal/leaderboard"
	"github.com/victornm/quizbox/internal/score"
	"github.com/victornm/quizbox/internal/session"
)

type (
	CreateSessionRequest struct {
		Players []string `json:"players"`
	}

	PlayerRequest struct {
		Username string `json:"username" binding:"required"`
	}

	SubmitAnswerRequest struct {
		Username string   `json:"username" binding:"required"`
		Answer   []string `json:"answer"`
		Round    int      `json:"round"`
	}

	ErrorResponse struct {
		Error *errors.Error `json:"error"`
	}

	Leaderboard struct {
		SessionID string             `json:"session_id,omitempty"`
		Entries   []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		Username string `json:"username"`
		Score    string `json:"score"`
	}
)

func (a *API) registerRoutes(r gin.IRouter) {
	v1 := r.Group("/v1")

	v1.POST("/sessions", a.handleCreateSession)
	v1.GET("/sessions/:id", a.handleGetSession)
	v1.DELETE("/sessions/:id", a.handleCloseSession)
	v1.POST("/sessions/:id/players", a.handleJoin)
	v1.POST("/sessions/:id/start", a.handleSessionOp(a.qss.Start))
	v1.POST("/sessions/:id/answers", a.handleSubmitAnswer)
	v1.POST("/sessions/:id/quit", a.handleQuit)
	v1.POST("/sessions/:id/request-end", a.handleSessionOp(a.requestEnd))
	v1.POST("/sessions/:id/resume", a.handleSessionOp(a.resume))
	v1.POST("/sessions/:id/end", a.handleSessionOp(a.end))
	v1.GET("/sessions/:id/ranking", a.handleRanking)
	v1.GET("/sessions/:id/ws", a.handleWatch)

	if a.ls != nil {
		v1.GET("/sessions/:id/leaderboard", a.handleSessionLeaderboard)
		v1.GET("/leaderboard", a.handleGlobalLeaderboard)
	}

	if a.rs != nil {
		v1.GET("/sessions/:id/results", a.handleResults)
	}
}

func (a *API) handleCreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength != 0 {
		a.abort(c, errors.InvalidArgument("invalid body: %v", err))
		return
	}

	ss, err := a.qss.CreateSession(c.Request.Context(), session.CreateSessionRequest{
		Players: req.Players,
	})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, newSession(ss, a.qss.Categories()))
}

func (a *API) handleGetSession(c *gin.Context) {
	ss, err := a.qss.GetSession(c.Request.Context(), session.GetSessionRequest{SessionID: c.Param("id")})
	a.respond(c, ss, err)
}

func (a *API) handleCloseSession(c *gin.Context) {
	err := a.qss.CloseSession(c.Request.Context(), session.CloseSessionRequest{SessionID: c.Param("id")})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) handleJoin(c *gin.Context) {
	var req PlayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.abort(c, errors.InvalidArgument("invalid body: %v", err))
		return
	}

	ss, err := a.qss.Join(c.Request.Context(), session.JoinRequest{
		SessionID: c.Param("id"),
		Username:  req.Username,
	})
	a.respond(c, ss, err)
}

func (a *API) handleSubmitAnswer(c *gin.Context) {
	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.abort(c, errors.InvalidArgument("invalid body: %v", err))
		return
	}

	ss, err := a.qss.SubmitAnswer(c.Request.Context(), session.SubmitAnswerRequest{
		SessionID: c.Param("id"),
		Username:  req.Username,
		Answer:    domain.Answer(req.Answer),
		Round:     req.Round,
	})
	a.respond(c, ss, err)
}

func (a *API) handleQuit(c *gin.Context) {
	var req PlayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.abort(c, errors.InvalidArgument("invalid body: %v", err))
		return
	}

	ss, err := a.qss.Quit(c.Request.Context(), session.QuitRequest{
		SessionID: c.Param("id"),
		Username:  req.Username,
	})
	a.respond(c, ss, err)
}

func (a *API) handleSessionOp(op func(ctx context.Context, req session.StartRequest) (domain.Session, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		ss, err := op(c.Request.Context(), session.StartRequest{SessionID: c.Param("id")})
		a.respond(c, ss, err)
	}
}

func (a *API) requestEnd(ctx context.Context, req session.StartRequest) (domain.Session, error) {
	return a.qss.RequestEnd(ctx, session.RequestEndRequest{SessionID: req.SessionID})
}

func (a *API) resume(ctx context.Context, req session.StartRequest) (domain.Session, error) {
	return a.qss.Resume(ctx, session.ResumeRequest{SessionID: req.SessionID})
}

func (a *API) end(ctx context.Context, req session.StartRequest) (domain.Session, error) {
	return a.qss.EndSession(ctx, session.EndSessionRequest{SessionID: req.SessionID})
}

func (a *API) handleRanking(c *gin.Context) {
	ss, err := a.qss.GetSession(c.Request.Context(), session.GetSessionRequest{SessionID: c.Param("id")})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": ss.SessionID,
		"final":      ss.State == domain.StateFinished,
		"ranking":    ranking(ss),
	})
}

func (a *API) handleSessionLeaderboard(c *gin.Context) {
	l, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{SessionID: c.Param("id")})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, newLeaderboard(*l))
}

func (a *API) handleGlobalLeaderboard(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			a.abort(c, errors.InvalidArgument("limit must be a positive number"))
			return
		}
		limit = n
	}

	l, err := a.ls.GetGlobalLeaderboard(c.Request.Context(), leaderboard.GetGlobalLeaderboardRequest{Limit: limit})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, newLeaderboard(*l))
}

func (a *API) handleResults(c *gin.Context) {
	entries, err := a.rs.ListScores(c.Request.Context(), score.ListScoresRequest{SessionID: c.Param("id")})
	if err != nil {
		a.abort(c, err)
		return
	}

	if len(entries) == 0 {
		a.abort(c, errors.New(errors.KindNotFound, errors.WithMessagef("no results for session %s", c.Param("id"))))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": c.Param("id"),
		"ranking":    newRanking(entries),
	})
}

func (a *API) respond(c *gin.Context, ss domain.Session, err error) {
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, newSession(ss, a.qss.Categories()))
}

func (a *API) abort(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Kind == errors.KindInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), ErrorResponse{Error: e})
}

func newLeaderboard(l domain.Leaderboard) Leaderboard {
	data := Leaderboard{
		SessionID: l.SessionID,
		Entries:   make([]LeaderboardEntry, 0, len(l.Entries)),
	}

	for _, entry := range l.Entries {
		data.Entries = append(data.Entries, LeaderboardEntry{
			Username: entry.Username,
			Score:    strconv.FormatFloat(entry.Score, 'f', -1, 64),
		})
	}

	return data
}
