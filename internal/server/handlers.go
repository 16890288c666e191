package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pulse/internal/auth"
	"pulse/internal/configstore"
	"pulse/internal/engine"
	"pulse/internal/heartbeat"
	"pulse/internal/registry"
	"pulse/internal/session"
)

// agentPayload is the declarative agent configuration as it travels on the
// wire: enabled default function names, custom function specs, heartbeats in
// seconds.
type agentPayload struct {
	Goal            string                   `json:"goal"`
	Description     string                   `json:"description"`
	WorldInfo       string                   `json:"worldInfo"`
	Task            string                   `json:"task,omitempty"`
	Functions       []string                 `json:"functions,omitempty"`
	CustomFunctions []*registry.FunctionSpec `json:"customFunctions,omitempty"`
	GameEngineModel string                   `json:"gameEngineModel,omitempty"`
	GameState       struct {
		MainHeartbeat     int `json:"mainHeartbeat,omitempty"`
		ReactionHeartbeat int `json:"reactionHeartbeat,omitempty"`
	} `json:"gameState,omitempty"`
}

type reactPayload struct {
	agentPayload
	SessionID string `json:"sessionId"`
	Event     string `json:"event,omitempty"`
	TweetID   string `json:"tweetId,omitempty"`
}

type envelope[T any] struct {
	Data T `json:"data"`
}

func (s *Server) issueToken(c *gin.Context) {
	apiKey := c.GetHeader("x-api-key")
	token, expiresAt, err := s.cfg.Issuer.Issue(apiKey)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"accessToken": token,
		"expiresAt":   expiresAt.UTC().Format(time.RFC3339),
	}})
}

func (s *Server) listFunctions(c *gin.Context) {
	rows := make([]gin.H, 0, len(s.cfg.Defaults))
	for _, spec := range s.cfg.Defaults {
		rows = append(rows, gin.H{
			"fn_name":        spec.Name,
			"fn_description": spec.Description,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func (s *Server) simulate(c *gin.Context) {
	var req envelope[reactPayload]
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Data.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
		return
	}
	if err := s.applyAgentPayload(c, &req.Data.agentPayload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	step, err := s.cfg.Engine.SimulateStep(c.Request.Context(), req.Data.SessionID, s.cfg.DefaultPlatform)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": step})
}

func (s *Server) react(c *gin.Context) {
	var req envelope[reactPayload]
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Data.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
		return
	}
	if err := s.applyAgentPayload(c, &req.Data.agentPayload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.cfg.Engine.React(c.Request.Context(), engine.ReactRequest{
		SessionID: req.Data.SessionID,
		Platform:  c.Param("platform"),
		Event:     req.Data.Event,
		Task:      req.Data.Task,
		TweetID:   req.Data.TweetID,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) deploy(c *gin.Context) {
	var req envelope[agentPayload]
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.applyAgentPayload(c, &req.Data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile, err := s.cfg.Profiles.Snapshot(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	if s.cfg.Scheduler != nil {
		s.cfg.Scheduler.Stop(DeploySessionID)
		if err := s.cfg.Scheduler.Start(DeploySessionID, heartbeat.Cadence{
			Main:     profile.MainHeartbeat,
			Reaction: profile.ReactionHeartbeat,
		}); err != nil {
			s.fail(c, err)
			return
		}
	}

	s.logger.Info("agent deployed",
		zap.String("model", profile.ModelID),
		zap.Duration("main_heartbeat", profile.MainHeartbeat),
		zap.Duration("reaction_heartbeat", profile.ReactionHeartbeat))
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"sessionId": DeploySessionID,
		"goal":      profile.Goal,
		"model":     profile.ModelID,
	}})
}

func (s *Server) resetSession(c *gin.Context) {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		sessionID = DeploySessionID
	}
	if err := s.cfg.Engine.ResetSession(c.Request.Context(), sessionID); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"sessionId": sessionID, "reset": true}})
}

// applyAgentPayload folds the request's inline agent configuration into the
// profile store: the hosted API carries configuration with every call rather
// than assuming prior deployment.
func (s *Server) applyAgentPayload(c *gin.Context, p *agentPayload) error {
	if p.Goal == "" && p.Description == "" && p.WorldInfo == "" &&
		len(p.Functions) == 0 && len(p.CustomFunctions) == 0 &&
		p.GameEngineModel == "" && p.GameState.MainHeartbeat == 0 {
		return nil
	}

	enabled, err := s.resolveDefaults(p.Functions)
	if err != nil {
		return err
	}

	return s.cfg.Profiles.Update(c.Request.Context(), func(profile *configstore.AgentProfile) error {
		if p.Goal != "" {
			profile.Goal = p.Goal
		}
		if p.Description != "" {
			profile.Description = p.Description
		}
		if p.WorldInfo != "" {
			profile.WorldInfo = p.WorldInfo
		}
		if p.Task != "" {
			profile.TaskDescription = p.Task
		}
		if p.GameEngineModel != "" {
			profile.ModelID = p.GameEngineModel
		}
		if p.GameState.MainHeartbeat > 0 {
			profile.MainHeartbeat = time.Duration(p.GameState.MainHeartbeat) * time.Second
		}
		if p.GameState.ReactionHeartbeat > 0 {
			profile.ReactionHeartbeat = time.Duration(p.GameState.ReactionHeartbeat) * time.Second
		}
		if len(enabled) > 0 || len(p.CustomFunctions) > 0 {
			profile.Functions = append(enabled, p.CustomFunctions...)
		}
		return nil
	})
}

// resolveDefaults maps enabled default function names onto their specs.
func (s *Server) resolveDefaults(names []string) ([]*registry.FunctionSpec, error) {
	byName := make(map[string]*registry.FunctionSpec, len(s.cfg.Defaults))
	for _, spec := range s.cfg.Defaults {
		byName[spec.Name] = spec
	}
	resolved := make([]*registry.FunctionSpec, 0, len(names))
	for _, name := range names {
		spec, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown default function %q", name)
		}
		resolved = append(resolved, spec)
	}
	return resolved, nil
}

// fail maps engine errors onto HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrSessionBusy):
		status = http.StatusConflict
	case errors.Is(err, configstore.ErrInvalidProfile):
		status = http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidToken):
		status = http.StatusUnauthorized
	}
	s.logger.Warn("request failed", zap.Int("status", status), zap.Error(err))
	c.JSON(status, gin.H{"error": err.Error()})
}
