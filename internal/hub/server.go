package hub

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/fleetd-io/fleetd/internal/record"
	"github.com/fleetd-io/fleetd/internal/registry"
)

// Server exposes the Hub over HTTP: the replication endpoints plus a
// cluster-visibility view backed by the hub's own liveness registry.
type Server struct {
	store    *Store
	registry *registry.Registry
	log      zerolog.Logger
}

// NewServer wires the hub store and registry into an HTTP server.
func NewServer(store *Store, reg *registry.Registry, log zerolog.Logger) *Server {
	return &Server{store: store, registry: reg, log: log}
}

// Router builds the gin engine with all hub routes mounted.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.handleHealth)

	r.POST("/replicate/single", s.handleSingle)
	r.POST("/replicate/batch", s.handleBatch)
	r.POST("/replicate/query", s.handleQuery)

	r.GET("/nodes", s.handleListNodes)
	r.GET("/agents", s.handleListAgents)
	r.POST("/nodes/register", s.handleRegisterNode)
	r.POST("/agents/register", s.handleRegisterAgent)
	r.POST("/nodes/:id/heartbeat", s.handleNodeHeartbeat)
	r.POST("/agents/:id/heartbeat", s.handleAgentHeartbeat)
	r.POST("/nodes/:id/status", s.handleNodeStatus)
	r.POST("/agents/:id/status", s.handleAgentStatus)

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "hub"})
}

// SingleRequest is the body of POST /replicate/single.
type SingleRequest struct {
	SourceID  string           `json:"source_id" binding:"required"`
	Table     string           `json:"table" binding:"required"`
	Operation record.Operation `json:"operation" binding:"required"`
	Payload   record.Object    `json:"payload"`
	Timestamp float64          `json:"timestamp"`
}

func (s *Server) handleSingle(c *gin.Context) {
	var req SingleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	// The 202 contract: the client does not depend on apply completion.
	// The apply itself is a single upsert, cheap enough to run inline.
	if err := s.store.Apply(c.Request.Context(), req.SourceID, req.Table, req.Operation, req.Payload); err != nil {
		s.log.Error().Err(err).Str("source_id", req.SourceID).Str("table", req.Table).Msg("single apply failed")
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "source_id": req.SourceID})
}

// BatchRecord is one element of a batch replication request.
type BatchRecord struct {
	Table     string           `json:"table" binding:"required"`
	Operation record.Operation `json:"operation" binding:"required"`
	Data      record.Object    `json:"data"`
}

// BatchRequest is the body of POST /replicate/batch.
type BatchRequest struct {
	SourceID  string        `json:"source_id" binding:"required"`
	Records   []BatchRecord `json:"records" binding:"required"`
	Timestamp float64       `json:"timestamp"`
}

func (s *Server) handleBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	// Each apply is independent: a failing record does not roll back the
	// others, and the source's replay queue redelivers failures.
	applied := 0
	for _, rec := range req.Records {
		if err := s.store.Apply(c.Request.Context(), req.SourceID, rec.Table, rec.Operation, rec.Data); err != nil {
			s.log.Error().Err(err).Str("source_id", req.SourceID).Str("table", rec.Table).Msg("batch apply failed")
			continue
		}
		applied++
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "count": applied})
}

// QueryRequest is the body of POST /replicate/query.
type QueryRequest struct {
	SourceID string `json:"source_id" binding:"required"`
	Query    string `json:"query" binding:"required"`
}

func (s *Server) handleQuery(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	results, err := s.store.Query(c.Request.Context(), req.SourceID, req.Query)
	if err != nil {
		s.log.Error().Err(err).Str("source_id", req.SourceID).Msg("query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "results": results})
}

func (s *Server) handleListNodes(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.Nodes())
}

func (s *Server) handleListAgents(c *gin.Context) {
	if nodeID := c.Query("node_id"); nodeID != "" {
		c.JSON(http.StatusOK, s.registry.AgentsOnNode(nodeID))
		return
	}
	c.JSON(http.StatusOK, s.registry.Agents())
}

type registerNodeRequest struct {
	NodeID   string `json:"node_id" binding:"required"`
	Hostname string `json:"hostname" binding:"required"`
	Port     int    `json:"port" binding:"required"`
}

func (s *Server) handleRegisterNode(c *gin.Context) {
	var req registerNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}
	s.registry.RegisterNode(req.NodeID, req.Hostname, req.Port)
	c.JSON(http.StatusOK, gin.H{"status": "registered", "node_id": req.NodeID})
}

type registerAgentRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
	NodeID  string `json:"node_id" binding:"required"`
	Role    string `json:"role" binding:"required"`
}

func (s *Server) handleRegisterAgent(c *gin.Context) {
	var req registerAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}
	s.registry.RegisterAgent(req.AgentID, req.NodeID, req.Role)
	c.JSON(http.StatusOK, gin.H{"status": "registered", "agent_id": req.AgentID})
}

func (s *Server) handleNodeHeartbeat(c *gin.Context) {
	s.registry.HeartbeatNode(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleAgentHeartbeat(c *gin.Context) {
	s.registry.HeartbeatAgent(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
	TaskID string `json:"task_id"`
}

func (s *Server) handleNodeStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}
	status, err := record.ParseStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}
	if err := s.registry.UpdateNodeStatus(c.Param("id"), status); err != nil {
		c.JSON(http.StatusConflict, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleAgentStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}
	status, err := record.ParseStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}
	if err := s.registry.UpdateAgentStatus(c.Param("id"), status, req.TaskID); err != nil {
		c.JSON(http.StatusConflict, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
