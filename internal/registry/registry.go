package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetd-io/fleetd/internal/record"
)

// NodeRecord is the runtime state of one compute node.
// RegisteredAgents is a forward list kept purely for lookup; the agent's
// NodeID back-reference is the authoritative link.
type NodeRecord struct {
	NodeID           string             `json:"node_id"`
	Hostname         string             `json:"hostname"`
	Port             int                `json:"port"`
	Status           record.Status      `json:"status"`
	RegisteredAgents []string           `json:"registered_agents"`
	LastHeartbeat    time.Time          `json:"last_heartbeat"`
	RegistrationTime time.Time          `json:"registration_time"`
	Metrics          map[string]float64 `json:"metrics"`
}

// AgentRecord is the runtime state of one software agent.
type AgentRecord struct {
	AgentID       string            `json:"agent_id"`
	NodeID        string            `json:"node_id"`
	Role          string            `json:"role"`
	Status        record.Status     `json:"status"`
	CurrentTaskID string            `json:"current_task_id,omitempty"`
	LastHeartbeat time.Time         `json:"last_heartbeat"`
	Metadata      map[string]string `json:"metadata"`
}

// Registry is the thread-safe liveness registry for nodes and agents.
type Registry struct {
	mu     sync.RWMutex
	nodes  map[string]*NodeRecord
	agents map[string]*AgentRecord
	now    func() time.Time
	log    zerolog.Logger
}

// New creates an empty registry.
func New(log zerolog.Logger) *Registry {
	return &Registry{
		nodes:  make(map[string]*NodeRecord),
		agents: make(map[string]*AgentRecord),
		now:    time.Now,
		log:    log,
	}
}

// SetClock overrides the registry's time source. Used by tests and the
// sweeper to pin timestamps.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// RegisterNode registers a node or, for an already-known id, updates its
// connection metadata and refreshes the heartbeat without resetting
// status. Idempotent.
func (r *Registry) RegisterNode(nodeID, hostname string, port int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if node, ok := r.nodes[nodeID]; ok {
		node.Hostname = hostname
		node.Port = port
		node.LastHeartbeat = r.now()
		return
	}

	now := r.now()
	r.nodes[nodeID] = &NodeRecord{
		NodeID:           nodeID,
		Hostname:         hostname,
		Port:             port,
		Status:           record.StatusStarting,
		RegisteredAgents: []string{},
		LastHeartbeat:    now,
		RegistrationTime: now,
		Metrics:          map[string]float64{},
	}
	r.log.Info().Str("node_id", nodeID).Str("hostname", hostname).Int("port", port).Msg("node registered")
}

// RegisterAgent registers an agent or, for an already-known id, updates
// its node assignment and role and refreshes the heartbeat. The owning
// node's forward list is maintained when the node is known.
func (r *Registry) RegisterAgent(agentID, nodeID, role string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if agent, ok := r.agents[agentID]; ok {
		agent.NodeID = nodeID
		agent.Role = role
		agent.LastHeartbeat = r.now()
		return
	}

	r.agents[agentID] = &AgentRecord{
		AgentID:       agentID,
		NodeID:        nodeID,
		Role:          role,
		Status:        record.StatusStarting,
		LastHeartbeat: r.now(),
		Metadata:      map[string]string{},
	}

	if node, ok := r.nodes[nodeID]; ok {
		if !contains(node.RegisteredAgents, agentID) {
			node.RegisteredAgents = append(node.RegisteredAgents, agentID)
		}
	}
	r.log.Info().Str("agent_id", agentID).Str("node_id", nodeID).Str("role", role).Msg("agent registered")
}

// HeartbeatNode refreshes a node's heartbeat timestamp. Never changes
// status. Unknown ids are ignored.
func (r *Registry) HeartbeatNode(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if node, ok := r.nodes[nodeID]; ok {
		node.LastHeartbeat = r.now()
	}
}

// HeartbeatAgent refreshes an agent's heartbeat timestamp.
func (r *Registry) HeartbeatAgent(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if agent, ok := r.agents[agentID]; ok {
		agent.LastHeartbeat = r.now()
	}
}

// UpdateNodeStatus sets a node's status and refreshes its heartbeat.
// Returns an error for unknown ids or illegal transitions.
func (r *Registry) UpdateNodeStatus(nodeID string, status record.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[nodeID]
	if !ok {
		return fmt.Errorf("update node status: unknown node %q", nodeID)
	}
	if !node.Status.CanTransition(status) {
		return fmt.Errorf("update node status: %s cannot transition %s -> %s", nodeID, node.Status, status)
	}
	node.Status = status
	node.LastHeartbeat = r.now()
	return nil
}

// UpdateAgentStatus sets an agent's status, refreshes its heartbeat, and
// optionally records the task the agent is working on.
func (r *Registry) UpdateAgentStatus(agentID string, status record.Status, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return fmt.Errorf("update agent status: unknown agent %q", agentID)
	}
	if !agent.Status.CanTransition(status) {
		return fmt.Errorf("update agent status: %s cannot transition %s -> %s", agentID, agent.Status, status)
	}
	agent.Status = status
	agent.LastHeartbeat = r.now()
	if taskID != "" {
		agent.CurrentTaskID = taskID
	}
	return nil
}

// UpdateNodeMetrics merges live metrics into a node's record and
// refreshes its heartbeat.
func (r *Registry) UpdateNodeMetrics(nodeID string, metrics map[string]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if node, ok := r.nodes[nodeID]; ok {
		for k, v := range metrics {
			node.Metrics[k] = v
		}
		node.LastHeartbeat = r.now()
	}
}

// UpdateAgentRole changes an agent's active role.
func (r *Registry) UpdateAgentRole(agentID, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	agent, ok := r.agents[agentID]
	if !ok {
		return fmt.Errorf("update agent role: unknown agent %q", agentID)
	}
	agent.Role = role
	return nil
}

// Node returns a copy of a node's record.
func (r *Registry) Node(nodeID string) (NodeRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	node, ok := r.nodes[nodeID]
	if !ok {
		return NodeRecord{}, false
	}
	return copyNode(node), true
}

// Agent returns a copy of an agent's record.
func (r *Registry) Agent(agentID string) (AgentRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[agentID]
	if !ok {
		return AgentRecord{}, false
	}
	return copyAgent(agent), true
}

// Nodes returns copies of all node records, ordered by node id.
func (r *Registry) Nodes() []NodeRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]NodeRecord, 0, len(r.nodes))
	for _, node := range r.nodes {
		out = append(out, copyNode(node))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// Agents returns copies of all agent records, ordered by agent id.
func (r *Registry) Agents() []AgentRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]AgentRecord, 0, len(r.agents))
	for _, agent := range r.agents {
		out = append(out, copyAgent(agent))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// AgentsOnNode returns copies of the agents assigned to one node.
func (r *Registry) AgentsOnNode(nodeID string) []AgentRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []AgentRecord
	for _, agent := range r.agents {
		if agent.NodeID == nodeID {
			out = append(out, copyAgent(agent))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// AgentsByRole returns copies of the agents holding one role.
func (r *Registry) AgentsByRole(role string) []AgentRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []AgentRecord
	for _, agent := range r.agents {
		if agent.Role == role {
			out = append(out, copyAgent(agent))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// NodeStatuses returns a point-in-time view of node id -> status.
// This is the liveness snapshot the router consumes.
func (r *Registry) NodeStatuses() map[string]record.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]record.Status, len(r.nodes))
	for id, node := range r.nodes {
		out[id] = node.Status
	}
	return out
}

// Snapshot is a JSON-serializable dump of the full registry.
type Snapshot struct {
	Nodes  map[string]NodeRecord  `json:"nodes"`
	Agents map[string]AgentRecord `json:"agents"`
}

// Snapshot returns a deep copy of the entire registry state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Nodes:  make(map[string]NodeRecord, len(r.nodes)),
		Agents: make(map[string]AgentRecord, len(r.agents)),
	}
	for id, node := range r.nodes {
		snap.Nodes[id] = copyNode(node)
	}
	for id, agent := range r.agents {
		snap.Agents[id] = copyAgent(agent)
	}
	return snap
}

// SweepStale forces every non-offline entry whose heartbeat is older than
// timeout to offline and returns the changed ids, labelled "node:<id>" or
// "agent:<id>". It never promotes.
func (r *Registry) SweepStale(timeout time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := []string{}
	now := r.now()

	for id, node := range r.nodes {
		if node.Status != record.StatusOffline && now.Sub(node.LastHeartbeat) > timeout {
			node.Status = record.StatusOffline
			changed = append(changed, "node:"+id)
			r.log.Warn().Str("node_id", id).Msg("node marked offline: heartbeat stale")
		}
	}
	for id, agent := range r.agents {
		if agent.Status != record.StatusOffline && now.Sub(agent.LastHeartbeat) > timeout {
			agent.Status = record.StatusOffline
			changed = append(changed, "agent:"+id)
			r.log.Warn().Str("agent_id", id).Msg("agent marked offline: heartbeat stale")
		}
	}

	sort.Strings(changed)
	return changed
}

func copyNode(n *NodeRecord) NodeRecord {
	out := *n
	out.RegisteredAgents = append([]string{}, n.RegisteredAgents...)
	out.Metrics = make(map[string]float64, len(n.Metrics))
	for k, v := range n.Metrics {
		out.Metrics[k] = v
	}
	return out
}

func copyAgent(a *AgentRecord) AgentRecord {
	out := *a
	out.Metadata = make(map[string]string, len(a.Metadata))
	for k, v := range a.Metadata {
		out.Metadata[k] = v
	}
	return out
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
