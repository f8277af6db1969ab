package core

import (
	"context"
	"fmt"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

// AgentChannelRouter picks the agent that claims an inbound channel. It scans
// a tenant's active agents in listing order and stops at the first non-base
// mode resolution; zero-mode agents never participate.
type AgentChannelRouter struct {
	agents AgentStore
	logger Logger
}

func NewAgentChannelRouter(agents AgentStore, logger Logger) *AgentChannelRouter {
	return &AgentChannelRouter{
		agents: agents,
		logger: glog.Ensure(logger),
	}
}

// ResolveAgent returns the first active agent whose modes claim the channel
// (and role, when given). ok is false when no agent claims it; that is a
// routing outcome, not an error.
func (r *AgentChannelRouter) ResolveAgent(ctx context.Context, tenantID, channel, role string) (AgentMatch, bool, error) {
	if r == nil || r.agents == nil {
		return AgentMatch{}, false, fmt.Errorf("core: agent store is not configured")
	}
	agents, err := r.agents.ListActive(ctx, tenantID)
	if err != nil {
		return AgentMatch{}, false, err
	}
	for _, agent := range agents {
		if len(agent.Modes) == 0 {
			continue
		}
		resolution := ResolveAgentMode(agent, channel, role)
		if resolution.Base() {
			continue
		}
		return AgentMatch{Agent: agent, Resolution: resolution}, true, nil
	}
	return AgentMatch{}, false, nil
}

// CheckChannelCollision reports the first channel pattern in candidate that
// another active agent already claims, scanning candidate patterns in
// declaration order. The excluded agent is the one being edited. A nil result
// means the mappings are disjoint.
func (r *AgentChannelRouter) CheckChannelCollision(ctx context.Context, tenantID, excludeAgentID string, candidate []AgentMode) (*ChannelCollision, error) {
	if r == nil || r.agents == nil {
		return nil, fmt.Errorf("core: agent store is not configured")
	}
	agents, err := r.agents.ListActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	for _, mode := range candidate {
		for _, pattern := range mode.ChannelMapping {
			pattern = strings.TrimSpace(pattern)
			if pattern == "" {
				continue
			}
			for _, agent := range agents {
				if agent.ID == excludeAgentID {
					continue
				}
				if agentClaims(agent, pattern) {
					return &ChannelCollision{
						AgentID:   agent.ID,
						AgentName: agent.Name,
						Channel:   pattern,
					}, nil
				}
			}
		}
	}
	return nil, nil
}

func agentClaims(agent Agent, pattern string) bool {
	for _, mode := range agent.Modes {
		if modeClaims(mode, pattern) {
			return true
		}
	}
	return false
}
