package core

import "strings"

// ResolveAgentMode maps an agent's declared modes onto the effective mode for
// one inbound message. Resolution order:
//
//  1. an agent with zero modes always resolves to base
//  2. with a role, the first mode whose mapping contains the exact
//     "<channel>:<role>" composite wins, even over a bare-channel mode
//     declared earlier
//  3. otherwise the first mode whose mapping contains the channel string
//  4. otherwise base
//
// Channel strings are opaque: callers may pass a composite such as
// "slack:C024BE91L" as the channel itself and map modes per conversation.
// A matched mode with an empty allowlist inherits the agent's base allowlist.
func ResolveAgentMode(agent Agent, channel, role string) ModeResolution {
	if len(agent.Modes) == 0 {
		return baseResolution(agent)
	}

	channel = strings.TrimSpace(channel)
	if role = strings.TrimSpace(role); role != "" {
		composite := channel + ":" + role
		for _, mode := range agent.Modes {
			if modeClaims(mode, composite) {
				return resolutionForMode(agent, mode)
			}
		}
	}

	for _, mode := range agent.Modes {
		if modeClaims(mode, channel) {
			return resolutionForMode(agent, mode)
		}
	}

	return baseResolution(agent)
}

func modeClaims(mode AgentMode, value string) bool {
	if value == "" {
		return false
	}
	for _, pattern := range mode.ChannelMapping {
		if strings.TrimSpace(pattern) == value {
			return true
		}
	}
	return false
}

func resolutionForMode(agent Agent, mode AgentMode) ModeResolution {
	allowlist := mode.ToolAllowlist
	if len(allowlist) == 0 {
		allowlist = agent.ToolAllowlist
	}
	return ModeResolution{
		Mode:            mode.Name,
		ToolAllowlist:   allowlist,
		PromptOverrides: mode.PromptOverrides,
		SubTools:        mode.SubTools,
	}
}

func baseResolution(agent Agent) ModeResolution {
	return ModeResolution{
		Mode:          ModeBase,
		ToolAllowlist: agent.ToolAllowlist,
		SubTools:      []string{},
	}
}
