package config

import (
	"maps"
	"slices"

	"github.com/BaSui01/agentflow-a2a/agent/protocol/a2a"
	"github.com/BaSui01/agentflow-a2a/types"
)

// BuildCard 由 Agent 配置构建对外发布的 AgentCard. tools 是实际注册的工具名.
func (c *Config) BuildCard(tools []string) (*a2a.AgentCard, error) {
	ac := c.Agent
	card := a2a.NewAgentCard(ac.Name, ac.Description, ac.Version, ac.ID)
	card.Capabilities.Async = true
	card.Capabilities.Tools = slices.Clone(tools)
	if card.Capabilities.Tools == nil {
		card.Capabilities.Tools = []string{}
	}
	if ac.MessagePath != "" {
		if err := checkMessagePath(ac.MessagePath); err != nil {
			return nil, types.NewError(types.ErrConfiguration, "invalid agent card").WithCause(err)
		}
		card.Endpoints.Message.Path = ac.MessagePath
	}
	card.Endpoints.Message.Description = "Send messages to the " + ac.Name + " agent"
	card.Model = a2a.ModelInfo{
		Name:     ac.ModelName,
		Provider: ac.ModelProvider,
		Backend:  ac.ModelBackend,
	}
	if len(ac.Metadata) > 0 {
		card.Metadata = maps.Clone(ac.Metadata)
	}
	if err := card.Validate(); err != nil {
		return nil, types.NewError(types.ErrConfiguration, "invalid agent card").WithCause(err)
	}
	return card, nil
}
