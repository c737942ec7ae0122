package workflow

import (
	"slices"

	"github.com/pgagents/pgagents/internal/agent"
	"github.com/pgagents/pgagents/internal/llm"
	"github.com/pgagents/pgagents/internal/tools"
)

const (
	SupportAgentName     = "support_agent"
	SchemaAgentName      = "schema_agent"
	ServiceAgentName     = "service_agent"
	ProductInfoAgentName = "product_info_agent"
)

const SupportInstructions = "You are a support agent. Analyze the user's request and route to the appropriate specialist:\n" +
	"- For getting database schema: call handoff_to_schema_agent\n" +
	"- For querying database: call handoff_to_service_agent\n" +
	"- If not able to help, let the user know of the reason."

const SchemaInstructions = "You are responsible for providing database schema information."

const ServiceInstructions = "You are a read-only agent for company's product database. " +
	"Use the schema information provided by the schema agent to answer user questions about the database. " +
	"You can not add any new data to the database."

const ProductInfoInstructions = "You are a read-only agent for company's product database."

// Agents is the support/schema/service trio sharing one gateway.
type Agents struct {
	Support *agent.Agent
	Schema  *agent.Agent
	Service *agent.Agent
}

func NewAgents(model llm.LLM, gw tools.Gateway, opts ...agent.Option) Agents {
	schemaTools := tools.NewRegistry()
	tools.RegisterSchemaTool(schemaTools, gw)
	queryTools := tools.NewRegistry()
	tools.RegisterQueryTool(queryTools, gw)

	return Agents{
		Support: agent.New(SupportAgentName, SupportInstructions, model,
			withOptions(opts, agent.WithHandoffs(SchemaAgentName, ServiceAgentName))...),
		Schema: agent.New(SchemaAgentName, SchemaInstructions, model,
			withOptions(opts, agent.WithTools(schemaTools))...),
		Service: agent.New(ServiceAgentName, ServiceInstructions, model,
			withOptions(opts, agent.WithTools(queryTools))...),
	}
}

// Sequential is the default pipeline: schema agent, then service agent.
func (a Agents) Sequential() *Sequential {
	return NewSequential(a.Schema, a.Service)
}

func (a Agents) Route() *Router {
	return NewRouter(a.Support, a.Schema, a.Service)
}

// NewProductInfoAgent builds the agent bound only to the product lookup tool.
func NewProductInfoAgent(model llm.LLM, finder tools.ProductFinder, opts ...agent.Option) *agent.Agent {
	registry := tools.NewRegistry()
	tools.RegisterProductTool(registry, finder)
	return agent.New(ProductInfoAgentName, ProductInfoInstructions, model, withOptions(opts, agent.WithTools(registry))...)
}

func withOptions(base []agent.Option, extra ...agent.Option) []agent.Option {
	return slices.Concat(base, extra)
}
