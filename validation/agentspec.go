package validation

import "regexp"

// Agent types and roles known to the agent framework.
var (
	AgentTypes = []string{
		"data_retrieval", "calculation", "validation",
		"orchestration", "monitoring", "transformation",
	}
	AgentRoles = []string{
		"primary_agent", "secondary_agent", "support_agent", "orchestrator",
	}
)

const noScenarios = "No test scenarios defined"

var semverRe = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// AgentSpecSchema returns the schema for YAML agent specifications.
func AgentSpecSchema() Schema {
	str := []Kind{KindString}
	mapping := []Kind{KindMap}
	return Schema{Fields: []FieldSpec{
		{Path: "agent_name", Kinds: str, Required: true, Tracked: true},
		{Path: "agent_type", Kinds: str, Required: true, Tracked: true, Enum: AgentTypes},
		{Path: "version", Kinds: str, Required: true, Tracked: true, Pattern: semverRe, PatternHint: "MAJOR.MINOR.PATCH (e.g. '1.0.0')"},
		{Path: "description", Kinds: str, Required: true, Tracked: true},
		{Path: "role", Kinds: str, Required: true, Tracked: true, Enum: AgentRoles},
		{
			Path: "capabilities", Kinds: []Kind{KindList, KindMap}, Required: true, Tracked: true,
			Records: &RecordSpec{NameKey: "name", AllowStrings: true},
		},
		{Path: "workflow", Kinds: mapping, Required: true, Tracked: true},
		{Path: "workflow.steps", Kinds: mapping, Strict: true, Recommended: true},
		{Path: "dependencies", Kinds: mapping, Required: true, Tracked: true, EmptyNote: "No dependencies defined"},

		{Path: "data_sources", Kinds: []Kind{KindList, KindMap}, Tracked: true},
		{Path: "tools", Kinds: []Kind{KindList}, Tracked: true},
		{Path: "performance", Kinds: mapping, Tracked: true, AbsentNote: "Performance settings not defined"},
		{Path: "logging", Kinds: mapping, Tracked: true, AbsentNote: "Logging configuration not defined"},
		{Path: "testing", Kinds: mapping, Strict: true, Tracked: true, AbsentNote: noScenarios},
		{
			Path: "testing.test_scenarios", Kinds: []Kind{KindList}, Strict: true,
			Records:    &RecordSpec{NameKey: "name", AllowStrings: true},
			AbsentNote: noScenarios,
		},
	}}
}

// NewAgentSpecValidator returns a SchemaValidator for agent specifications.
func NewAgentSpecValidator() *SchemaValidator {
	return NewSchemaValidator(AgentSpecSchema())
}
