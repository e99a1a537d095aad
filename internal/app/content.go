package app

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hylla/deliveryhub/internal/domain"
)

// CodeTemplate renders the generated code lines for one story id.
type CodeTemplate func(storyID string) []string

// Content holds every canned string the simulation plays back.
type Content struct {
	Stories        []domain.StoryInput
	ReasoningSteps []string
	CodeTemplate   CodeTemplate
	BRD            string
	TAP            string
	Phases         []domain.Phase
	Scenarios      []domain.Scenario
	AgentOutputs   map[string]string
	DefaultOutput  string
}

// DefaultContent returns the built-in sample content.
func DefaultContent() Content {
	return Content{
		Stories: []domain.StoryInput{
			{
				ID:          "S-101",
				Title:       "User authentication flow",
				Description: "As a user, I can sign up, login, and reset my password.",
				AcceptanceCriteria: []string{
					"Sign-up creates a user record",
					"Login returns session token",
					"Password reset via email works",
				},
			},
			{
				ID:          "S-102",
				Title:       "Design product builder",
				Description: "Users can create and preview custom product designs.",
				AcceptanceCriteria: []string{
					"Design saved to DB",
					"Preview shows accurate rendering",
					"Design can be added to cart",
				},
			},
			{
				ID:          "S-103",
				Title:       "Payment gateway integration",
				Description: "Integrate secure payment with retries.",
				AcceptanceCriteria: []string{
					"Payment success recorded",
					"Retry mechanism for transient failures",
					"Refund endpoint available for admins",
				},
			},
		},
		ReasoningSteps: []string{
			"User clicked Approve — agent starting BRD/TAP reasoning (simulated)...",
			"Agent: Summarizing BRD...",
			"Agent: Extracting epics and candidate stories...",
			"Agent: Formatting stories for backlog...",
		},
		CodeTemplate: DefaultCodeTemplate,
		BRD: "Business Requirements Document\n" +
			"- Allow users to design products in web UI\n" +
			"- Secure checkout and payment\n" +
			"- Admin dashboard with analytics and refunds\n",
		TAP: "Technical Architecture Plan\n" +
			"- Frontend: React SPA\n" +
			"- Backend: FastAPI microservices\n" +
			"- DB: PostgreSQL (demo: SQLite)\n" +
			"- Agents: Reasoning model (BRD) + coding model (code gen)\n",
		Phases: []domain.Phase{
			{Name: "Discover", Agents: []string{"Requirements Intelligence", "Stakeholder Mapper", "Domain Terminology Extractor", "User Journey Synthesizer", "Impact Estimator", "Scope Minimizer"}},
			{Name: "Design", Agents: []string{"Architecture Copilot", "UX Generator", "Component Pattern Builder", "Data Model Advisor", "API Contract Designer", "Design Token Extractor"}},
			{Name: "Engineer", Agents: []string{"Code Quality Sentinel", "API Builder", "Test Case Generator", "Dependency Auditor", "CI/CD Optimizer", "Performance Profiler"}},
			{Name: "Secure", Agents: []string{"Threat Analyzer", "Compliance Validator", "Secrets Guardian", "Access Matrix Assessor", "Policy Enforcer", "Jailbreak Detector"}},
		},
		Scenarios: []domain.Scenario{
			{ID: "payments_brd", Title: "Payments BRD Generation", Agents: []string{"Requirements Intelligence", "Architecture Copilot", "Code Quality Sentinel", "Threat Analyzer"}, Summary: "BRD for payments modernization and reconciliation."},
			{ID: "kyc_migration", Title: "KYC Modernization", Agents: []string{"Stakeholder Mapper", "UX Generator", "Test Case Generator", "Compliance Validator"}, Summary: "Migrate KYC flows with UX improvements and compliance."},
			{ID: "core_bank", Title: "Core Banking Migration", Agents: []string{"Domain Terminology Extractor", "Data Model Advisor", "API Builder", "Policy Enforcer"}, Summary: "Core ledger migration plan and acceptance criteria."},
			{ID: "fraud_rollout", Title: "Fraud Detection Rollout", Agents: []string{"User Journey Synthesizer", "Component Pattern Builder", "Performance Profiler", "Threat Analyzer"}, Summary: "Real-time fraud detection rollout plan."},
		},
		AgentOutputs: map[string]string{
			"Requirements Intelligence": "Summarizing stakeholder goals: reduce reconciliation time and improve auditability.",
			"Architecture Copilot":      "Proposed architecture: event-driven processors with idempotency and reconciliation service.",
			"Code Quality Sentinel":     "Static analysis highlights: 3 medium issues, 12 low-risk items.",
			"Threat Analyzer":           "Top threats: replay, injection, privilege escalation. Mitigations suggested.",
			"Stakeholder Mapper":        "Stakeholders: Product, Ops, Risk, Legal. Interview templates created.",
			"UX Generator":              "Wireframe: single-step payment with inline validation and clear failure states.",
			"Jailbreak Detector":        "Simulated malicious pattern detected and blocked at gateway.",
		},
		DefaultOutput: "Simulated output for agent - summarizing key points and action items.",
	}
}

// DefaultCodeTemplate renders the six-line handler stub streamed during code generation.
func DefaultCodeTemplate(storyID string) []string {
	return []string{
		fmt.Sprintf("def %s_handler(user, payload):", strings.ToLower(storyID)),
		fmt.Sprintf("    # Generated code for %s", storyID),
		"    if user is None:",
		`        raise ValueError("invalid user")`,
		"    # process payload",
		fmt.Sprintf(`    return {"status":"ok", "id":"%s-tx"}`, storyID),
	}
}

// AgentOutput returns the canned output for one agent, falling back to the default text.
func (c Content) AgentOutput(agent string) string {
	if out, ok := c.AgentOutputs[agent]; ok {
		return out
	}
	return c.DefaultOutput
}

// Scenario looks up a scenario by id.
func (c Content) Scenario(id string) (domain.Scenario, bool) {
	idx := slices.IndexFunc(c.Scenarios, func(s domain.Scenario) bool {
		return s.ID == strings.TrimSpace(id)
	})
	if idx < 0 {
		return domain.Scenario{}, false
	}
	return c.Scenarios[idx], true
}

// SampleStories validates and returns the configured sample set.
func (c Content) SampleStories() ([]domain.Story, error) {
	out := make([]domain.Story, 0, len(c.Stories))
	for _, in := range c.Stories {
		story, err := domain.NewStory(in)
		if err != nil {
			return nil, fmt.Errorf("sample story %q: %w", in.ID, err)
		}
		out = append(out, story)
	}
	return out, nil
}

// withDefaults fills empty content fields from DefaultContent.
func (c Content) withDefaults() Content {
	def := DefaultContent()
	if len(c.Stories) == 0 {
		c.Stories = def.Stories
	}
	if len(c.ReasoningSteps) == 0 {
		c.ReasoningSteps = def.ReasoningSteps
	}
	if c.CodeTemplate == nil {
		c.CodeTemplate = def.CodeTemplate
	}
	if c.BRD == "" {
		c.BRD = def.BRD
	}
	if c.TAP == "" {
		c.TAP = def.TAP
	}
	if len(c.Phases) == 0 {
		c.Phases = def.Phases
	}
	if len(c.Scenarios) == 0 {
		c.Scenarios = def.Scenarios
	}
	if c.AgentOutputs == nil {
		c.AgentOutputs = def.AgentOutputs
	}
	if c.DefaultOutput == "" {
		c.DefaultOutput = def.DefaultOutput
	}
	return c
}
