package response

import "github.com/NeuralTrust/gateguard/pkg/ratelimit"

type ListRulesOutput struct {
	Rules []RuleOutput `json:"rules"`
}

type RuleOutput struct {
	Name        string   `json:"name"`
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Window      string   `json:"window"`
	WindowMs    int64    `json:"window_ms"`
	MaxRequests int      `json:"max_requests"`
}

func NewListRulesOutput(rules []ratelimit.Rule) ListRulesOutput {
	out := ListRulesOutput{Rules: make([]RuleOutput, 0, len(rules))}
	for _, r := range rules {
		methods := r.Methods
		if methods == nil {
			methods = []string{}
		}
		out.Rules = append(out.Rules, RuleOutput{
			Name:        r.Name,
			Path:        r.Path,
			Methods:     methods,
			Window:      r.Window.String(),
			WindowMs:    r.Window.Milliseconds(),
			MaxRequests: r.MaxRequests,
		})
	}
	return out
}
