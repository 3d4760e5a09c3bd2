package resilience

import (
	"context"

	"github.com/MrWong99/skywave/pkg/provider/llm"
)

// LLMChain implements [llm.Provider] over a failover [Chain] of LLM
// backends. The first backend added is the primary; the rest are tried in
// order when everything before them fails.
type LLMChain struct {
	chain *Chain[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMChain)(nil)

// NewLLMChain creates an empty LLM failover chain. At least one backend must
// be registered with [LLMChain.Add] before use.
func NewLLMChain(cfg ChainConfig) *LLMChain {
	if cfg.Kind == "" {
		cfg.Kind = "llm"
	}
	return &LLMChain{chain: NewChain[llm.Provider](cfg)}
}

// Add registers a backend. Backends are tried in registration order.
func (c *LLMChain) Add(name string, p llm.Provider) {
	c.chain.Add(name, p)
}

// Complete sends the request to the first healthy backend and returns its
// response.
func (c *LLMChain) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Run(ctx, c.chain, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Capabilities returns the primary's capabilities. Static metadata does not
// participate in failover.
func (c *LLMChain) Capabilities() llm.ModelCapabilities {
	if p, ok := c.chain.Primary(); ok {
		return p.Capabilities()
	}
	return llm.ModelCapabilities{}
}
