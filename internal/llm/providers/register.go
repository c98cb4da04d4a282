// Package providers adapts hosted model SDKs to llm.Provider.
package providers

import "github.com/gosuda/deskchat/internal/llm"

// RegisterAll adds every built-in provider to reg.
func RegisterAll(reg *llm.Registry) {
	reg.Register("anthropic", NewAnthropic)
	reg.Register("openai", NewOpenAI)
}
