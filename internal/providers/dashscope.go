package providers

const (
	dashscopeDefaultBase  = "https://dashscope-intl.aliyuncs.com/compatible-mode/v1"
	dashscopeDefaultModel = "qwen3-max"
)

// NewDashScopeProvider returns an OpenAI-compatible provider pointed
// at the DashScope compatible-mode endpoint.
func NewDashScopeProvider(apiKey, apiBase, defaultModel string) *OpenAIProvider {
	if apiBase == "" {
		apiBase = dashscopeDefaultBase
	}
	if defaultModel == "" {
		defaultModel = dashscopeDefaultModel
	}
	return NewOpenAIProvider("dashscope", apiKey, apiBase, defaultModel)
}
