package providers

// Provider names form a closed set; adding a provider means adding a
// Dispatcher implementation and extending the model table below.
const (
	ProviderGoogle    = "google"
	ProviderDashScope = "dashscope"
)

// modelProviders statically maps model identifiers to the provider backing
// them. The scheduler resolves a job's provider through this table to pick the
// dispatcher variant and the credential it requires.
var modelProviders = map[string]string{
	"veo-3.0-generate":       ProviderGoogle,
	"veo-2.0-generate":       ProviderGoogle,
	"gemini-2.5-flash-image": ProviderGoogle,
	"qwen-image-plus":        ProviderDashScope,
	"wan2.2-t2i-flash":       ProviderDashScope,
}

// Resolve returns the provider name backing a model.
func Resolve(model string) (string, bool) {
	provider, ok := modelProviders[model]
	return provider, ok
}

// Known reports whether name is a recognized provider.
func Known(name string) bool {
	return name == ProviderGoogle || name == ProviderDashScope
}

// Names lists all provider names.
func Names() []string {
	return []string{ProviderGoogle, ProviderDashScope}
}
