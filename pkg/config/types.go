package config

// Config represents the gateway configuration stored as config.toml.
// The TOML layout uses one [keys.<id>] section per upstream credential and
// one [models.<id>] section per exposed model. The whole structure is loaded
// once at startup and never mutated afterwards.
type Config struct {
	// Listen is the address the gateway listens on (e.g. ":11434").
	Listen string `toml:"listen,omitempty"`

	// ProxyURL is the outbound HTTP proxy used by keys with need_proxy set.
	ProxyURL string `toml:"proxy_url,omitempty"`

	// Keys maps a credential id to its upstream provider settings,
	// e.g. keys.aliyun = { vendor = "aliyun", api_key = "sk-..." }.
	Keys map[string]KeyConfig `toml:"keys"`

	// Models maps an exposed model id to its invocation details,
	// e.g. models.aliyun-r1 = { name = "deepseek-r1", key = "aliyun" }.
	Models map[string]ModelConfig `toml:"models"`
}

// KeyConfig holds one upstream credential and where it points.
type KeyConfig struct {
	// Vendor selects the wire format and default base URL. One of:
	// aliyun, tencent, bytedance, deepseek, siliconflow, gemini, ollama,
	// custom.
	Vendor string `toml:"vendor"`

	// APIKey is the credential sent to the upstream provider.
	APIKey string `toml:"api_key"`

	// BaseURL overrides the vendor default endpoint. Required for the
	// "custom" and "ollama" vendors, optional otherwise.
	BaseURL string `toml:"base_url,omitempty"`

	// NeedProxy routes this key's requests through the top-level ProxyURL.
	NeedProxy bool `toml:"need_proxy,omitempty"`
}

// ModelConfig maps an exposed model id to an upstream model behind a key.
type ModelConfig struct {
	// Name is the provider-side model name used in upstream requests.
	Name string `toml:"name"`

	// Key references an entry in Config.Keys.
	Key string `toml:"key"`
}

// Profile is the resolved, read-only record the gateway consumes per
// exchange: everything needed to reach and authenticate to one upstream.
type Profile struct {
	// ModelID is the inbound model id the client asked for.
	ModelID string

	// UpstreamModel is the provider-side model name.
	UpstreamModel string

	// Format is the upstream wire format: "openai", "gemini" or "ollama".
	Format string

	// BaseURL is the fully-resolved upstream endpoint.
	BaseURL string

	// APIKey authenticates the upstream request.
	APIKey string

	// ProxyURL is the outbound proxy for this profile, empty for direct.
	ProxyURL string
}
