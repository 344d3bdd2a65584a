package config

// Wire format names, one per decoder variant.
const (
	FormatOpenAI = "openai"
	FormatGemini = "gemini"
	FormatOllama = "ollama"
)

const defaultListen = ":11434"

// vendorInfo pins a vendor name to its wire format and default endpoint.
type vendorInfo struct {
	format  string
	baseURL string
}

// vendors is the closed set of known upstream vendors. The OpenAI-compatible
// ones differ only in their endpoint; gemini and ollama differ in wire
// format as well.
var vendors = map[string]vendorInfo{
	"deepseek":    {FormatOpenAI, "https://api.deepseek.com/chat/completions"},
	"aliyun":      {FormatOpenAI, "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"},
	"tencent":     {FormatOpenAI, "https://api.lkeap.cloud.tencent.com/v1/chat/completions"},
	"bytedance":   {FormatOpenAI, "https://ark.cn-beijing.volces.com/api/v3/chat/completions"},
	"siliconflow": {FormatOpenAI, "https://api.siliconflow.cn/v1/chat/completions"},
	"gemini":      {FormatGemini, "https://generativelanguage.googleapis.com/v1beta"},

	// No sensible default endpoint; base_url is required.
	"custom": {FormatOpenAI, ""},
	"ollama": {FormatOllama, ""},
}

// VendorNames returns the sorted list of recognized vendor names.
func VendorNames() []string {
	return []string{"aliyun", "bytedance", "custom", "deepseek", "gemini", "ollama", "siliconflow", "tencent"}
}

// NewDefaultConfig returns a Config with sane defaults and empty key/model
// maps. This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Listen: defaultListen,
		Keys:   map[string]KeyConfig{},
		Models: map[string]ModelConfig{},
	}
}
