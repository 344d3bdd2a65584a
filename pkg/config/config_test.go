package config

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/unillm/unillm/pkg/llm"
)

const sampleTOML = `
listen = ":11434"
proxy_url = "http://127.0.0.1:11111"

[keys.aliyun]
vendor = "aliyun"
api_key = "sk-aliyun"

[keys.google]
vendor = "gemini"
api_key = "AIza-google"
need_proxy = true

[keys.local]
vendor = "ollama"
base_url = "http://localhost:11434"

[models.aliyun-r1]
name = "deepseek-r1"
key = "aliyun"

[models."gemini-2.0-flash"]
name = "gemini-2.0-flash"
key = "google"

[models.qwen3]
name = "qwen3:8b"
key = "local"
`

var _ = Describe("Config", func() {
	Describe("Parse", func() {
		It("parses keys and models", func() {
			cfg, err := Parse([]byte(sampleTOML))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Listen).To(Equal(":11434"))
			Expect(cfg.Keys).To(HaveLen(3))
			Expect(cfg.Models).To(HaveLen(3))
			Expect(cfg.Keys["google"].NeedProxy).To(BeTrue())
		})

		It("fills the default listen address", func() {
			cfg, err := Parse([]byte("[keys]\n[models]\n"))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Listen).To(Equal(":11434"))
		})

		It("rejects invalid TOML", func() {
			_, err := Parse([]byte("listen = [unterminated"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("NewStore", func() {
		var cfg *Config

		BeforeEach(func() {
			var err error
			cfg, err = Parse([]byte(sampleTOML))
			Expect(err).NotTo(HaveOccurred())
		})

		It("resolves vendor defaults into profiles", func() {
			store, err := NewStore(cfg)
			Expect(err).NotTo(HaveOccurred())

			p, err := store.Profile("aliyun-r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Format).To(Equal(FormatOpenAI))
			Expect(p.UpstreamModel).To(Equal("deepseek-r1"))
			Expect(p.BaseURL).To(Equal("https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"))
			Expect(p.APIKey).To(Equal("sk-aliyun"))
			Expect(p.ProxyURL).To(BeEmpty())
		})

		It("routes need_proxy keys through the configured proxy", func() {
			store, err := NewStore(cfg)
			Expect(err).NotTo(HaveOccurred())

			p, err := store.Profile("gemini-2.0-flash")
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Format).To(Equal(FormatGemini))
			Expect(p.ProxyURL).To(Equal("http://127.0.0.1:11111"))
		})

		It("honors base_url overrides", func() {
			store, err := NewStore(cfg)
			Expect(err).NotTo(HaveOccurred())

			p, err := store.Profile("qwen3")
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Format).To(Equal(FormatOllama))
			Expect(p.BaseURL).To(Equal("http://localhost:11434"))
			Expect(p.UpstreamModel).To(Equal("qwen3:8b"))
		})

		It("aliases model ids with :latest for tag-normalizing clients", func() {
			store, err := NewStore(cfg)
			Expect(err).NotTo(HaveOccurred())

			p, err := store.Profile("aliyun-r1:latest")
			Expect(err).NotTo(HaveOccurred())
			Expect(p.ModelID).To(Equal("aliyun-r1"))
		})

		It("rejects a model referencing an unknown key", func() {
			cfg.Models["broken"] = ModelConfig{Name: "x", Key: "nope"}
			_, err := NewStore(cfg)
			Expect(err).To(MatchError(ContainSubstring("unknown key")))
		})

		It("rejects an unknown vendor", func() {
			cfg.Keys["weird"] = KeyConfig{Vendor: "weird", APIKey: "k"}
			cfg.Models["weird-model"] = ModelConfig{Name: "x", Key: "weird"}
			_, err := NewStore(cfg)
			Expect(err).To(MatchError(ContainSubstring("unknown vendor")))
		})

		It("requires base_url for vendors without a default endpoint", func() {
			cfg.Keys["local"] = KeyConfig{Vendor: "ollama"}
			_, err := NewStore(cfg)
			Expect(err).To(MatchError(ContainSubstring("requires base_url")))
		})

		It("requires proxy_url when a key sets need_proxy", func() {
			cfg.ProxyURL = ""
			_, err := NewStore(cfg)
			Expect(err).To(MatchError(ContainSubstring("proxy_url")))
		})
	})

	Describe("Store lookups", func() {
		var store *Store

		BeforeEach(func() {
			cfg, err := Parse([]byte(sampleTOML))
			Expect(err).NotTo(HaveOccurred())
			store, err = NewStore(cfg)
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns ErrConfigurationMissing for unknown models", func() {
			_, err := store.Profile("no-such-model")
			Expect(err).To(MatchError(llm.ErrConfigurationMissing))
		})

		It("lists exposed models without the :latest aliases", func() {
			Expect(store.Models()).To(Equal([]string{"aliyun-r1", "gemini-2.0-flash", "qwen3"}))
		})
	})
})
