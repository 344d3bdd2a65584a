package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/unillm/unillm/pkg/llm"
)

// Store is the read-only profile lookup handed to the gateway. It is built
// once at startup from a Config; after that no mutation path exists, so it
// needs no synchronization.
type Store struct {
	listen   string
	profiles map[string]Profile
}

// Load reads and parses the TOML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse parses raw TOML bytes into a Config, filling defaults for omitted
// scalar fields.
func Parse(data []byte) (*Config, error) {
	cfg := NewDefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Listen == "" {
		cfg.Listen = defaultListen
	}

	return cfg, nil
}

// NewStore validates cfg and resolves every model into a Profile.
// Each model id is also aliased with a ":latest" suffix so clients that
// normalize Ollama tags (e.g. OpenWebUI) resolve the same profile.
func NewStore(cfg *Config) (*Store, error) {
	profiles := make(map[string]Profile, 2*len(cfg.Models))

	for modelID, model := range cfg.Models {
		key, ok := cfg.Keys[model.Key]
		if !ok {
			return nil, fmt.Errorf("model %q references unknown key %q", modelID, model.Key)
		}

		vendor, ok := vendors[key.Vendor]
		if !ok {
			return nil, fmt.Errorf("key %q has unknown vendor %q (supported: %s)",
				model.Key, key.Vendor, strings.Join(VendorNames(), ", "))
		}

		baseURL := key.BaseURL
		if baseURL == "" {
			baseURL = vendor.baseURL
		}
		if baseURL == "" {
			return nil, fmt.Errorf("key %q (vendor %q) requires base_url", model.Key, key.Vendor)
		}

		name := model.Name
		if name == "" {
			name = modelID
		}

		var proxyURL string
		if key.NeedProxy {
			if cfg.ProxyURL == "" {
				return nil, fmt.Errorf("key %q sets need_proxy but no proxy_url is configured", model.Key)
			}
			proxyURL = cfg.ProxyURL
		}

		profile := Profile{
			ModelID:       modelID,
			UpstreamModel: name,
			Format:        vendor.format,
			BaseURL:       baseURL,
			APIKey:        key.APIKey,
			ProxyURL:      proxyURL,
		}

		profiles[modelID] = profile
		if !strings.Contains(modelID, ":") {
			profiles[modelID+":latest"] = profile
		}
	}

	return &Store{
		listen:   cfg.Listen,
		profiles: profiles,
	}, nil
}

// Profile returns the resolved profile for the given model id.
// Unknown ids yield llm.ErrConfigurationMissing.
func (s *Store) Profile(modelID string) (Profile, error) {
	p, ok := s.profiles[modelID]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", llm.ErrConfigurationMissing, modelID)
	}
	return p, nil
}

// Models returns the sorted list of exposed model ids, excluding the
// ":latest" aliases.
func (s *Store) Models() []string {
	models := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		if strings.HasSuffix(id, ":latest") {
			continue
		}
		models = append(models, id)
	}
	sort.Strings(models)
	return models
}

// ProxyURLs returns the distinct outbound proxy URLs used by any profile,
// so HTTP clients can be built once at startup.
func (s *Store) ProxyURLs() []string {
	seen := make(map[string]struct{})
	for _, p := range s.profiles {
		if p.ProxyURL != "" {
			seen[p.ProxyURL] = struct{}{}
		}
	}
	urls := make([]string, 0, len(seen))
	for u := range seen {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// Listen returns the configured listen address.
func (s *Store) Listen() string {
	return s.listen
}
