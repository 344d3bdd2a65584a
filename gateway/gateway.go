// Package gateway is the protocol-normalization server. It accepts chat
// requests in the canonical (Ollama-compatible) schema, dispatches them to
// heterogeneous upstream LLM providers, and streams the response back as a
// uniform NDJSON frame sequence regardless of which provider served it.
package gateway

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"go.uber.org/zap"

	"github.com/unillm/unillm/pkg/config"
	"github.com/unillm/unillm/pkg/llm/provider"
)

// Gateway is the normalization server. All fields are set at construction
// and read-only afterwards; per-exchange state lives on the handler stack.
type Gateway struct {
	config    Config
	store     *config.Store
	logger    *zap.Logger
	server    *fiber.App
	providers map[string]provider.Provider

	// clients maps a proxy URL to its HTTP client; the empty key is the
	// direct client. Built once at startup from the profile store.
	clients map[string]*http.Client
}

// New creates a Gateway serving the models in store.
func New(cfg Config, store *config.Store, logger *zap.Logger) (*Gateway, error) {
	providers := make(map[string]provider.Provider)
	for _, format := range provider.SupportedFormats() {
		prov, err := provider.New(format)
		if err != nil {
			return nil, fmt.Errorf("could not create provider: %w", err)
		}
		providers[format] = prov
	}

	clients, err := buildClients(store, cfg.upstreamTimeout())
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Enable streaming
		StreamRequestBody: true,
	})

	// Add compression middleware to handle responses
	app.Use(compress.New())

	g := &Gateway{
		config:    cfg,
		store:     store,
		logger:    logger,
		server:    app,
		providers: providers,
		clients:   clients,
	}

	app.Get("/", g.handleRoot)
	app.Get("/api/tags", g.handleTags)
	app.Post("/api/chat", g.handleChat)

	return g, nil
}

// buildClients constructs one HTTP client per distinct outbound proxy, plus
// the direct client. Upstream connections are never pooled across a
// cancelled stream, so each client keeps default transport pooling only for
// cleanly finished exchanges.
func buildClients(store *config.Store, timeout time.Duration) (map[string]*http.Client, error) {
	clients := map[string]*http.Client{
		"": {Timeout: timeout},
	}
	for _, proxyURL := range store.ProxyURLs() {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy_url %q: %w", proxyURL, err)
		}
		clients[proxyURL] = &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{Proxy: http.ProxyURL(u)},
		}
	}
	return clients, nil
}

// clientFor returns the HTTP client matching the profile's proxy setting.
func (g *Gateway) clientFor(profile config.Profile) *http.Client {
	if c, ok := g.clients[profile.ProxyURL]; ok {
		return c
	}
	return g.clients[""]
}

// Run starts the server on the configured listen address.
func (g *Gateway) Run() error {
	addr := g.config.ListenAddr
	if addr == "" {
		addr = g.store.Listen()
	}

	g.logger.Info("starting gateway server",
		zap.String("listen", addr),
		zap.Strings("models", g.store.Models()),
	)

	return g.server.Listen(addr)
}

// RunWithListener starts the server using the provided listener.
func (g *Gateway) RunWithListener(listener net.Listener) error {
	g.logger.Info("starting gateway server",
		zap.String("listen", listener.Addr().String()),
		zap.Strings("models", g.store.Models()),
	)

	return g.server.Listener(listener)
}

// Close gracefully shuts down the server.
func (g *Gateway) Close() error {
	return g.server.Shutdown()
}

// handleRoot answers the liveness probe Ollama clients issue before their
// first request.
func (g *Gateway) handleRoot(c *fiber.Ctx) error {
	return c.SendString("Ollama is running")
}

// tagModel is one entry of the /api/tags listing.
type tagModel struct {
	Name       string `json:"name"`
	Model      string `json:"model"`
	ModifiedAt string `json:"modified_at"`
	Size       int64  `json:"size"`
	Digest     string `json:"digest"`
}

type tagsResponse struct {
	Models []tagModel `json:"models"`
}

// handleTags lists the configured models in the shape Ollama clients expect
// from /api/tags. Size and digest have no local meaning; they are zeroed.
func (g *Gateway) handleTags(c *fiber.Ctx) error {
	now := time.Now().Format(time.RFC3339)
	resp := tagsResponse{Models: []tagModel{}}
	for _, id := range g.store.Models() {
		resp.Models = append(resp.Models, tagModel{
			Name:       id,
			Model:      id,
			ModifiedAt: now,
		})
	}
	return c.JSON(resp)
}
