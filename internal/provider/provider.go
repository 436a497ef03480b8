// File: internal/provider/provider.go
// Description: Decision-source registry. Providers are registered under a
// canonical name with default connection settings; aliases map the names
// users actually type (claude, qwen, kimi...) onto the canonical entries.
// The registry is a plain value wired in during composition - there is no
// package-level instance to mutate from a distance.

package provider

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vantrigo/deskhand/api/schemas"
)

// Default request budgets. Local models get a longer leash because cold
// loads routinely exceed a minute.
const (
	defaultHTTPTimeout   = 60 * time.Second
	defaultOllamaTimeout = 120 * time.Second
)

// defaultTemperature matches the sampling temperature the planning prompt
// was tuned against.
const defaultTemperature = 0.7

// Settings carries the connection parameters for one provider. Zero fields
// fall back to the registry defaults for the provider's canonical name.
// APIKey wins over APIKeyEnv when both are present.
type Settings struct {
	APIKey      string
	APIKeyEnv   string
	BaseURL     string
	Model       string
	VisionModel string
	Timeout     time.Duration
}

// resolveKey returns the effective API key, consulting the environment when
// no literal key is set.
func (s Settings) resolveKey() string {
	if s.APIKey != "" {
		return s.APIKey
	}
	if s.APIKeyEnv != "" {
		return os.Getenv(s.APIKeyEnv)
	}
	return ""
}

// withDefaults fills zero fields from d.
func (s Settings) withDefaults(d Settings) Settings {
	if s.APIKey == "" {
		s.APIKey = d.APIKey
	}
	if s.APIKeyEnv == "" {
		s.APIKeyEnv = d.APIKeyEnv
	}
	if s.BaseURL == "" {
		s.BaseURL = d.BaseURL
	}
	if s.Model == "" {
		s.Model = d.Model
	}
	if s.VisionModel == "" {
		s.VisionModel = d.VisionModel
	}
	if s.Timeout <= 0 {
		s.Timeout = d.Timeout
	}
	return s
}

// visionModel returns the model used for frame-bearing requests, falling
// back to the text model when no dedicated vision model is configured.
func (s Settings) visionModel() string {
	if s.VisionModel != "" {
		return s.VisionModel
	}
	return s.Model
}

// Factory builds a DecisionSource from resolved settings.
type Factory func(Settings, *zap.Logger) (schemas.DecisionSource, error)

// Registry maps provider names to factories and default settings. Register
// and RegisterAlias are meant to run during composition; concurrent reads
// after that point are safe, concurrent mutation is not.
type Registry struct {
	factories map[string]Factory
	defaults  map[string]Settings
	aliases   map[string]string
}

// NewRegistry returns a registry pre-loaded with the built-in providers:
// gemini, openai, anthropic, ollama, and the OpenAI-compatible family
// (deepseek, dashscope, moonshot, zhipu, minimax, volcengine).
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		defaults:  make(map[string]Settings),
		aliases:   make(map[string]string),
	}

	r.Register("gemini", Settings{
		APIKeyEnv: "GEMINI_API_KEY",
		Model:     "gemini-2.5-flash",
		Timeout:   defaultHTTPTimeout,
	}, func(s Settings, logger *zap.Logger) (schemas.DecisionSource, error) {
		return NewGemini(s, logger)
	})

	r.Register("anthropic", Settings{
		APIKeyEnv: "ANTHROPIC_API_KEY",
		BaseURL:   "https://api.anthropic.com",
		Model:     "claude-sonnet-4-20250514",
		Timeout:   defaultHTTPTimeout,
	}, func(s Settings, logger *zap.Logger) (schemas.DecisionSource, error) {
		return NewAnthropic(s, logger)
	})
	r.RegisterAlias("claude", "anthropic")

	r.Register("ollama", Settings{
		BaseURL: "http://localhost:11434",
		Model:   "llama3.2-vision",
		Timeout: defaultOllamaTimeout,
	}, func(s Settings, logger *zap.Logger) (schemas.DecisionSource, error) {
		return NewOllama(s, logger)
	})

	// The OpenAI-compatible family differs only in endpoint, key source and
	// model names.
	compatible := []struct {
		name     string
		defaults Settings
		aliases  []string
	}{
		{
			name: "openai",
			defaults: Settings{
				APIKeyEnv: "OPENAI_API_KEY",
				BaseURL:   "https://api.openai.com/v1",
				Model:     "gpt-4o",
			},
		},
		{
			name: "deepseek",
			defaults: Settings{
				APIKeyEnv: "DEEPSEEK_API_KEY",
				BaseURL:   "https://api.deepseek.com/v1",
				Model:     "deepseek-chat",
			},
		},
		{
			name: "dashscope",
			defaults: Settings{
				APIKeyEnv:   "DASHSCOPE_API_KEY",
				BaseURL:     "https://dashscope.aliyuncs.com/compatible-mode/v1",
				Model:       "qwen-max",
				VisionModel: "qwen-vl-max",
			},
			aliases: []string{"qwen", "alibailian"},
		},
		{
			name: "moonshot",
			defaults: Settings{
				APIKeyEnv: "MOONSHOT_API_KEY",
				BaseURL:   "https://api.moonshot.cn/v1",
				Model:     "moonshot-v1-32k",
			},
			aliases: []string{"kimi"},
		},
		{
			name: "minimax",
			defaults: Settings{
				APIKeyEnv:   "MINIMAX_API_KEY",
				BaseURL:     "https://api.minimax.chat/v1",
				Model:       "MiniMax-Text-01",
				VisionModel: "MiniMax-VL-01",
			},
		},
		{
			name: "volcengine",
			defaults: Settings{
				APIKeyEnv:   "VOLC_API_KEY",
				BaseURL:     "https://ark.cn-beijing.volces.com/api/v3",
				Model:       "doubao-pro-32k",
				VisionModel: "doubao-vision-pro-32k",
			},
			aliases: []string{"doubao"},
		},
	}
	for _, entry := range compatible {
		name := entry.name
		d := entry.defaults
		d.Timeout = defaultHTTPTimeout
		r.Register(name, d, func(s Settings, logger *zap.Logger) (schemas.DecisionSource, error) {
			return NewOpenAICompatible(name, s, logger)
		})
		for _, alias := range entry.aliases {
			r.RegisterAlias(alias, name)
		}
	}

	// Zhipu speaks the OpenAI-compatible protocol but signs its own JWT
	// auth tokens from "id.secret" style keys.
	r.Register("zhipu", Settings{
		APIKeyEnv:   "ZHIPU_API_KEY",
		BaseURL:     "https://open.bigmodel.cn/api/paas/v4",
		Model:       "glm-4",
		VisionModel: "glm-4v",
		Timeout:     defaultHTTPTimeout,
	}, func(s Settings, logger *zap.Logger) (schemas.DecisionSource, error) {
		return NewZhipu(s, logger)
	})
	r.RegisterAlias("glm", "zhipu")

	return r
}

// Register installs a provider under its canonical name. Registering an
// existing name replaces it.
func (r *Registry) Register(name string, defaults Settings, factory Factory) {
	key := strings.ToLower(name)
	r.factories[key] = factory
	r.defaults[key] = defaults
}

// RegisterAlias maps alias onto an already registered canonical name.
func (r *Registry) RegisterAlias(alias, canonical string) {
	r.aliases[strings.ToLower(alias)] = strings.ToLower(canonical)
}

// Resolve maps a user-supplied name to its canonical registered name.
func (r *Registry) Resolve(name string) (string, bool) {
	key := strings.ToLower(name)
	if target, ok := r.aliases[key]; ok {
		key = target
	}
	_, ok := r.factories[key]
	return key, ok
}

// New builds the named provider, filling unset settings from the registry
// defaults. A nil logger is replaced with a no-op one.
func (r *Registry) New(name string, s Settings, logger *zap.Logger) (schemas.DecisionSource, error) {
	canonical, ok := r.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("unknown decision provider %q (supported: %s)", name, strings.Join(r.Names(), ", "))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return r.factories[canonical](s.withDefaults(r.defaults[canonical]), logger)
}

// Names returns the sorted canonical provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Aliases returns a copy of the alias table.
func (r *Registry) Aliases() map[string]string {
	out := make(map[string]string, len(r.aliases))
	for alias, canonical := range r.aliases {
		out[alias] = canonical
	}
	return out
}

// Defaults returns the default settings registered for name.
func (r *Registry) Defaults(name string) (Settings, bool) {
	canonical, ok := r.Resolve(name)
	if !ok {
		return Settings{}, false
	}
	return r.defaults[canonical], true
}

// Probe reports whether the named provider looks usable with the given
// settings: either it needs no API key, or one is resolvable. It never
// performs network IO.
func (r *Registry) Probe(name string, s Settings) bool {
	canonical, ok := r.Resolve(name)
	if !ok {
		return false
	}
	merged := s.withDefaults(r.defaults[canonical])
	if merged.APIKey == "" && merged.APIKeyEnv == "" {
		// Keyless provider (local models).
		return true
	}
	return merged.resolveKey() != ""
}

// encodeFramePNG serializes a frame for transport to a vision model.
func encodeFramePNG(frame image.Image) ([]byte, error) {
	if frame == nil {
		return nil, fmt.Errorf("nil frame")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
