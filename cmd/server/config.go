package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/promptcraft/promptcraft-chat/internal/handlers"
	"github.com/promptcraft/promptcraft-chat/internal/services"
	"gopkg.in/yaml.v3"
)

type llmConfig interface {
	llm(logger *slog.Logger) (handlers.LLM, error)
}

// BaseLLMConfig contains the common fields for all LLM configurations.
type BaseLLMConfig struct {
	Provider   string                 `yaml:"provider"`
	Model      string                 `yaml:"model"`
	Parameters services.LLMParameters `yaml:"parameters"`
}

type config struct {
	Port              string
	DBPath            string
	StreamMode        handlers.StreamMode
	ExclusiveFeedback bool
	AllowedOrigins    []string
	LogLevel          slog.Level
	LLM               llmConfig
}

type ollamaConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Host          string `yaml:"host"`
}

type openAIConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	BaseURL       string `yaml:"baseURL"`
}

type openRouterConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	Endpoint      string `yaml:"endpoint"`
}

type geminiConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	BaseURL       string `yaml:"baseURL"`
}

const defaultPort = "8000"

// defaultConfig mirrors a deployment without a config file: Gemini with the key supplied by each request,
// exclusive feedback and the local web frontend allowed cross-origin.
func defaultConfig() config {
	return config{
		Port:              defaultPort,
		StreamMode:        handlers.StreamModeJSON,
		ExclusiveFeedback: true,
		AllowedOrigins:    []string{"http://localhost:9000"},
		LogLevel:          slog.LevelInfo,
		LLM:               &geminiConfig{},
	}
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port              string         `yaml:"port"`
		DBPath            string         `yaml:"dbPath"`
		StreamMode        string         `yaml:"streamMode"`
		ExclusiveFeedback *bool          `yaml:"exclusiveFeedback"`
		AllowedOrigins    []string       `yaml:"allowedOrigins"`
		LogLevel          string         `yaml:"logLevel"`
		LLM               map[string]any `yaml:"llm"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	*c = defaultConfig()
	if rawConfig.Port != "" {
		c.Port = rawConfig.Port
	}
	c.DBPath = rawConfig.DBPath
	if rawConfig.StreamMode != "" {
		c.StreamMode = handlers.StreamMode(strings.ToLower(rawConfig.StreamMode))
	}
	if rawConfig.ExclusiveFeedback != nil {
		c.ExclusiveFeedback = *rawConfig.ExclusiveFeedback
	}
	if rawConfig.AllowedOrigins != nil {
		c.AllowedOrigins = rawConfig.AllowedOrigins
	}
	if rawConfig.LogLevel != "" {
		if err := c.LogLevel.UnmarshalText([]byte(rawConfig.LogLevel)); err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
	}

	if rawConfig.LLM == nil {
		return nil
	}

	llmProvider, ok := rawConfig.LLM["provider"].(string)
	if !ok {
		return fmt.Errorf("llm provider is required")
	}

	llmRawYAML, err := yaml.Marshal(rawConfig.LLM)
	if err != nil {
		return err
	}

	var llm llmConfig
	switch llmProvider {
	case "ollama":
		llm = &ollamaConfig{}
	case "openai":
		llm = &openAIConfig{}
	case "openrouter":
		llm = &openRouterConfig{}
	case "gemini":
		llm = &geminiConfig{}
	default:
		return fmt.Errorf("unknown llm provider: %s", llmProvider)
	}

	if err := yaml.Unmarshal(llmRawYAML, llm); err != nil {
		return err
	}

	c.LLM = llm
	return nil
}

func (o ollamaConfig) llm(logger *slog.Logger) (handlers.LLM, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	return services.NewOllama(host, o.Model, o.Parameters, logger)
}

func (o openAIConfig) llm(logger *slog.Logger) (handlers.LLM, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return services.NewOpenAI(apiKey, o.BaseURL, o.Model, o.Parameters, logger), nil
}

func (o openRouterConfig) llm(logger *slog.Logger) (handlers.LLM, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENROUTER_API_KEY")
	}
	return services.NewOpenRouter(apiKey, o.Endpoint, o.Model, o.Parameters, logger), nil
}

func (g geminiConfig) llm(logger *slog.Logger) (handlers.LLM, error) {
	apiKey := g.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	return services.NewGemini(apiKey, g.BaseURL, g.Model, g.Parameters, logger), nil
}
