package nutriagent

import (
	"time"

	"nutriagent/nutrients"
)

type ModelConfig struct {
	ModelID     string  `env:"MODEL_ID,required"`
	MaxTokens   int32   `env:"MAX_TOKENS,default=1024"`
	Temperature float32 `env:"TEMPERATURE,default=0.2"`
	TopP        float32 `env:"TOP_P,default=0.9"`
}

type AgentConfig struct {
	InstructionsPath   string `env:"INSTRUCTIONS_PATH,default=artifacts/instructions.txt"`
	InstructionsBucket string `env:"INSTRUCTIONS_BUCKET"`
	InstructionsKey    string `env:"INSTRUCTIONS_KEY,default=instructions.txt"`
	BaseOllamaEndpoint string `env:"BASE_OLLAMA_ENDPOINT,default=http://localhost:11434"`
	MaxIterations      int    `env:"MAX_ITERATIONS,default=10"`
	SlackWebhookURL    string `env:"SLACK_WEBHOOK_URL"`
	SlackChannel       string `env:"SLACK_CHANNEL,default=#nutrition"`
}

// OpenFoodFactsConfig identifies this client to Open Food Facts. The defaults target the
// public staging deployment.
type OpenFoodFactsConfig struct {
	UserAgent   string        `env:"OFF_USER_AGENT,default=NutriAgent/1.0"`
	Username    string        `env:"OFF_USERNAME"`
	Password    string        `env:"OFF_PASSWORD"`
	Country     string        `env:"OFF_COUNTRY,default=us"`
	Environment string        `env:"OFF_ENVIRONMENT,default=net"`
	PageSize    int           `env:"OFF_PAGE_SIZE,default=20"`
	Timeout     time.Duration `env:"OFF_TIMEOUT,default=10s"`
	BaseURL     string        `env:"OFF_BASE_URL"`
}

// FetcherOpts maps the configuration onto the fetcher options. The HTTP client is left for
// the caller to set.
func (c OpenFoodFactsConfig) FetcherOpts() nutrients.FetcherOpts {
	return nutrients.FetcherOpts{
		BaseURL:     c.BaseURL,
		UserAgent:   c.UserAgent,
		Country:     c.Country,
		Environment: c.Environment,
		Username:    c.Username,
		Password:    c.Password,
		PageSize:    c.PageSize,
		Timeout:     c.Timeout,
	}
}
