package nutriagent

import (
	"context"
	"errors"
	"net/http"

	"nutriagent/tools"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type SlackClient interface {
	PostMessage(ctx context.Context, channel string, message string) error
}

type ToolProvider interface {
	GetTools() []tools.Tool
	GetTool(name string) (tools.Tool, error)
}

type Coordinator interface {
	Run(ctx context.Context, task string) (string, error)
}

// RequiredTools must each have produced a result before a coordinator accepts a final answer.
var RequiredTools = []string{tools.NutrientsGetToolName}

// ErrMaxIterations is returned when a coordinator runs out of iterations before the model
// produced an acceptable final answer.
var ErrMaxIterations = errors.New("max iterations reached without final output")
