package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/iyunix/mcp-openai/internal/services"
	"github.com/iyunix/mcp-openai/internal/services/ai"
	"github.com/iyunix/mcp-openai/internal/services/retry"
)

const (
	defaultChatModel   = "gpt-4"
	defaultTemperature = 0.7
	defaultMaxTokens   = 500

	defaultImageModel   = "dall-e-3"
	defaultImageSize    = "1024x1024"
	defaultImageQuality = "standard"
	defaultImageCount   = 1
)

func bound(v float64) *float64 { return &v }

func defaultValue(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("tool schema default %v: %v", v, err))
	}
	return raw
}

func enum(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func integer(description string, minimum, maximum, def int) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "integer",
		Description: description,
		Minimum:     bound(float64(minimum)),
		Maximum:     bound(float64(maximum)),
		Default:     defaultValue(def),
	}
}

func choice(description string, values []string, def string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Description: description,
		Enum:        enum(values),
		Default:     defaultValue(def),
	}
}

func objectSchema(props map[string]*jsonschema.Schema, d services.Defaults, required ...string) *jsonschema.Schema {
	props["timeout"] = integer("Per-attempt timeout in seconds",
		retry.MinTimeoutSeconds, retry.MaxTimeoutSeconds, d.TimeoutSeconds)
	props["max_retries"] = integer("Retries after the first attempt for transient failures",
		retry.MinMaxRetries, retry.MaxMaxRetries, d.MaxRetries)
	return &jsonschema.Schema{Type: "object", Properties: props, Required: required}
}

// toolDefinitions is what tools/list advertises.
func toolDefinitions(d services.Defaults) []*mcpsdk.Tool {
	ask := map[string]*jsonschema.Schema{
		"query": {Type: "string", Description: "Question to ask"},
		"model": choice("Chat model", ai.ChatModels, defaultChatModel),
		"temperature": {
			Type:        "number",
			Description: "Sampling temperature",
			Minimum:     bound(ai.MinTemperature),
			Maximum:     bound(ai.MaxTemperature),
			Default:     defaultValue(defaultTemperature),
		},
		"max_tokens": integer("Upper bound on completion tokens", ai.MinMaxTokens, ai.MaxMaxTokens, defaultMaxTokens),
	}
	image := map[string]*jsonschema.Schema{
		"prompt":  {Type: "string", Description: "Description of the image to generate"},
		"model":   choice("Image model", ai.ImageModels, defaultImageModel),
		"size":    choice("1792x1024 and 1024x1792 require dall-e-3", ai.AllImageSizes, defaultImageSize),
		"quality": choice("hd requires dall-e-3", ai.AllImageQualities, defaultImageQuality),
		"n":       integer("Number of images", ai.MinImageCount, ai.MaxImageCount, defaultImageCount),
	}

	return []*mcpsdk.Tool{
		{
			Name:        services.ToolAskOpenAI,
			Description: "Ask an OpenAI chat model a question",
			InputSchema: objectSchema(ask, d, "query"),
		},
		{
			Name:        services.ToolCreateImage,
			Description: "Generate images with DALL-E",
			InputSchema: objectSchema(image, d, "prompt"),
		},
	}
}

type policyArgs struct {
	Timeout    *int `json:"timeout"`
	MaxRetries *int `json:"max_retries"`
}

func (p policyArgs) resolve(d services.Defaults) (int, int) {
	timeout, retries := d.TimeoutSeconds, d.MaxRetries
	if p.Timeout != nil {
		timeout = *p.Timeout
	}
	if p.MaxRetries != nil {
		retries = *p.MaxRetries
	}
	return timeout, retries
}

type askArgs struct {
	Query       string   `json:"query"`
	Model       *string  `json:"model"`
	Temperature *float32 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
	policyArgs
}

type imageArgs struct {
	Prompt  string  `json:"prompt"`
	Model   *string `json:"model"`
	Size    *string `json:"size"`
	Quality *string `json:"quality"`
	N       *int    `json:"n"`
	policyArgs
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		raw = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func decodeAskArgs(raw json.RawMessage, d services.Defaults) (services.AskRequest, error) {
	var args askArgs
	if err := decodeArgs(raw, &args); err != nil {
		return services.AskRequest{}, err
	}
	req := services.AskRequest{
		CompletionRequest: ai.CompletionRequest{
			Query:       args.Query,
			Model:       stringOr(args.Model, defaultChatModel),
			Temperature: defaultTemperature,
			MaxTokens:   intOr(args.MaxTokens, defaultMaxTokens),
		},
	}
	if args.Temperature != nil {
		req.Temperature = *args.Temperature
	}
	req.TimeoutSeconds, req.MaxRetries = args.resolve(d)
	return req, nil
}

func decodeImageArgs(raw json.RawMessage, d services.Defaults) (services.ImageToolRequest, error) {
	var args imageArgs
	if err := decodeArgs(raw, &args); err != nil {
		return services.ImageToolRequest{}, err
	}
	req := services.ImageToolRequest{
		ImageRequest: ai.ImageRequest{
			Prompt:  args.Prompt,
			Model:   stringOr(args.Model, defaultImageModel),
			Size:    stringOr(args.Size, defaultImageSize),
			Quality: stringOr(args.Quality, defaultImageQuality),
			N:       intOr(args.N, defaultImageCount),
		},
	}
	req.TimeoutSeconds, req.MaxRetries = args.resolve(d)
	return req, nil
}

func stringOr(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
