package lib

import (
	"context"
	"errors"
	"log"
	"regexp"
	"sps/src/config"
	"sps/src/types"
	"time"

	"github.com/cenkalti/backoff/v5"
	openai "github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"
)

const genaiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

const routePrompt = `Extract the origin and destination from the user's parking query.
Respond with only a JSON object of the form {"origin": "...", "destination": "..."}.
Use "CURRENT_LOCATION" as the origin when the user does not name a starting point.`

var genaiClient *openai.Client

var jsonBlockRe = regexp.MustCompile(`\{[^{}]*\}`)

func GetGenaiClient() *openai.Client {
	if genaiClient != nil {
		return genaiClient
	}
	cfg := openai.DefaultConfig(config.GENAI_API_KEY)
	cfg.BaseURL = genaiBaseURL
	genaiClient = openai.NewClientWithConfig(cfg)
	return genaiClient
}

func NewGenaiClient(c *openai.Client) *openai.Client {
	genaiClient = c
	return genaiClient
}

// ExtractRoute asks the model for an origin/destination pair. The model is an
// unreliable oracle: callers must treat an empty destination as a miss and
// fall back to the raw query.
func ExtractRoute(ctx context.Context, query string) (*types.RouteExtraction, error) {
	model := config.GENAI_MODEL
	if model == "" {
		model = "gemini-2.0-flash"
	}
	cli := GetGenaiClient()
	op := func() (*openai.ChatCompletionResponse, error) {
		resp, err := cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: routePrompt},
				{Role: openai.ChatMessageRoleUser, Content: query},
			},
			Temperature: 0,
		})
		if err != nil {
			return nil, err
		}
		return &resp, nil
	}
	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(15*time.Second),
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("model returned no choices")
	}
	content := resp.Choices[0].Message.Content
	block := jsonBlockRe.FindString(content)
	if block == "" || !gjson.Valid(block) {
		log.Printf("Could not locate JSON in model reply: %q\n", content)
		return nil, errors.New("model reply contained no JSON object")
	}
	route := types.RouteExtraction{
		Origin:      gjson.Get(block, "origin").String(),
		Destination: gjson.Get(block, "destination").String(),
	}
	return &route, nil
}
