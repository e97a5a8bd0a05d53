// Package openai implements the judgment oracle against an OpenAI-compatible
// chat completion endpoint.
package openai

import (
	"context"
	"fmt"

	"github.com/strataline/alignd/pkg/oracle"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Oracle is an oracle.Client backed by the OpenAI chat completion API.
type Oracle struct {
	judgmentModel string
	chatURL       string

	client *openai.Client
}

// Params configures a new Oracle. JudgmentModel is the default model for
// all calls; ChatURL may point at any OpenAI-compatible endpoint and is
// optional for the hosted API.
type Params struct {
	JudgmentModel string
	ChatURL       string
	ChatKey       string
}

// New creates an OpenAI-backed oracle.
func New(params Params) (*Oracle, error) {
	if params.ChatKey == "" {
		return nil, fmt.Errorf("openai oracle requires an API key")
	}
	options := []option.RequestOption{
		option.WithAPIKey(params.ChatKey),
	}
	if params.ChatURL != "" {
		options = append(options, option.WithBaseURL(params.ChatURL))
	}
	client := openai.NewClient(options...)

	return &Oracle{
		judgmentModel: params.JudgmentModel,
		chatURL:       params.ChatURL,
		client:        &client,
	}, nil
}

// GenerateCompletion sends a single-turn prompt and returns the raw
// completion text.
func (o *Oracle) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...oracle.GenerateOption,
) (string, error) {
	options := oracle.GenerateOptions{
		Model:       o.judgmentModel,
		Temperature: 0.0,
	}
	for _, opt := range opts {
		opt(&options)
	}

	msgs := []openai.ChatCompletionMessageParamUnion{}
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, openai.SystemMessage(sp))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    msgs,
		Temperature: openai.Float(options.Temperature),
	}

	response, err := o.client.Chat.Completions.New(ctx, body)
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices in response from model")
	}
	return response.Choices[0].Message.Content, nil
}

// GenerateCompletionWithFormat enforces a JSON schema derived from out and
// unmarshals the model's response into it.
func (o *Oracle) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...oracle.GenerateOption,
) error {
	schema := oracle.GenerateSchema(out)
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        name,
		Description: openai.String(description),
		Schema:      schema,
		Strict:      openai.Bool(true),
	}

	options := oracle.GenerateOptions{
		Model:       o.judgmentModel,
		Temperature: 0.0,
	}
	for _, opt := range opts {
		opt(&options)
	}

	msgs := []openai.ChatCompletionMessageParamUnion{}
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, openai.SystemMessage(sp))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	body := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(options.Model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
		Messages:    msgs,
		Temperature: openai.Float(options.Temperature),
	}

	response, err := o.client.Chat.Completions.New(ctx, body)
	if err != nil {
		return err
	}

	if len(response.Choices) == 0 {
		return fmt.Errorf("no choices in response from model")
	}
	message := response.Choices[0].Message.Content
	if message == "" {
		return fmt.Errorf("empty response from model (finish_reason: %s)", response.Choices[0].FinishReason)
	}
	return oracle.UnmarshalFlexible(message, out)
}
