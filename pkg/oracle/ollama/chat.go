package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"

	"github.com/strataline/alignd/pkg/oracle"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
)

// GenerateCompletion sends a single-turn prompt and returns assistant text.
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

	if err := o.reqLock.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer o.reqLock.Release(1)

	msgs := make([]api.Message, 0, len(options.SystemPrompts)+1)
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: "system", Content: sp})
	}
	msgs = append(msgs, api.Message{Role: "user", Content: prompt})

	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{"temperature": options.Temperature},
	}
	if err := sizeContext(req, prompt); err != nil {
		return "", err
	}

	var final api.ChatResponse
	if err := o.client.Chat(ctx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return "", err
	}

	return final.Message.Content, nil
}

// GenerateCompletionWithFormat enforces a JSON schema and unmarshals into out.
func (o *Oracle) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...oracle.GenerateOption,
) error {
	if out == nil {
		return errors.New("out must be a non-nil pointer")
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("out must be a non-nil pointer")
	}

	schemaObj := oracle.GenerateSchema(out)
	formatBytes, err := json.Marshal(schemaObj)
	if err != nil {
		return err
	}
	var format json.RawMessage = formatBytes

	options := oracle.GenerateOptions{
		Model:       o.judgmentModel,
		Temperature: 0.0,
	}
	for _, opt := range opts {
		opt(&options)
	}

	if err := o.reqLock.Acquire(ctx, 1); err != nil {
		return err
	}
	defer o.reqLock.Release(1)

	msgs := make([]api.Message, 0, len(options.SystemPrompts)+1)
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: "system", Content: sp})
	}
	msgs = append(msgs, api.Message{Role: "user", Content: prompt})

	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Format:   format,
		Options:  map[string]any{"temperature": options.Temperature},
	}
	if err := sizeContext(req, prompt); err != nil {
		return err
	}

	var final api.ChatResponse
	if err := o.client.Chat(ctx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return err
	}

	return oracle.UnmarshalFlexible(final.Message.Content, out)
}

// sizeContext widens num_ctx when the prompt exceeds the default window.
func sizeContext(req *api.ChatRequest, prompt string) error {
	enc, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		return err
	}
	tokens := 200 + len(enc.Encode(prompt, nil, nil))
	if tokens > 4096 {
		req.Options["num_ctx"] = tokens
	}
	return nil
}
