package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"

	"voicebridge/cache"
	"voicebridge/core"
)

// ChatParams are per-request generation options forwarded to the chat
// service's options object.
type ChatParams struct {
	Temperature *float64
	MaxTokens   int
}

type chatRequest struct {
	Model    string             `json:"model"`
	Messages []core.ChatMessage `json:"messages"`
	Stream   bool               `json:"stream"`
	Options  map[string]any     `json:"options,omitempty"`
}

type chatResponse struct {
	Message *struct {
		Role    string  `json:"role"`
		Content *string `json:"content"`
	} `json:"message"`
}

// SendChat posts the conversation to the chat service and returns the
// assistant's reply text. The call is never cached; transient failures are
// retried, but a 2xx payload without the message-content field is a broken
// contract and fails immediately without consuming a retry.
func (o *Orchestrator) SendChat(ctx context.Context, messages []core.ChatMessage, model string, params ChatParams) (string, error) {
	options := make(map[string]any)
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.MaxTokens > 0 {
		options["num_predict"] = params.MaxTokens
	}

	body, err := sonic.Marshal(chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options:  options,
	})
	if err != nil {
		return "", fmt.Errorf("orchestrator: marshal chat request: %w", err)
	}

	url := o.resolver.Resolve(core.ServiceChat) + "/chat"
	raw, err := o.execute(ctx, callSpec{
		url:       url,
		opts:      transportPOST(body),
		deadline:  o.cfg.ChatDeadline,
		attempts:  o.cfg.ChatAttempts,
		baseDelay: o.cfg.ChatBaseDelay,
	})
	if err != nil {
		return "", err
	}

	var decoded chatResponse
	if err := sonic.Unmarshal(raw, &decoded); err != nil {
		return "", &core.InvalidResponseError{URL: url, Reason: "payload is not valid JSON"}
	}
	if decoded.Message == nil || decoded.Message.Content == nil {
		return "", &core.InvalidResponseError{URL: url, Reason: "missing message content field"}
	}
	return *decoded.Message.Content, nil
}

type modelList struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// ListModels returns the models the chat service has available.
func (o *Orchestrator) ListModels(ctx context.Context) ([]string, error) {
	url := o.resolver.Resolve(core.ServiceChat) + "/tags"
	raw, err := o.execute(ctx, callSpec{
		url:       url,
		deadline:  o.cfg.StatusDeadline,
		attempts:  1,
		baseDelay: o.cfg.ChatBaseDelay,
		cacheKey:  cache.Key(http.MethodGet, url, nil),
	})
	if err != nil {
		return nil, err
	}

	var decoded modelList
	if err := sonic.Unmarshal(raw, &decoded); err != nil {
		return nil, &core.InvalidResponseError{URL: url, Reason: "payload is not valid JSON"}
	}
	names := make([]string, 0, len(decoded.Models))
	for _, m := range decoded.Models {
		if m.Name != "" {
			names = append(names, m.Name)
		} else if m.Model != "" {
			names = append(names, m.Model)
		}
	}
	return names, nil
}

// WarmUp sends a minimal one-token request so the backend loads the model
// into memory ahead of real use.
func (o *Orchestrator) WarmUp(ctx context.Context, model string) error {
	body, err := sonic.Marshal(chatRequest{
		Model:    model,
		Messages: []core.ChatMessage{},
		Stream:   false,
		Options:  map[string]any{"num_predict": 1},
	})
	if err != nil {
		return fmt.Errorf("orchestrator: marshal warm-up request: %w", err)
	}

	url := o.resolver.Resolve(core.ServiceChat) + "/chat"
	_, err = o.execute(ctx, callSpec{
		url:       url,
		opts:      transportPOST(body),
		deadline:  o.cfg.WarmUpDeadline,
		attempts:  1,
		baseDelay: o.cfg.ChatBaseDelay,
	})
	if err != nil {
		return err
	}
	o.logger.Info("model warmed up", "model", model)
	return nil
}

// IsWarm queries the backend's currently-loaded model list so redundant
// warm-ups can be skipped.
func (o *Orchestrator) IsWarm(ctx context.Context, model string) (bool, error) {
	url := o.resolver.Resolve(core.ServiceChat) + "/ps"
	raw, err := o.execute(ctx, callSpec{
		url:       url,
		deadline:  o.cfg.StatusDeadline,
		attempts:  1,
		baseDelay: o.cfg.ChatBaseDelay,
	})
	if err != nil {
		return false, err
	}

	var decoded modelList
	if err := sonic.Unmarshal(raw, &decoded); err != nil {
		return false, &core.InvalidResponseError{URL: url, Reason: "payload is not valid JSON"}
	}
	for _, m := range decoded.Models {
		for _, name := range []string{m.Name, m.Model} {
			// Loaded models often carry a tag suffix (model:latest).
			if name == model || strings.HasPrefix(name, model+":") {
				return true, nil
			}
		}
	}
	return false, nil
}
