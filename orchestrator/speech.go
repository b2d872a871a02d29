package orchestrator

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"

	"voicebridge/core"
)

type speechRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	Voice string `json:"voice"`
}

// SynthesizeSpeech posts text to the TTS service and returns the binary
// audio payload. Input is hard-truncated to the configured maximum before
// sending; an empty 2xx body is treated as a failure, since silence is
// never a valid synthesis result.
func (o *Orchestrator) SynthesizeSpeech(ctx context.Context, text string, voice string) ([]byte, error) {
	model, defaultVoice := o.ttsSettings()
	if voice == "" {
		voice = defaultVoice
	}
	if runes := []rune(text); len(runes) > o.cfg.TTSMaxInputChars {
		o.logger.Warn("truncating synthesis input",
			"length", len(runes), "max", o.cfg.TTSMaxInputChars)
		text = string(runes[:o.cfg.TTSMaxInputChars])
	}

	body, err := sonic.Marshal(speechRequest{
		Model: model,
		Input: text,
		Voice: voice,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: marshal speech request: %w", err)
	}

	url := o.resolver.Resolve(core.ServiceTTS) + "/speech"
	audio, err := o.execute(ctx, callSpec{
		url:       url,
		opts:      transportPOST(body),
		deadline:  o.cfg.TTSDeadline,
		attempts:  o.cfg.TTSAttempts,
		baseDelay: o.cfg.TTSBaseDelay,
	})
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, &core.InvalidResponseError{URL: url, Reason: "empty audio payload"}
	}
	return audio, nil
}
