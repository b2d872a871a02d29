package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"

	"voicebridge/core"
	"voicebridge/transport"
	audioutil "voicebridge/utils/audio"
)

// sttFormat is one request shape a speech-to-text backend may expect.
// Backends differ in endpoint path and multipart field naming, so the
// formats are tried in order until one yields a non-empty transcription.
type sttFormat struct {
	name      string
	path      string
	fileField string
	// modelField is the form field carrying the model name; empty means
	// the backend does not take one.
	modelField string
	fields     map[string]string
}

var sttFormats = []sttFormat{
	{
		name:       "openai",
		path:       "/audio/transcriptions",
		fileField:  "file",
		modelField: "model",
		fields:     map[string]string{"response_format": "json"},
	},
	{
		name:      "whisper-asr",
		path:      "/asr?output=json",
		fileField: "audio_file",
	},
	{
		name:       "plain",
		path:       "/transcribe",
		fileField:  "audio",
		modelField: "model",
	},
}

type transcription struct {
	Text          string `json:"text"`
	Transcription string `json:"transcription"`
	Transcript    string `json:"transcript"`
}

// Transcribe uploads audio to the speech-to-text service and returns the
// recognized text. Audio beyond the configured size ceiling is rejected
// locally without a network call. Every format strategy gets its own
// retry budget; when all formats fail, the last format's error surfaces.
func (o *Orchestrator) Transcribe(ctx context.Context, audio []byte, mimeType string, model string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("orchestrator: empty audio")
	}
	if len(audio) > o.cfg.STTMaxBytes {
		return "", fmt.Errorf("orchestrator: audio is %d bytes, limit is %d", len(audio), o.cfg.STTMaxBytes)
	}
	if mimeType == "" {
		mimeType = "audio/wav"
	}

	base := o.resolver.Resolve(core.ServiceSTT)
	var lastErr error
	for _, format := range sttFormats {
		body, contentType, err := buildSTTRequest(format, audio, mimeType, model)
		if err != nil {
			return "", err
		}

		raw, err := o.execute(ctx, callSpec{
			url: base + format.path,
			opts: transport.Options{
				Method:      "POST",
				Body:        body,
				ContentType: contentType,
			},
			deadline:  o.cfg.STTDeadline,
			attempts:  o.cfg.STTAttemptsPerFormat,
			baseDelay: o.cfg.STTBaseDelay,
		})
		if err != nil {
			lastErr = err
			o.logger.Debug("transcription format failed", "format", format.name, "error", err)
			continue
		}

		text := parseTranscription(raw)
		if text != "" {
			return text, nil
		}
		lastErr = &core.InvalidResponseError{URL: base + format.path, Reason: "empty transcription"}
	}
	return "", lastErr
}

// TranscribeEncoded accepts a raw capture in any supported encoding,
// normalizes it to a WAV upload, and transcribes it. Telephone codecs are
// decoded at their native 8 kHz rate; sampleRate applies to raw PCM only.
func (o *Orchestrator) TranscribeEncoded(ctx context.Context, data []byte, enc audioutil.Encoding, sampleRate int, model string) (string, error) {
	wav, mimeType, err := audioutil.NormalizeForUpload(data, enc, sampleRate)
	if err != nil {
		return "", fmt.Errorf("orchestrator: normalize audio: %w", err)
	}
	return o.Transcribe(ctx, wav, mimeType, model)
}

// buildSTTRequest assembles the multipart body for one format attempt.
func buildSTTRequest(format sttFormat, audio []byte, mimeType, model string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	ext := "wav"
	if i := strings.LastIndex(mimeType, "/"); i >= 0 && i+1 < len(mimeType) {
		ext = mimeType[i+1:]
	}
	part, err := w.CreateFormFile(format.fileField, "audio."+ext)
	if err != nil {
		return nil, "", fmt.Errorf("orchestrator: build upload: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", fmt.Errorf("orchestrator: build upload: %w", err)
	}

	if format.modelField != "" && model != "" {
		if err := w.WriteField(format.modelField, model); err != nil {
			return nil, "", fmt.Errorf("orchestrator: build upload: %w", err)
		}
	}
	for k, v := range format.fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("orchestrator: build upload: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("orchestrator: build upload: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// parseTranscription extracts the text from a response body that may be a
// JSON object under several field names, or a bare text body.
func parseTranscription(raw []byte) string {
	var decoded transcription
	if err := sonic.Unmarshal(raw, &decoded); err == nil {
		for _, text := range []string{decoded.Text, decoded.Transcription, decoded.Transcript} {
			if s := strings.TrimSpace(text); s != "" {
				return s
			}
		}
		return ""
	}

	// Not JSON: some backends answer with the transcription as plain text.
	if utf8.Valid(raw) {
		s := strings.TrimSpace(string(raw))
		if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
			return s
		}
	}
	return ""
}
