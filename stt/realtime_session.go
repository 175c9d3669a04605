package stt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/realtime"
)

// sdpEndpoint is where WebRTC offers are exchanged for answers.
const sdpEndpoint = "https://api.openai.com/v1/realtime/calls"

// sessionBroker mints ephemeral transcription sessions and performs the
// SDP exchange the SDK does not cover.
type sessionBroker struct {
	client     openai.Client
	httpClient *http.Client
}

func newSessionBroker(apiKey string) *sessionBroker {
	return &sessionBroker{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// clientSecret is the ephemeral key for one WebRTC session.
type clientSecret struct {
	value     string
	expiresAt int64
}

// mint creates a transcription-only session: audio in, text out, no
// model responses. Server-side VAD segments the input into turns.
func (b *sessionBroker) mint(ctx context.Context, language string) (clientSecret, error) {
	transcription := realtime.AudioTranscriptionParam{
		Model: realtime.AudioTranscriptionModelGPT4oTranscribe,
	}
	if language != "" {
		transcription.Language = openai.String(language)
	}

	params := realtime.ClientSecretNewParams{
		Session: realtime.ClientSecretNewParamsSessionUnion{
			OfTranscription: &realtime.RealtimeTranscriptionSessionCreateRequestParam{
				Audio: realtime.RealtimeTranscriptionSessionAudioParam{
					Input: realtime.RealtimeTranscriptionSessionAudioInputParam{
						TurnDetection: realtime.RealtimeTranscriptionSessionAudioInputTurnDetectionUnionParam{
							OfServerVad: &realtime.RealtimeTranscriptionSessionAudioInputTurnDetectionServerVadParam{
								Type:              "server_vad",
								Threshold:         openai.Float(0.5),
								PrefixPaddingMs:   openai.Int(300),
								SilenceDurationMs: openai.Int(500),
							},
						},
						Transcription: transcription,
					},
				},
			},
		},
	}

	resp, err := b.client.Realtime.ClientSecrets.New(ctx, params)
	if err != nil {
		return clientSecret{}, fmt.Errorf("create client secret: %w", err)
	}

	return clientSecret{value: resp.Value, expiresAt: resp.ExpiresAt}, nil
}

// exchangeSDP posts the local offer and returns the remote answer.
func (b *sessionBroker) exchangeSDP(ctx context.Context, offer string, secret clientSecret) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sdpEndpoint, bytes.NewBufferString(offer))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+secret.value)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("SDP exchange failed (status %d): %s", resp.StatusCode, string(body))
	}

	return string(body), nil
}
