package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// Options configures the OpenAI-backed oracle.
type Options struct {
	APIKey         string
	Model          string
	EmbedModel     string
	EmbedDim       int
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// Client adapts the OpenAI API to the completion, embedding, and
// transcription contracts the engines consume.
type Client struct {
	api        *openai.Client
	model      string
	embedModel string
	embedDim   int
	logger     *slog.Logger
}

// NewClient builds an oracle client. Every request carries a bounded
// timeout so a stuck upstream cannot wedge a detached pipeline run.
func NewClient(opt Options) (*Client, error) {
	if opt.APIKey == "" {
		return nil, errors.New("oracle: API key is required")
	}
	if opt.Model == "" {
		opt.Model = openai.ChatModelGPT4oMini
	}
	if opt.EmbedModel == "" {
		opt.EmbedModel = string(openai.EmbeddingModelTextEmbedding3Small)
	}
	if opt.EmbedDim == 0 {
		opt.EmbedDim = 1536
	}
	if opt.RequestTimeout == 0 {
		opt.RequestTimeout = 60 * time.Second
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	api := openai.NewClient(
		option.WithAPIKey(opt.APIKey),
		option.WithRequestTimeout(opt.RequestTimeout),
	)
	return &Client{
		api:        &api,
		model:      opt.Model,
		embedModel: opt.EmbedModel,
		embedDim:   opt.EmbedDim,
		logger:     opt.Logger,
	}, nil
}

// EmbedDim returns the configured embedding dimensionality.
func (c *Client) EmbedDim() int { return c.embedDim }

// CompleteJSON runs one structured completion and returns the raw JSON
// output text conforming to the given schema.
func (c *Client) CompleteJSON(ctx context.Context, schemaName string, schema map[string]interface{}, instructions, input string, maxTokens int64) (string, error) {
	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:   schemaName,
			Schema: schema,
			Strict: openai.Bool(true),
			Type:   "json_schema",
		},
	}
	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(maxTokens),
		Instructions:    openai.String(instructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(input, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}
	resp, err := c.callWithRetry(ctx, params)
	if err != nil {
		return "", err
	}
	return resp.OutputText(), nil
}

// CompleteText runs one free-form completion.
func (c *Client) CompleteText(ctx context.Context, instructions, input string, maxTokens int64) (string, error) {
	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(maxTokens),
		Instructions:    openai.String(instructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(input, responses.EasyInputMessageRoleUser),
			},
		},
	}
	resp, err := c.callWithRetry(ctx, params)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.OutputText()), nil
}

// ToolDef describes one callable capability offered to the router.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// RouteTool lets the model pick zero or one of the offered capabilities.
// It returns the chosen tool name and its JSON arguments, or an empty name
// when the model declined to call any tool.
func (c *Client) RouteTool(ctx context.Context, instructions, input string, tools []ToolDef) (name, argsJSON string, err error) {
	toolParams := make([]responses.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		toolParams = append(toolParams, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  t.Parameters,
				Strict:      openai.Bool(true),
				Type:        "function",
			},
		})
	}
	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(300),
		Instructions:    openai.String(instructions),
		Tools:           toolParams,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(input, responses.EasyInputMessageRoleUser),
			},
		},
	}
	resp, err := c.callWithRetry(ctx, params)
	if err != nil {
		return "", "", err
	}
	for _, item := range resp.Output {
		if item.Type == "function_call" {
			call := item.AsFunctionCall()
			return call.Name, call.Arguments, nil
		}
	}
	return "", "", nil
}

// EmbedTexts embeds all inputs in one request and returns vectors in
// input order.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model:      openai.EmbeddingModel(c.embedModel),
		Dimensions: openai.Int(int64(c.embedDim)),
	})
	if err != nil {
		return nil, fmt.Errorf("embed texts: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embed texts: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("embed texts: vector index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// Transcribe sends fetched audio to Whisper.
func (c *Client) Transcribe(ctx context.Context, data []byte, mediaType, language string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("transcribe: empty audio payload")
	}
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(data), audioFilename(mediaType), mediaType),
		Model: openai.AudioModelWhisper1,
	}
	if language != "" {
		params.Language = openai.String(language)
	}
	resp, err := c.api.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func audioFilename(mediaType string) string {
	switch {
	case strings.Contains(mediaType, "mpeg"), strings.Contains(mediaType, "mp3"):
		return "audio.mp3"
	case strings.Contains(mediaType, "ogg"):
		return "audio.ogg"
	case strings.Contains(mediaType, "wav"):
		return "audio.wav"
	case strings.Contains(mediaType, "mp4"), strings.Contains(mediaType, "m4a"):
		return "audio.m4a"
	default:
		return "audio.webm"
	}
}

func (c *Client) callWithRetry(ctx context.Context, params responses.ResponseNewParams) (*responses.Response, error) {
	const maxRetries = 3
	rateLimitWaitTimes := []time.Duration{65 * time.Second, 100 * time.Second, 135 * time.Second}
	serverErrorWaitTimes := []time.Duration{5 * time.Second, 30 * time.Second, 60 * time.Second}

	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := c.api.Responses.New(ctx, params)
		if err != nil {
			if isRateLimitError(err) {
				if attempt < maxRetries-1 {
					c.logger.Warn("oracle rate limited, backing off", "attempt", attempt+1)
					if sleepErr := sleepCtx(ctx, rateLimitWaitTimes[attempt]); sleepErr != nil {
						return nil, sleepErr
					}
					continue
				}
			} else if isServerError(err) {
				if attempt < maxRetries-1 {
					c.logger.Warn("oracle server error, backing off", "attempt", attempt+1, "err", err)
					if sleepErr := sleepCtx(ctx, serverErrorWaitTimes[attempt]); sleepErr != nil {
						return nil, sleepErr
					}
					continue
				}
			}
			return nil, err
		}
		return resp, nil
	}
	return nil, fmt.Errorf("oracle call failed after %d attempts", maxRetries)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "server_error")
}

// DecodeModelJSON unmarshals JSON from a model response, tolerating
// wrapping text or stray whitespace around the object.
func DecodeModelJSON(outputText string, v any) error {
	s := strings.TrimSpace(outputText)
	if s == "" {
		return io.ErrUnexpectedEOF
	}

	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("no JSON object found in model output (len=%d)", len(s))
	}

	sub := s[start : end+1]
	if err := json.Unmarshal([]byte(sub), v); err != nil {
		return fmt.Errorf("unmarshal extracted JSON (len=%d): %w", len(sub), err)
	}
	return nil
}
