package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.AdaEmbeddingV2
	// DefaultEmbeddingDimensions is the expected dimension of embeddings from ada-002
	DefaultEmbeddingDimensions = 1536
	// DefaultExtractionModel is the model used for document text extraction
	DefaultExtractionModel = openai.GPT4oMini
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrEmptyDocument is returned when document bytes are empty
	ErrEmptyDocument = errors.New("document cannot be empty")
	// ErrWrongDimensions is returned when embedding has wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions, expected 1536")
	// ErrNoAPIKey is returned when OpenAI API key is not set
	ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")
)

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, text string) ([]float32, error)
}

// Client wraps the OpenAI API client
type Client struct {
	api        EmbeddingAPI
	dimensions int
}

type OpenAIAdapter struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func NewOpenAIAdapter(apiKey string, model openai.EmbeddingModel) *OpenAIAdapter {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIAdapter{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// CreateEmbeddings calls the OpenAI API to create embeddings
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: a.model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}

	return resp.Data[0].Embedding, nil
}

type Config struct {
	APIKey              string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
}

// NewClient creates a new OpenAI client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	return &Client{
		api:        NewOpenAIAdapter(cfg.APIKey, cfg.EmbeddingModel),
		dimensions: dimensions,
	}
}

// NewClientFromEnv creates a new OpenAI client using OPENAI_API_KEY environment variable
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClient(apiKey), nil
}

// GenerateEmbedding generates an embedding for the given text
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	embedding, err := c.api.CreateEmbeddings(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	expected := c.dimensions
	if expected <= 0 {
		expected = DefaultEmbeddingDimensions
	}
	if len(embedding) != expected {
		return nil, ErrWrongDimensions
	}

	return embedding, nil
}

// ChatAPI defines the interface for chat completion calls
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Extractor extracts plain text from document bytes via a chat model.
// Binary formats are extracted through the model's file understanding; plain
// text passes through untouched.
type Extractor struct {
	api   ChatAPI
	model string
}

func NewExtractor(apiKey, model string) *Extractor {
	if model == "" {
		model = DefaultExtractionModel
	}
	return &Extractor{
		api:   openai.NewClient(apiKey),
		model: model,
	}
}

// ExtractText returns the plain text content of a document
func (e *Extractor) ExtractText(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyDocument
	}

	// Already plain text: skip the model round trip.
	if isPlainText(data) {
		return string(data), nil
	}

	resp, err := e.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "Extract the full plain text content of the attached document. Preserve page breaks as form feed characters. Output only the extracted text.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: encodeDocument(data),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to extract text: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no extraction result returned")
	}

	return resp.Choices[0].Message.Content, nil
}

// Masker detects and masks PII via a chat model
type Masker struct {
	api   ChatAPI
	model string
}

func NewMasker(apiKey, model string) *Masker {
	if model == "" {
		model = DefaultExtractionModel
	}
	return &Masker{
		api:   openai.NewClient(apiKey),
		model: model,
	}
}

// MaskedText is the result of a masking pass
type MaskedText struct {
	Text       string
	Detections int
}

// DetectAndMask replaces detected PII spans with [REDACTED] markers
func (m *Masker) DetectAndMask(ctx context.Context, text string) (*MaskedText, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	resp, err := m.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "Replace every personal name, email address, phone number, and government ID in the user's text with [REDACTED]. Output only the masked text.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mask text: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no masking result returned")
	}

	masked := resp.Choices[0].Message.Content
	return &MaskedText{
		Text:       masked,
		Detections: strings.Count(masked, "[REDACTED]"),
	}, nil
}

func isPlainText(data []byte) bool {
	if !utf8.Valid(data) {
		return false
	}
	for _, b := range data {
		if b == 0 {
			return false
		}
	}
	return true
}

func encodeDocument(data []byte) string {
	return "base64 document:\n" + base64.StdEncoding.EncodeToString(data)
}
