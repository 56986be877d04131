package openai

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockOpenAIAPI is a mock for the OpenAI embedding API
type MockOpenAIAPI struct {
	mock.Mock
}

func (m *MockOpenAIAPI) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockChatAPI is a mock for the chat completion API
type MockChatAPI struct {
	mock.Mock
}

func (m *MockChatAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(openai.ChatCompletionResponse), args.Error(1)
}

func chatResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestClient_GenerateEmbedding_Success(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI}

	ctx := context.Background()
	text := "This is a test document about knowledge ingestion."
	expectedEmbedding := make([]float32, 1536)
	for i := range expectedEmbedding {
		expectedEmbedding[i] = float32(i) * 0.001
	}

	mockAPI.On("CreateEmbeddings", ctx, text).Return(expectedEmbedding, nil)

	embedding, err := client.GenerateEmbedding(ctx, text)

	assert.NoError(t, err)
	assert.Len(t, embedding, 1536)
	assert.Equal(t, expectedEmbedding, embedding)
	mockAPI.AssertExpectations(t)
}

func TestClient_GenerateEmbedding_EmptyText(t *testing.T) {
	client := NewClient("")

	ctx := context.Background()
	embedding, err := client.GenerateEmbedding(ctx, "")

	assert.Error(t, err)
	assert.Nil(t, embedding)
	assert.Equal(t, ErrEmptyText, err)
}

func TestClient_GenerateEmbedding_APIError(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI}

	ctx := context.Background()
	text := "Test text"
	apiErr := errors.New("API rate limit exceeded")

	mockAPI.On("CreateEmbeddings", ctx, text).Return(nil, apiErr)

	embedding, err := client.GenerateEmbedding(ctx, text)

	assert.Error(t, err)
	assert.Nil(t, embedding)
	assert.Contains(t, err.Error(), "failed to create embedding")
	mockAPI.AssertExpectations(t)
}

func TestClient_GenerateEmbedding_WrongDimensions(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI}

	ctx := context.Background()
	text := "Test text"
	wrongEmbedding := make([]float32, 512)

	mockAPI.On("CreateEmbeddings", ctx, text).Return(wrongEmbedding, nil)

	embedding, err := client.GenerateEmbedding(ctx, text)

	assert.Error(t, err)
	assert.Nil(t, embedding)
	assert.Equal(t, ErrWrongDimensions, err)
	mockAPI.AssertExpectations(t)
}

func TestNewClient(t *testing.T) {
	client := NewClient("test-api-key")

	assert.NotNil(t, client)
	assert.NotNil(t, client.api)
}

func TestNewClientFromEnv_NoAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	client, err := NewClientFromEnv()

	assert.Nil(t, client)
	assert.Error(t, err)
	assert.Equal(t, ErrNoAPIKey, err)
}

func TestExtractor_ExtractText_PlainTextPassthrough(t *testing.T) {
	mockAPI := new(MockChatAPI)
	extractor := &Extractor{api: mockAPI, model: DefaultExtractionModel}

	text, err := extractor.ExtractText(context.Background(), []byte("plain utf-8 document body"))

	require.NoError(t, err)
	assert.Equal(t, "plain utf-8 document body", text)
	mockAPI.AssertNotCalled(t, "CreateChatCompletion", mock.Anything, mock.Anything)
}

func TestExtractor_ExtractText_BinaryGoesThroughModel(t *testing.T) {
	mockAPI := new(MockChatAPI)
	extractor := &Extractor{api: mockAPI, model: DefaultExtractionModel}

	binary := []byte{0x25, 0x50, 0x44, 0x46, 0x00, 0x01}
	mockAPI.On("CreateChatCompletion", mock.Anything, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
		return len(req.Messages) == 2 && req.Model == DefaultExtractionModel
	})).Return(chatResponse("extracted document text"), nil)

	text, err := extractor.ExtractText(context.Background(), binary)

	require.NoError(t, err)
	assert.Equal(t, "extracted document text", text)
	mockAPI.AssertExpectations(t)
}

func TestExtractor_ExtractText_Empty(t *testing.T) {
	extractor := &Extractor{api: new(MockChatAPI), model: DefaultExtractionModel}

	_, err := extractor.ExtractText(context.Background(), nil)
	assert.Equal(t, ErrEmptyDocument, err)
}

func TestExtractor_ExtractText_APIError(t *testing.T) {
	mockAPI := new(MockChatAPI)
	extractor := &Extractor{api: mockAPI, model: DefaultExtractionModel}

	mockAPI.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(openai.ChatCompletionResponse{}, errors.New("model overloaded"))

	_, err := extractor.ExtractText(context.Background(), []byte{0x00, 0x01})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to extract text")
}

func TestMasker_DetectAndMask(t *testing.T) {
	mockAPI := new(MockChatAPI)
	masker := &Masker{api: mockAPI, model: DefaultExtractionModel}

	mockAPI.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(chatResponse("contact [REDACTED] at [REDACTED]"), nil)

	result, err := masker.DetectAndMask(context.Background(), "contact John Doe at john@example.com")

	require.NoError(t, err)
	assert.Equal(t, "contact [REDACTED] at [REDACTED]", result.Text)
	assert.Equal(t, 2, result.Detections)
}

func TestMasker_DetectAndMask_EmptyText(t *testing.T) {
	masker := &Masker{api: new(MockChatAPI), model: DefaultExtractionModel}

	_, err := masker.DetectAndMask(context.Background(), "")
	assert.Equal(t, ErrEmptyText, err)
}
