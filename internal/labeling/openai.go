package labeling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const systemPrompt = "You are a Vietnamese news categorization expert. Generate concise, accurate topic labels for news clusters."

type OpenAIConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	// HTTPClient overrides the SDK default transport.
	HTTPClient *http.Client
}

// OpenAILabeler asks a chat-completions model for a structured label.
type OpenAILabeler struct {
	cfg    OpenAIConfig
	client *openai.Client
	schema any
}

type labelResponse struct {
	Label    string   `json:"label" jsonschema:"description=Topic label in Vietnamese"`
	Keywords []string `json:"keywords" jsonschema:"description=Up to five lower-case Vietnamese keywords of the topic"`
}

// NewOpenAILabeler returns a labeler that is unavailable when no API key is
// configured.
func NewOpenAILabeler(cfg OpenAIConfig) (*OpenAILabeler, error) {
	l := &OpenAILabeler{cfg: cfg}
	if cfg.APIKey == "" {
		return l, nil
	}
	if l.cfg.Model == "" {
		l.cfg.Model = string(openai.ChatModelGPT4oMini)
	}
	if l.cfg.MaxTokens <= 0 {
		l.cfg.MaxTokens = 64
	}

	schema, err := labelSchema()
	if err != nil {
		return nil, err
	}
	l.schema = schema

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(1)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	client := openai.NewClient(opts...)
	l.client = &client
	return l, nil
}

func labelSchema() (any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	raw, err := json.Marshal(reflector.Reflect(&labelResponse{}))
	if err != nil {
		return nil, fmt.Errorf("marshal label schema failed: %w", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("unmarshal label schema failed: %w", err)
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	schema["type"] = "object"
	return schema, nil
}

func (l *OpenAILabeler) Available() bool {
	return l != nil && l.client != nil
}

func (l *OpenAILabeler) GenerateLabel(ctx context.Context, articles []Article, maxWords int) (Label, error) {
	if !l.Available() {
		return Label{}, errors.New("openai labeler not configured")
	}

	var lines []string
	for _, a := range articles[:min(len(articles), MaxArticles)] {
		text := strings.TrimSpace(PlainText(a.Title) + ". " + PlainText(a.Description))
		if text != "." {
			lines = append(lines, "- "+text)
		}
	}
	if len(lines) == 0 {
		return Label{}, errors.New("no article text to label")
	}

	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}

	prompt := fmt.Sprintf(`Analyze these Vietnamese news article titles and descriptions and name their common topic.

Articles:
%s

Requirements:
- at most %d words, in Vietnamese
- clear, descriptive terms for the shared theme
- keywords: the few terms that best identify the topic`, strings.Join(lines, "\n"), maxWords)

	resp, err := l.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Model:       openai.ChatModel(l.cfg.Model),
		MaxTokens:   openai.Int(int64(l.cfg.MaxTokens)),
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "cluster_label",
					Description: openai.String("Topic label for a cluster of news articles"),
					Schema:      l.schema,
					Strict:      openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return Label{}, fmt.Errorf("label completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Label{}, errors.New("label completion returned no content")
	}

	var parsed labelResponse
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return Label{}, fmt.Errorf("parse label response failed: %w", err)
	}
	name := cleanLabel(parsed.Label, maxWords)
	if name == "" {
		return Label{}, errors.New("label completion returned an empty label")
	}
	return Label{Name: name, Keywords: cleanKeywords(parsed.Keywords)}, nil
}

func cleanKeywords(in []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, k := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
		if len(out) == MaxArticles {
			break
		}
	}
	return out
}
