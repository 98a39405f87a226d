package recognition

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/franckalain/medtrack/internal/capture"
	"github.com/franckalain/medtrack/internal/logger"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

const defaultGoogleModel = "gemini-1.5-flash"

// GoogleConfig holds configuration for the Vertex AI provider
type GoogleConfig struct {
	ProjectID       string `json:"project_id" mapstructure:"project_id"`
	Location        string `json:"location" mapstructure:"location"`
	CredentialsFile string `json:"credentials_file" mapstructure:"credentials_file"`
	Model           string `json:"model" mapstructure:"model"`
}

// Validate fills defaults from the environment and checks required fields.
func (c *GoogleConfig) Validate() error {
	if c.ProjectID == "" {
		c.ProjectID = os.Getenv("GOOGLE_PROJECT_ID")
	}
	if c.Location == "" {
		c.Location = os.Getenv("GOOGLE_LOCATION")
	}
	if c.CredentialsFile == "" {
		c.CredentialsFile = os.Getenv("GOOGLE_CREDENTIALS_FILE")
	}
	if c.Model == "" {
		c.Model = defaultGoogleModel
	}
	if c.ProjectID == "" {
		return fmt.Errorf("project_id is not set")
	}
	if c.Location == "" {
		return fmt.Errorf("location is not set")
	}
	return nil
}

// GoogleProvider implements the Provider interface for Google's Vertex AI
type GoogleProvider struct {
	config GoogleConfig
	client *genai.Client
	model  *genai.GenerativeModel
	log    zerolog.Logger
}

// GoogleProviderFactory implements Factory for Google providers
type GoogleProviderFactory struct {
	config GoogleConfig
}

// NewGoogleProviderFactory creates a new Google provider factory
func NewGoogleProviderFactory(config GoogleConfig) *GoogleProviderFactory {
	return &GoogleProviderFactory{config: config}
}

// CreateProvider creates a new Google provider instance
func (f *GoogleProviderFactory) CreateProvider() (Provider, error) {
	return &GoogleProvider{
		config: f.config,
		log:    logger.WithComponent("recognition.google"),
	}, nil
}

// Load initializes the Vertex AI client
func (p *GoogleProvider) Load(ctx context.Context) error {
	opts := []option.ClientOption{}

	if p.config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(p.config.CredentialsFile))
	}

	client, err := genai.NewClient(ctx, p.config.ProjectID, p.config.Location, opts...)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	p.client = client
	p.model = client.GenerativeModel(p.config.Model)
	p.model.SetTemperature(0)
	return nil
}

// Recognize reads the requested field from a package photo using Vertex AI
func (p *GoogleProvider) Recognize(ctx context.Context, target capture.Target, frame []byte) (string, error) {
	if p.model == nil {
		return "", fmt.Errorf("%w: model not loaded", ErrUnavailable)
	}

	prompt, err := promptFor(target)
	if err != nil {
		return "", err
	}

	img := genai.ImageData(imageFormat(frame), frame)

	p.log.Debug().Int("bytes", len(frame)).Msg("calling the model")
	resp, err := p.model.GenerateContent(ctx, genai.Text(prompt), img)
	if err != nil {
		return "", fmt.Errorf("failed to call ai: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no response generated", ErrNotRecognized)
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no content in response", ErrNotRecognized)
	}

	var raw string
	if t, ok := candidate.Content.Parts[0].(genai.Text); ok {
		raw = string(t)
	} else {
		raw = fmt.Sprintf("%v", candidate.Content.Parts[0])
	}
	return parseReply(raw)
}

// Close closes the Vertex AI client
func (p *GoogleProvider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

const replyFormat = `
Format the response as a JSON object with exactly one of "error" or "success" populated.
{
	"error": {
		"error_reason": "string",
		"suggestion_for_better_results": "string"
	},
	"success": {
		"text": "string"
	}
}`

func promptFor(target capture.Target) (string, error) {
	switch target {
	case capture.TargetMedicineName:
		return `Read the name of the medicine on this package photo, including its strength
if printed next to the name (for example "Ibuprofen 200mg"). Return only the name as
printed, without dosage instructions. If the name is not legible, raise an error.` + replyFormat, nil
	case capture.TargetExpiryDate:
		return `Read the expiry date printed on this medicine package (often marked EXP,
Expiry, Use by). Return it as YYYY-MM-DD; if only a month and year are printed, return
YYYY-MM. Do not guess a date that is not printed. If no expiry date is legible, raise
an error.` + replyFormat, nil
	default:
		return "", fmt.Errorf("%w: %q", capture.ErrInvalidTarget, target)
	}
}

type reply struct {
	Error struct {
		ErrorReason string `json:"error_reason"`
		Suggestion  string `json:"suggestion_for_better_results"`
	} `json:"error"`
	Success struct {
		Text string `json:"text"`
	} `json:"success"`
}

// parseReply extracts the recognized text from the model's JSON answer.
func parseReply(raw string) (string, error) {
	content := strings.TrimSpace(raw)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var out reply
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return "", fmt.Errorf("failed to parse model response: %w while parsing %s", err, content)
	}

	if out.Error.ErrorReason != "" {
		if out.Error.Suggestion != "" {
			return "", fmt.Errorf("%w: %s; suggestion: %s", ErrNotRecognized, out.Error.ErrorReason, out.Error.Suggestion)
		}
		return "", fmt.Errorf("%w: %s", ErrNotRecognized, out.Error.ErrorReason)
	}

	text := strings.TrimSpace(out.Success.Text)
	if text == "" {
		return "", fmt.Errorf("%w: empty text in response", ErrNotRecognized)
	}
	return text, nil
}

// imageFormat returns the genai image format ("jpeg", "png", ...) of frame.
func imageFormat(frame []byte) string {
	ct := http.DetectContentType(frame)
	if format, ok := strings.CutPrefix(ct, "image/"); ok {
		return format
	}
	return "jpeg"
}
