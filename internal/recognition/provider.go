// Package recognition converts a captured still image into text for a medicine
// field. Providers never invent text: when nothing usable is read they return
// an error.
package recognition

import (
	"context"
	"errors"
	"fmt"

	"github.com/franckalain/medtrack/internal/capture"
)

var (
	// ErrNotRecognized is returned when the provider looked at the image but
	// could not read the requested field.
	ErrNotRecognized = errors.New("text not recognized")
	// ErrUnavailable is returned when the provider cannot process images at all.
	ErrUnavailable = errors.New("recognition provider unavailable")
)

// Provider represents a recognition backend that can read images
type Provider interface {
	// Load initializes the provider with its configuration
	Load(ctx context.Context) error
	// Recognize takes an image and returns the text found for target
	Recognize(ctx context.Context, target capture.Target, frame []byte) (string, error)
	// Close releases the provider's resources
	Close() error
}

// Factory creates a new provider instance based on configuration
type Factory interface {
	// CreateProvider creates a new provider instance
	CreateProvider() (Provider, error)
}

// Config selects and configures the provider.
type Config struct {
	Type   string       `json:"type" mapstructure:"type"` // "local" or "google"
	Google GoogleConfig `json:"google" mapstructure:"google"`
}

// NewProvider creates a new provider instance based on cfg.Type
func NewProvider(cfg Config) (Provider, error) {
	var factory Factory

	switch cfg.Type {
	case "google":
		if err := cfg.Google.Validate(); err != nil {
			return nil, fmt.Errorf("invalid google config: %w", err)
		}
		factory = NewGoogleProviderFactory(cfg.Google)
	case "local", "":
		factory = NewLocalProviderFactory()
	default:
		return nil, fmt.Errorf("unsupported recognition provider type: %s", cfg.Type)
	}
	return factory.CreateProvider()
}
