package recognition

import (
	"context"
	"fmt"

	"github.com/franckalain/medtrack/internal/capture"
)

// LocalProvider is the offline placeholder. It has no recognition model, so it
// reports every request as unavailable; the user can type the value instead.
type LocalProvider struct{}

// LocalProviderFactory implements Factory for local providers
type LocalProviderFactory struct{}

// NewLocalProviderFactory creates a new local provider factory
func NewLocalProviderFactory() *LocalProviderFactory {
	return &LocalProviderFactory{}
}

// CreateProvider creates a new local provider instance
func (f *LocalProviderFactory) CreateProvider() (Provider, error) {
	return &LocalProvider{}, nil
}

func (p *LocalProvider) Load(ctx context.Context) error {
	return nil
}

// TODO: plug an on-device OCR model here once one is packaged with the server.
func (p *LocalProvider) Recognize(ctx context.Context, target capture.Target, frame []byte) (string, error) {
	if !target.Valid() {
		return "", fmt.Errorf("%w: %q", capture.ErrInvalidTarget, target)
	}
	return "", fmt.Errorf("%w: local recognition is not implemented", ErrUnavailable)
}

func (p *LocalProvider) Close() error {
	return nil
}
