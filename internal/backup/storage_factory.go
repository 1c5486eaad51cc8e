package backup

import (
	"context"
	"fmt"

	"dump-rotator/internal/config"
)

// Offsite provider names
const (
	OffsiteProviderS3    = "s3"
	OffsiteProviderAzure = "azure"
	OffsiteProviderGCS   = "gcs"
	OffsiteProviderLocal = "local"
)

// NewOffsiteStore creates the store selected by cfg.Provider
func NewOffsiteStore(ctx context.Context, cfg config.OffsiteConfig) (OffsiteStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, NewConfigurationError("invalid offsite configuration", err)
	}

	switch cfg.Provider {
	case OffsiteProviderS3:
		return NewS3Store(cfg.S3, cfg.Prefix)
	case OffsiteProviderAzure:
		return NewAzureStore(cfg.Azure, cfg.Prefix)
	case OffsiteProviderGCS:
		return NewGCSStore(ctx, cfg.GCS, cfg.Prefix)
	case OffsiteProviderLocal:
		return NewLocalStore(cfg.Local, cfg.Prefix)
	default:
		return nil, NewConfigurationError(fmt.Sprintf("unsupported offsite provider: %s", cfg.Provider), nil)
	}
}

// SupportedOffsiteProviders returns the provider names NewOffsiteStore accepts
func SupportedOffsiteProviders() []string {
	return []string{
		OffsiteProviderS3,
		OffsiteProviderAzure,
		OffsiteProviderGCS,
		OffsiteProviderLocal,
	}
}
