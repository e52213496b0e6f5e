package handlers

import (
	"github.com/rs/zerolog"

	"imagevault/internal/config"
	domain "imagevault/internal/domain/image"
)

// Provider wires HTTP handlers.
type Provider struct {
	Image *ImageHandler
}

func NewProvider(cfg *config.Config, service *domain.Service, log zerolog.Logger) *Provider {
	return &Provider{
		Image: NewImageHandler(cfg, service, log),
	}
}
