package cloudinary

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

const defaultFolder = "submissions"

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Service archives raw submission artifacts to Cloudinary. Archives are
// stored as raw resources keyed by the submission public id so a retried
// archival overwrites the same asset instead of piling up copies.
type Service struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

// New constructs a Cloudinary service instance.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	folder := strings.Trim(cfg.Folder, "/")
	if folder == "" {
		folder = defaultFolder
	}

	return &Service{
		client: cld,
		folder: folder,
		logger: logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Upload archives the submission artifact and returns a secure URL. The
// name is expected to be the submission public id plus extension, which is
// already unique, so the stored public id is deterministic.
func (s *Service) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	publicID := sanitizeAssetID(name)

	params := uploader.UploadParams{
		Folder:       s.folder,
		PublicID:     publicID,
		ResourceType: "raw",
		Overwrite:    api.Bool(true),
	}

	result, err := s.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return "", fmt.Errorf("failed to archive submission artifact: %w", err)
	}

	s.logger.Info().Str("public_id", result.PublicID).Msg("submission artifact archived")

	return result.SecureURL, nil
}

// sanitizeAssetID keeps the extension so raw downloads resolve with the
// original archive type.
func sanitizeAssetID(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return '-'
	}, name)

	cleaned = strings.Trim(cleaned, "-.")
	if cleaned == "" {
		return "artifact"
	}

	return cleaned
}
