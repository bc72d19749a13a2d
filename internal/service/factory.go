package service

import (
	"context"
	"os"

	"github.com/ledgerdesk/backoffice/internal/artifact"
	"github.com/ledgerdesk/backoffice/internal/config"
	"github.com/ledgerdesk/backoffice/internal/domain/record"
	"github.com/ledgerdesk/backoffice/internal/logger"
	"github.com/ledgerdesk/backoffice/internal/pdf"
)

// ArtifactReader serves stored artifacts to callers
type ArtifactReader interface {
	Open(name string) (*os.File, *artifact.Info, error)
	DownloadURL(ctx context.Context, name string) (string, bool, error)
}

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger    *logger.Logger
	Config    *config.Configuration
	Store     record.Repository
	Generator pdf.Generator
	Artifacts ArtifactReader
}

func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	store record.Repository,
	generator pdf.Generator,
	artifacts ArtifactReader,
) ServiceParams {
	return ServiceParams{
		Logger:    logger,
		Config:    config,
		Store:     store,
		Generator: generator,
		Artifacts: artifacts,
	}
}
