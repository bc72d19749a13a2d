package service

import (
	"context"

	"github.com/ledgerdesk/backoffice/internal/pdf"
	"github.com/stretchr/testify/mock"
)

var _ pdf.Generator = (*MockGenerator)(nil)

// MockGenerator stands in for the artifact pipeline
type MockGenerator struct {
	mock.Mock
}

func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// CreateArtifact implements pdf.Generator.
func (m *MockGenerator) CreateArtifact(ctx context.Context, req *pdf.Request) (*pdf.Result, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*pdf.Result)
	return result, args.Error(1)
}

// DiscardArtifact implements pdf.Generator.
func (m *MockGenerator) DiscardArtifact(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}
