package service

import (
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ledgerdesk/backoffice/internal/api/dto"
	"github.com/ledgerdesk/backoffice/internal/artifact"
	"github.com/ledgerdesk/backoffice/internal/cache"
	"github.com/ledgerdesk/backoffice/internal/compose"
	"github.com/ledgerdesk/backoffice/internal/config"
	"github.com/ledgerdesk/backoffice/internal/domain/record"
	ierr "github.com/ledgerdesk/backoffice/internal/errors"
	"github.com/ledgerdesk/backoffice/internal/logger"
	"github.com/ledgerdesk/backoffice/internal/pdf"
	"github.com/ledgerdesk/backoffice/internal/raster"
	"github.com/ledgerdesk/backoffice/internal/render"
	"github.com/ledgerdesk/backoffice/internal/store"
	"github.com/ledgerdesk/backoffice/internal/testutil"
	"github.com/ledgerdesk/backoffice/internal/types"
	"github.com/ledgerdesk/backoffice/internal/validator"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/suite"
)

// stubEngine renders every template as a one page PDF and remembers the
// last binding it was given
type stubEngine struct {
	mu   sync.Mutex
	last render.Binding
	err  error
}

func (e *stubEngine) Ext() string { return ".typ" }

func (e *stubEngine) Render(_ context.Context, _ *render.Template, data render.Binding) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.last = data
	return testutil.BuildPDF(1)
}

func (e *stubEngine) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

func (e *stubEngine) binding() render.Binding {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// pageConverter emits one PNG per page of the input, in reverse order
type pageConverter struct{}

func (pageConverter) Convert(_ context.Context, pdfPath, outDir string) error {
	f, err := os.Open(pdfPath)
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := pdfapi.PageCount(f, model.NewDefaultConfiguration())
	if err != nil {
		return err
	}
	for p := n; p >= 1; p-- {
		name := filepath.Join(outDir, fmt.Sprintf("page-%d.png", p))
		if err := os.WriteFile(name, testutil.PNG(170, 220, color.White), 0o600); err != nil {
			return err
		}
	}
	return nil
}

type DocumentServiceSuite struct {
	suite.Suite
	ctx       context.Context
	cfg       *config.Configuration
	store     *store.Store
	artifacts *artifact.Store
	engine    *stubEngine
	services  DocumentServices
}

func TestDocumentService(t *testing.T) {
	suite.Run(t, new(DocumentServiceSuite))
}

func (s *DocumentServiceSuite) SetupSuite() {
	validator.NewValidator()
	pdfapi.DisableConfigDir()
}

func (s *DocumentServiceSuite) SetupTest() {
	s.ctx = testutil.SetupContext()
	dir := s.T().TempDir()
	log := logger.NewNopLogger()

	s.cfg = config.GetDefaultConfig()
	s.cfg.Storage.DataDir = filepath.Join(dir, "data")
	s.cfg.Storage.ArtifactDir = filepath.Join(dir, "artifacts")
	s.cfg.Templates.Dir = filepath.Join(dir, "templates")
	s.cfg.Compose.AppendixPath = filepath.Join(dir, "terms.pdf")

	s.Require().NoError(os.MkdirAll(s.cfg.Templates.Dir, 0o755))
	for _, name := range []string{"purchase-order.typ", "quote.typ", "receipt.typ", "request.typ"} {
		s.Require().NoError(os.WriteFile(filepath.Join(s.cfg.Templates.Dir, name), []byte("#let data = none"), 0o644))
	}
	s.Require().NoError(os.WriteFile(s.cfg.Compose.AppendixPath, testutil.PDF(s.T(), 1), 0o644))

	var err error
	s.store, err = store.NewStore(s.cfg, log)
	s.Require().NoError(err)
	s.artifacts, err = artifact.NewStore(s.cfg, log, nil)
	s.Require().NoError(err)

	c := cache.NewInMemoryCacheWithTTL(time.Hour)
	s.engine = &stubEngine{}
	renderer := render.New(render.Options{
		Dir:         s.cfg.Templates.Dir,
		Placeholder: s.cfg.Templates.Placeholder,
		Timeout:     10 * time.Second,
	}, log, c, s.engine)
	rasterizer := raster.New(pageConverter{}, raster.Options{Timeout: 10 * time.Second}, log)
	composer := compose.NewComposer(s.cfg, log, c)

	generator := pdf.NewGenerator(renderer, rasterizer, composer, s.artifacts, log)
	s.services, err = NewDocumentServices(NewServiceParams(log, s.cfg, s.store, generator, s.artifacts))
	s.Require().NoError(err)
}

func (s *DocumentServiceSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func (s *DocumentServiceSuite) service(kind types.DocumentKind) DocumentService {
	svc, err := s.services.For(kind)
	s.Require().NoError(err)
	return svc
}

func purchaseOrderFields() json.RawMessage {
	return json.RawMessage(`{
		"title": "Office chairs",
		"supplier": {"name": "Gulf Furniture"},
		"currency": "USD",
		"items": [
			{"description": "Chair", "quantity": "4", "unit_price": "150.00"},
			{"description": "Desk", "quantity": "1", "unit_price": "445"}
		],
		"tax_percent": "15"
	}`)
}

func (s *DocumentServiceSuite) artifactPages(name string) int {
	data, err := s.artifacts.Read(name)
	s.Require().NoError(err)
	return testutil.PageCount(s.T(), data)
}

func (s *DocumentServiceSuite) TestCreateAllocatesNextNumber() {
	s.Require().NoError(s.store.Set(s.ctx, "PO", 6))

	resp, err := s.service(types.DocumentKindPurchaseOrder).CreateDocument(s.ctx, dto.CreateDocumentRequest{
		Fields: purchaseOrderFields(),
	})
	s.Require().NoError(err)

	s.Equal("PO0007", resp.Number)
	s.Equal(types.LanguageEnglish, resp.Language)
	s.Equal("Office chairs", resp.Label)
	s.Equal(types.DefaultUserID, resp.CreatedBy)
	s.Require().NotNil(resp.Artifact)
	s.Equal(types.ArtifactOutcomeSucceeded, resp.Artifact.Outcome)
	s.Equal(1, resp.Artifact.PageCount)
	s.False(resp.Artifact.Merged)
	s.Regexp(`^PO0007_Office_chairs_\d{8}\.pdf$`, resp.Artifact.Name)
	s.Equal(1, s.artifactPages(resp.Artifact.Name))

	b := s.engine.binding()
	s.Equal("1201.75", b["total"])
	doc := b["document"].(map[string]any)
	s.Equal("PO0007", doc["number"])
	s.Equal("ltr", doc["dir"])
	s.Equal("—", b["notes"])

	stored, err := s.store.Load(s.ctx, "purchase_orders")
	s.Require().NoError(err)
	s.Require().Len(stored, 1)
	s.Equal(resp.Artifact.Name, stored[0].Artifact.Name)
}

func (s *DocumentServiceSuite) TestCreateWithAttachmentAndAppendix() {
	resp, err := s.service(types.DocumentKindPurchaseOrder).CreateDocument(s.ctx, dto.CreateDocumentRequest{
		Fields:          purchaseOrderFields(),
		Attachment:      testutil.PDF(s.T(), 2),
		IncludeAppendix: true,
	})
	s.Require().NoError(err)

	s.Require().NotNil(resp.Artifact)
	s.True(resp.Artifact.Merged)
	s.Equal(4, resp.Artifact.PageCount)
	s.Equal(types.ArtifactOutcomeSucceeded, resp.Artifact.Outcome)
	s.Equal(4, s.artifactPages(resp.Artifact.Name))
	s.True(resp.IncludeAppendix)
}

func (s *DocumentServiceSuite) TestInvalidAttachmentDegrades() {
	resp, err := s.service(types.DocumentKindPurchaseOrder).CreateDocument(s.ctx, dto.CreateDocumentRequest{
		Fields:     purchaseOrderFields(),
		Attachment: []byte("definitely not a pdf"),
	})
	s.Require().NoError(err)

	s.Equal(types.ArtifactOutcomeDegraded, resp.Artifact.Outcome)
	s.False(resp.Artifact.Merged)
	s.NotEmpty(resp.Artifact.MergeError)
	s.Equal(1, s.artifactPages(resp.Artifact.Name))
}

func (s *DocumentServiceSuite) TestConcurrentCreatesGetDistinctNumbers() {
	svc := s.service(types.DocumentKindPurchaseOrder)
	const n = 8

	var wg sync.WaitGroup
	numbers := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := svc.CreateDocument(s.ctx, dto.CreateDocumentRequest{Fields: purchaseOrderFields()})
			errs[i] = err
			if err == nil {
				numbers[i] = resp.Number
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		s.Require().NoError(errs[i])
		s.False(seen[numbers[i]], "duplicate number %s", numbers[i])
		seen[numbers[i]] = true
	}
	for i := 1; i <= n; i++ {
		s.True(seen[store.FormatNumber("PO", i, 4)])
	}
}

func (s *DocumentServiceSuite) TestRenderFailureRollsBack() {
	svc := s.service(types.DocumentKindPurchaseOrder)
	s.engine.fail(ierr.NewError("engine crashed").Mark(ierr.ErrSystem))

	_, err := svc.CreateDocument(s.ctx, dto.CreateDocumentRequest{Fields: purchaseOrderFields()})
	s.Require().Error(err)

	stored, err := s.store.Load(s.ctx, "purchase_orders")
	s.Require().NoError(err)
	s.Empty(stored)

	// The voided number is not reissued.
	s.engine.fail(nil)
	resp, err := svc.CreateDocument(s.ctx, dto.CreateDocumentRequest{Fields: purchaseOrderFields()})
	s.Require().NoError(err)
	s.Equal("PO0002", resp.Number)
}

func (s *DocumentServiceSuite) TestValidation() {
	svc := s.service(types.DocumentKindPurchaseOrder)

	_, err := svc.CreateDocument(s.ctx, dto.CreateDocumentRequest{})
	s.True(ierr.IsValidation(err))

	_, err = svc.CreateDocument(s.ctx, dto.CreateDocumentRequest{
		Fields: json.RawMessage(`{"supplier": {"name": "X"}, "currency": "USD", "items": []}`),
	})
	s.True(ierr.IsValidation(err))

	_, err = svc.CreateDocument(s.ctx, dto.CreateDocumentRequest{
		Fields:   purchaseOrderFields(),
		Language: "fr",
	})
	s.True(ierr.IsValidation(err))

	_, err = svc.CreateDocument(s.ctx, dto.CreateDocumentRequest{
		Fields:   purchaseOrderFields(),
		Template: "quote",
	})
	s.True(ierr.IsValidation(err))

	n, err := s.store.Peek(s.ctx, "PO")
	s.Require().NoError(err)
	s.Zero(n, "rejected requests must not consume numbers")
}

func (s *DocumentServiceSuite) TestUpdateSupersedesArtifact() {
	svc := s.service(types.DocumentKindPurchaseOrder)
	created, err := svc.CreateDocument(s.ctx, dto.CreateDocumentRequest{Fields: purchaseOrderFields()})
	s.Require().NoError(err)
	oldName := created.Artifact.Name

	label := "Chairs for HQ"
	updated, err := svc.UpdateDocument(s.ctx, created.ID, dto.UpdateDocumentRequest{
		Fields: json.RawMessage(`{"supplier": {"name": "Gulf Furniture"}, "currency": "USD", "items": [{"description": "Chair", "quantity": "2", "unit_price": "10"}]}`),
		Label:  &label,
	})
	s.Require().NoError(err)

	s.Equal(created.Number, updated.Number)
	s.Equal(1, updated.Revision)
	s.Regexp(`^PO0001_Chairs_for_HQ_\d{8}_r1\.pdf$`, updated.Artifact.Name)
	s.Equal("20.00", s.engine.binding()["subtotal"])

	_, err = s.artifacts.Stat(oldName)
	s.True(ierr.IsNotFound(err))
	_, err = s.artifacts.Stat(updated.Artifact.Name)
	s.NoError(err)
}

func (s *DocumentServiceSuite) TestFailedUpdateKeepsRecord() {
	svc := s.service(types.DocumentKindPurchaseOrder)
	created, err := svc.CreateDocument(s.ctx, dto.CreateDocumentRequest{Fields: purchaseOrderFields()})
	s.Require().NoError(err)

	s.engine.fail(ierr.NewError("render timed out").Mark(ierr.ErrRenderTimeout))
	_, err = svc.RegenerateArtifact(s.ctx, created.ID, dto.GenerateArtifactRequest{})
	s.Require().Error(err)
	s.True(ierr.IsRenderTimeout(err))

	got, err := svc.GetDocument(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(0, got.Revision)
	s.Equal(created.Artifact.Name, got.Artifact.Name)
	_, err = s.artifacts.Stat(created.Artifact.Name)
	s.NoError(err)
}

func (s *DocumentServiceSuite) TestRegenerateWithAttachment() {
	svc := s.service(types.DocumentKindPurchaseOrder)
	created, err := svc.CreateDocument(s.ctx, dto.CreateDocumentRequest{Fields: purchaseOrderFields()})
	s.Require().NoError(err)

	include := true
	resp, err := svc.RegenerateArtifact(s.ctx, created.ID, dto.GenerateArtifactRequest{
		IncludeAppendix: &include,
		Attachment:      testutil.PDF(s.T(), 2),
	})
	s.Require().NoError(err)
	s.Equal(1, resp.Revision)
	s.Equal(4, resp.Artifact.PageCount)
	s.True(resp.Artifact.Merged)
	s.True(resp.IncludeAppendix)
}

func (s *DocumentServiceSuite) TestDeleteRemovesArtifact() {
	svc := s.service(types.DocumentKindPurchaseOrder)
	created, err := svc.CreateDocument(s.ctx, dto.CreateDocumentRequest{Fields: purchaseOrderFields()})
	s.Require().NoError(err)

	s.Require().NoError(svc.DeleteDocument(s.ctx, created.ID))

	_, err = svc.GetDocument(s.ctx, created.ID)
	s.True(ierr.IsNotFound(err))
	_, err = s.artifacts.Stat(created.Artifact.Name)
	s.True(ierr.IsNotFound(err))
	s.True(ierr.IsNotFound(svc.DeleteDocument(s.ctx, created.ID)))
}

func (s *DocumentServiceSuite) TestDeleteReleasesRecordLock() {
	svc := s.service(types.DocumentKindPurchaseOrder)
	created, err := svc.CreateDocument(s.ctx, dto.CreateDocumentRequest{Fields: purchaseOrderFields()})
	s.Require().NoError(err)

	_, err = svc.RegenerateArtifact(s.ctx, created.ID, dto.GenerateArtifactRequest{})
	s.Require().NoError(err)
	impl := svc.(*documentService)
	_, held := impl.mu.Load(created.ID)
	s.True(held)

	s.Require().NoError(svc.DeleteDocument(s.ctx, created.ID))
	_, held = impl.mu.Load(created.ID)
	s.False(held, "lock entry must go with the record")
}

func (s *DocumentServiceSuite) TestListNewestFirst() {
	svc := s.service(types.DocumentKindPurchaseOrder)
	other := types.WithUserID(s.ctx, "user_2")
	for _, ctx := range []context.Context{s.ctx, other, s.ctx} {
		_, err := svc.CreateDocument(ctx, dto.CreateDocumentRequest{Fields: purchaseOrderFields()})
		s.Require().NoError(err)
	}

	all, err := svc.ListDocuments(s.ctx, &types.DocumentFilter{})
	s.Require().NoError(err)
	s.Equal(3, all.Pagination.Total)
	s.Equal([]string{"PO0003", "PO0002", "PO0001"}, []string{all.Items[0].Number, all.Items[1].Number, all.Items[2].Number})

	mine, err := svc.ListDocuments(s.ctx, &types.DocumentFilter{CreatedBy: "user_2"})
	s.Require().NoError(err)
	s.Require().Len(mine.Items, 1)
	s.Equal("PO0002", mine.Items[0].Number)

	paged, err := svc.ListDocuments(s.ctx, &types.DocumentFilter{Limit: 1, Offset: 1})
	s.Require().NoError(err)
	s.Require().Len(paged.Items, 1)
	s.Equal("PO0002", paged.Items[0].Number)
	s.Equal(3, paged.Pagination.Total)
}

func (s *DocumentServiceSuite) TestOpenArtifact() {
	svc := s.service(types.DocumentKindPurchaseOrder)
	created, err := svc.CreateDocument(s.ctx, dto.CreateDocumentRequest{Fields: purchaseOrderFields()})
	s.Require().NoError(err)

	dl, err := svc.OpenArtifact(s.ctx, created.ID)
	s.Require().NoError(err)
	defer dl.Content.Close()

	data, err := io.ReadAll(dl.Content)
	s.Require().NoError(err)
	s.Equal(created.Artifact.Name, dl.Name)
	s.Equal(int64(len(data)), dl.Size)
	s.Equal(1, testutil.PageCount(s.T(), data))

	_, err = svc.ArtifactURL(s.ctx, created.ID)
	s.True(ierr.Is(err, ierr.ErrInvalidOperation))
}

func (s *DocumentServiceSuite) TestKindsNumberIndependently() {
	po, err := s.service(types.DocumentKindPurchaseOrder).CreateDocument(s.ctx, dto.CreateDocumentRequest{Fields: purchaseOrderFields()})
	s.Require().NoError(err)
	qt, err := s.service(types.DocumentKindQuote).CreateDocument(s.ctx, dto.CreateDocumentRequest{
		Fields: json.RawMessage(`{"customer": {"name": "Acme"}, "currency": "SAR", "valid_until": "2026-12-31", "items": [{"description": "Audit", "quantity": "1", "unit_price": "900"}]}`),
	})
	s.Require().NoError(err)

	s.Equal("PO0001", po.Number)
	s.Equal("QT0001", qt.Number)

	_, err = s.services.For("invoice")
	s.True(ierr.IsNotFound(err))
}

func (s *DocumentServiceSuite) TestArabicBindingIsRightToLeft() {
	svc := s.service(types.DocumentKindQuote).(*documentService)
	schema, err := svc.decode(json.RawMessage(`{"customer": {"name": "شركة"}, "currency": "SAR", "items": [{"description": "تدقيق", "quantity": "1", "unit_price": "900"}]}`))
	s.Require().NoError(err)

	b := svc.binding(&record.Record{Number: "QT0003", Language: types.LanguageArabic}, schema)
	doc := b["document"].(map[string]any)
	s.Equal("rtl", doc["dir"])
	s.Equal("ar", doc["language"])
	s.Equal("900.00", b["total"])
}
