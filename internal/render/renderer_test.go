package render

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ledgerdesk/backoffice/internal/cache"
	ierr "github.com/ledgerdesk/backoffice/internal/errors"
	"github.com/ledgerdesk/backoffice/internal/logger"
	"github.com/ledgerdesk/backoffice/internal/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type MockEngine struct {
	mock.Mock
	ext string
}

func (m *MockEngine) Ext() string {
	return m.ext
}

func (m *MockEngine) Render(ctx context.Context, tpl *Template, data Binding) ([]byte, error) {
	args := m.Called(ctx, tpl, data)
	out, _ := args.Get(0).([]byte)
	return out, args.Error(1)
}

type MockPrinter struct {
	mock.Mock
}

func (m *MockPrinter) PrintHTML(ctx context.Context, html []byte) ([]byte, error) {
	args := m.Called(ctx, html)
	out, _ := args.Get(0).([]byte)
	return out, args.Error(1)
}

type RendererSuite struct {
	suite.Suite
	ctx      context.Context
	dir      string
	engine   *MockEngine
	renderer *Renderer
}

func TestRenderer(t *testing.T) {
	suite.Run(t, new(RendererSuite))
}

func (s *RendererSuite) SetupTest() {
	s.ctx = context.Background()
	s.dir = s.T().TempDir()
	s.engine = &MockEngine{ext: extTypst}
	s.renderer = New(Options{
		Dir:         s.dir,
		Placeholder: "—",
		Timeout:     time.Second,
	}, logger.NewNopLogger(), cache.NewInMemoryCacheWithTTL(time.Minute), s.engine)
}

func (s *RendererSuite) writeTemplate(name, content string) {
	s.Require().NoError(os.WriteFile(filepath.Join(s.dir, name), []byte(content), 0o644))
}

func (s *RendererSuite) TestRenderBindsPlaceholders() {
	s.writeTemplate("quote.typ", "#let data = json(sys.inputs.path)")
	pdf := testutil.PDF(s.T(), 2)

	s.engine.On("Render", mock.Anything, mock.MatchedBy(func(t *Template) bool {
		return t.Ext == extTypst && t.ID() == "quote"
	}), mock.MatchedBy(func(b Binding) bool {
		customer := b["customer"].(map[string]any)
		rows := b["items"].([]map[string]any)
		return b["number"] == "QT0003" &&
			b["notes"] == "—" &&
			b["terms"] == "—" &&
			customer["email"] == "—" &&
			rows[0]["unit"] == "—" &&
			b["lines"] == 1
	})).Return(pdf, nil).Once()

	out, err := s.renderer.Render(s.ctx, "quote", Binding{
		"number":   "QT0003",
		"notes":    nil,
		"terms":    "   ",
		"customer": map[string]any{"name": "Acme", "email": nil},
		"items":    []map[string]any{{"description": "x", "unit": nil}},
		"lines":    1,
	})
	s.Require().NoError(err)
	s.Equal(2, out.PageCount)
	s.Equal("quote", out.Template)
	s.Equal(pdf, out.Data)
	s.engine.AssertExpectations(s.T())
}

func (s *RendererSuite) TestMissingTemplate() {
	_, err := s.renderer.Render(s.ctx, "receipt", Binding{})
	s.Error(err)
	s.True(ierr.IsTemplateNotFound(err))
	s.engine.AssertNotCalled(s.T(), "Render", mock.Anything, mock.Anything, mock.Anything)
}

func (s *RendererSuite) TestInvalidReference() {
	for _, ref := range []string{"", "../quote", "Quote", "quote@latest"} {
		_, err := s.renderer.Resolve(s.ctx, ref)
		s.True(ierr.IsTemplateNotFound(err), ref)
	}
}

func (s *RendererSuite) TestVersionResolution() {
	s.writeTemplate("request@1.typ", "v1")
	s.writeTemplate("request@12.typ", "v12")
	s.writeTemplate("request@3.typ", "v3")

	tpl, err := s.renderer.Resolve(s.ctx, "request")
	s.Require().NoError(err)
	s.Equal("12", tpl.Version)
	s.Equal("request@12", tpl.ID())

	tpl, err = s.renderer.Resolve(s.ctx, "request@3")
	s.Require().NoError(err)
	s.Equal("v3", string(tpl.Content))

	s.writeTemplate("request.typ", "current")
	s.renderer.Invalidate(s.ctx)
	tpl, err = s.renderer.Resolve(s.ctx, "request")
	s.Require().NoError(err)
	s.Equal("current", string(tpl.Content))
	s.Equal("", tpl.Version)
}

func (s *RendererSuite) TestResolvedTemplatesAreCached() {
	s.writeTemplate("receipt.typ", "layout")
	_, err := s.renderer.Resolve(s.ctx, "receipt")
	s.Require().NoError(err)

	s.Require().NoError(os.Remove(filepath.Join(s.dir, "receipt.typ")))
	tpl, err := s.renderer.Resolve(s.ctx, "receipt")
	s.Require().NoError(err)
	s.Equal("layout", string(tpl.Content))

	s.renderer.Invalidate(s.ctx)
	_, err = s.renderer.Resolve(s.ctx, "receipt")
	s.True(ierr.IsTemplateNotFound(err))
}

func (s *RendererSuite) TestEngineTimeout() {
	s.writeTemplate("quote.typ", "layout")
	s.renderer.opts.Timeout = 50 * time.Millisecond

	s.engine.On("Render", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	_, err := s.renderer.Render(s.ctx, "quote", Binding{})
	s.Error(err)
	s.True(ierr.IsRenderTimeout(err))
}

func (s *RendererSuite) TestEngineOutputMustBePDF() {
	s.writeTemplate("quote.typ", "layout")
	s.engine.On("Render", mock.Anything, mock.Anything, mock.Anything).Return([]byte("not a pdf"), nil)

	_, err := s.renderer.Render(s.ctx, "quote", Binding{})
	s.Error(err)
	s.True(ierr.Is(err, ierr.ErrSystem))
}

func (s *RendererSuite) TestHTMLEngine() {
	printer := new(MockPrinter)
	r := New(Options{Dir: s.dir, Placeholder: "n/a", Timeout: time.Second},
		logger.NewNopLogger(), cache.NewInMemoryCacheWithTTL(time.Minute), NewHTMLEngine(printer))

	s.writeTemplate("purchase-order.html", `<html dir="{{dir .language}}"><h1>{{.number}}</h1>`+
		`<p>{{.supplier.name}}</p><p>{{show .missing}}</p><p>{{.notes}}</p><img src="{{asset "logo.png"}}"></html>`)

	pdf := testutil.PDF(s.T(), 1)
	var html string
	printer.On("PrintHTML", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { html = string(args.Get(1).([]byte)) }).
		Return(pdf, nil)

	out, err := r.Render(s.ctx, "purchase-order", Binding{
		"number":   "PO0007",
		"language": "ar",
		"supplier": map[string]any{"name": "<Gulf & Co>"},
		"notes":    nil,
	})
	s.Require().NoError(err)
	s.Equal(1, out.PageCount)
	s.Equal(extHTML, out.Engine)

	s.Contains(html, `dir="rtl"`)
	s.Contains(html, "<h1>PO0007</h1>")
	s.Contains(html, "&lt;Gulf &amp; Co&gt;")
	s.Contains(html, "<p>n/a</p><p>n/a</p>")
	s.True(strings.Contains(html, `src="file://`) && strings.Contains(html, "logo.png"))
}

func (s *RendererSuite) TestBrokenHTMLTemplate() {
	r := New(Options{Dir: s.dir, Placeholder: "—"}, logger.NewNopLogger(),
		cache.NewInMemoryCacheWithTTL(time.Minute), NewHTMLEngine(new(MockPrinter)))
	s.writeTemplate("quote.html", "{{.number")

	_, err := r.Render(s.ctx, "quote", Binding{})
	s.Error(err)
	s.False(ierr.IsTemplateNotFound(err))
}
