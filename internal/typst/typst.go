package typst

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/ledgerdesk/backoffice/internal/config"
	ierr "github.com/ledgerdesk/backoffice/internal/errors"
	"github.com/ledgerdesk/backoffice/internal/logger"
	"github.com/ledgerdesk/backoffice/internal/utils"
)

type Compiler interface {
	Compile(ctx context.Context, opts CompileOpts) ([]byte, error)
	CompileTemplate(ctx context.Context, templatePath string, data []byte, opts ...CompileOptsBuilder) ([]byte, error)
}

// compiler runs the typst CLI as a subprocess
type compiler struct {
	// logger for logging
	logger *logger.Logger
	// Path to the typst binary
	binaryPath string
	// Directory where fonts are stored
	fontDir string
	// Directory under which per run work directories are created
	workDir string
}

// CompileOpts contains options for compiling a Typst document
type CompileOpts struct {
	// Input file path
	InputFile string
	// Root directory typst may read from, defaults to the input's directory
	Root string
	// Font paths to include
	FontDirs []string
	// Inputs are passed as --input key=value
	Inputs map[string]string
	// Additional command-line arguments
	ExtraArgs []string
}

type CompileOptsBuilder func(c *CompileOpts)

func WithRoot(root string) CompileOptsBuilder {
	return func(c *CompileOpts) {
		c.Root = root
	}
}

func WithFontDirs(fontDirs ...string) CompileOptsBuilder {
	return func(c *CompileOpts) {
		c.FontDirs = fontDirs
	}
}

func WithInput(key, value string) CompileOptsBuilder {
	return func(c *CompileOpts) {
		if c.Inputs == nil {
			c.Inputs = map[string]string{}
		}
		c.Inputs[key] = value
	}
}

func WithExtraArgs(extraArgs ...string) CompileOptsBuilder {
	return func(c *CompileOpts) {
		c.ExtraArgs = extraArgs
	}
}

// NewCompiler creates a new Typst compiler
func NewCompiler(logger *logger.Logger, binaryPath, fontDir, workDir string) Compiler {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &compiler{
		logger:     logger,
		binaryPath: binaryPath,
		fontDir:    fontDir,
		workDir:    workDir,
	}
}

// NewCompilerFromConfig creates the compiler configured for the application
func NewCompilerFromConfig(cfg *config.Configuration, logger *logger.Logger) Compiler {
	return NewCompiler(logger, cfg.Typst.Binary, cfg.Typst.FontDir, "")
}

// Compile compiles a Typst document to PDF. The output is written to a
// private work directory which is removed before returning, on success,
// failure and timeout alike.
func (c *compiler) Compile(ctx context.Context, opts CompileOpts) ([]byte, error) {
	work, err := os.MkdirTemp(c.workDir, "typst-*")
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to create typst work directory").
			WithHint("template error").
			Mark(ierr.ErrSystem)
	}
	defer os.RemoveAll(work)

	return c.compileIn(ctx, work, opts)
}

func (c *compiler) compileIn(ctx context.Context, work string, opts CompileOpts) ([]byte, error) {
	outputFile := filepath.Join(work, "out.pdf")

	root := opts.Root
	if root == "" {
		root = filepath.Dir(opts.InputFile)
	}

	var fontDirs []string
	if c.fontDir != "" {
		fontDirs = append(fontDirs, c.fontDir)
	}
	fontDirs = append(fontDirs, opts.FontDirs...)

	args := []string{"compile", "--root", root}
	for _, dir := range fontDirs {
		args = append(args, "--font-path", dir)
	}
	for k, v := range opts.Inputs {
		args = append(args, "--input", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, opts.ExtraArgs...)
	args = append(args, opts.InputFile, outputFile)

	cmd := exec.CommandContext(ctx, c.binaryPath, args...)
	utils.IsolateProcessGroup(cmd)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.logger.Warnw("typst compilation aborted", "input", opts.InputFile, "error", ctxErr)
			return nil, ierr.WithError(ctxErr).
				WithMessage("typst compilation aborted").
				WithHint("Rendering the document took too long").
				WithReportableDetails(map[string]any{
					"engine": "typst",
				}).
				Mark(ierr.ErrRenderTimeout)
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return nil, ierr.WithError(err).
				WithMessagef("typst binary %s is not runnable", c.binaryPath).
				WithHint("typst error").
				Mark(ierr.ErrSystem)
		}
		return nil, ierr.WithError(err).
			WithMessage("typst compilation failed").
			WithHint("typst error").
			WithReportableDetails(map[string]any{
				"stderr": stderr.String(),
			}).
			Mark(ierr.ErrSystem)
	}

	return os.ReadFile(outputFile)
}

// CompileTemplate compiles a Typst template with the provided data
// the data needs to be a valid JSON document compatible with the template.
// It is written to a file passed as the "path" input:
//
//	#let data = json(sys.inputs.path)
func (c *compiler) CompileTemplate(
	ctx context.Context,
	templatePath string,
	data []byte,
	opts ...CompileOptsBuilder,
) ([]byte, error) {
	if _, err := os.Stat(templatePath); err != nil {
		return nil, ierr.WithError(err).
			WithMessagef("template not found: %s", templatePath).
			WithHint("Document template is missing").
			Mark(ierr.ErrTemplateNotFound)
	}

	work, err := os.MkdirTemp(c.workDir, "typst-*")
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to create typst work directory").
			WithHint("template error").
			Mark(ierr.ErrSystem)
	}
	defer os.RemoveAll(work)

	jsonFile := filepath.Join(work, "data.json")
	if err := os.WriteFile(jsonFile, data, 0o600); err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to write data to json file").
			WithHint("template error").
			Mark(ierr.ErrSystem)
	}

	// --root must cover both the template and the data file
	compileOpts := CompileOpts{
		InputFile: templatePath,
		Root:      "/",
		Inputs:    map[string]string{"path": jsonFile},
	}
	for _, opt := range opts {
		opt(&compileOpts)
	}

	return c.compileIn(ctx, work, compileOpts)
}
