package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"git.home.luguber.info/inful/reportbal/internal/config"
	berrors "git.home.luguber.info/inful/reportbal/internal/errors"
)

// Engine renders one materialized document into displayable output. The
// caller only learns whether a placeable artifact was produced.
type Engine interface {
	// Render consumes the document at docPath and returns the rendered
	// page bytes, or an error when no output could be produced.
	Render(ctx context.Context, docPath string) ([]byte, error)
}

// NewEngine selects an engine implementation from config.
func NewEngine(cfg config.RenderConfig) Engine {
	if cfg.Engine == config.EngineMarkdown {
		return &MarkdownEngine{}
	}
	return &RmarkdownEngine{Command: cfg.Command}
}

// RmarkdownEngine shells out to R and renders the document with rmarkdown.
// The rendered HTML lands next to the document; its bytes are returned.
type RmarkdownEngine struct {
	Command string // "R" unless overridden
}

func (e *RmarkdownEngine) Render(ctx context.Context, docPath string) ([]byte, error) {
	command := e.Command
	if command == "" {
		command = "R"
	}
	expr := fmt.Sprintf("suppressWarnings(rmarkdown::render('%s', quiet=TRUE))", docPath)
	cmd := exec.CommandContext(ctx, command, "--vanilla", "-q", "-s", "-e", expr)

	// A populated user library can shadow the packages rmarkdown needs.
	cmd.Env = append(os.Environ(), "R_LIBS_USER=")

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return nil, berrors.RenderFailure(
			fmt.Errorf("%w: %s", err, strings.TrimSpace(out.String())), "rmarkdown render")
	}

	htmlPath := strings.TrimSuffix(docPath, filepath.Ext(docPath)) + ".html"
	rendered, err := os.ReadFile(htmlPath) // #nosec G304 - derived from our own doc path
	if err != nil {
		return nil, berrors.RenderFailure(err, "read rmarkdown output")
	}
	return rendered, nil
}

// MarkdownEngine renders the document in-process with goldmark. It is the
// fallback when R is unavailable: code chunks stay unevaluated, but the
// page structure and metadata survive.
type MarkdownEngine struct{}

func (e *MarkdownEngine) Render(ctx context.Context, docPath string) ([]byte, error) {
	source, err := os.ReadFile(docPath) // #nosec G304
	if err != nil {
		return nil, berrors.RenderFailure(err, "read document")
	}
	source = stripFrontmatter(source)

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
	)
	var buf bytes.Buffer
	if err := md.Convert(source, &buf); err != nil {
		return nil, berrors.RenderFailure(err, "markdown render")
	}
	return buf.Bytes(), nil
}

// stripFrontmatter removes a leading YAML metadata block.
func stripFrontmatter(source []byte) []byte {
	const delim = "---\n"
	if !bytes.HasPrefix(source, []byte(delim)) {
		return source
	}
	rest := source[len(delim):]
	end := bytes.Index(rest, []byte("\n"+delim))
	if end < 0 {
		return source
	}
	return rest[end+len(delim)+1:]
}
