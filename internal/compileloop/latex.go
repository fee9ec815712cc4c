package compileloop

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var _ Compiler = (*PDFLaTeX)(nil)

// PDFLaTeX compiles LaTeX source with a pdflatex-compatible CLI. Every
// compilation runs in its own directory named by a fresh UUID so
// concurrent runs on the same host never collide.
type PDFLaTeX struct {
	command string
	timeout time.Duration
	workDir string
	log     *zap.Logger
}

// NewPDFLaTeX creates a compiler. An empty workDir uses the system temp
// directory; an empty command defaults to "pdflatex".
func NewPDFLaTeX(command, workDir string, timeout time.Duration, log *zap.Logger) *PDFLaTeX {
	if command == "" {
		command = "pdflatex"
	}
	if workDir == "" {
		workDir = os.TempDir()
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PDFLaTeX{command: command, timeout: timeout, workDir: workDir, log: log}
}

// Compile writes the source to a run-unique directory and invokes the
// compiler. On failure it returns the diagnostics parsed from the
// compiler output alongside the error. Failed attempts remove their
// build directory; a successful one is kept, since the artifact lives
// inside it.
func (p *PDFLaTeX) Compile(ctx context.Context, source string) (string, []string, error) {
	dir := filepath.Join(p.workDir, "dossierforge-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", nil, fmt.Errorf("failed to create build directory: %w", err)
	}
	keep := false
	defer func() {
		if !keep {
			if err := os.RemoveAll(dir); err != nil {
				p.log.Warn("Failed to remove build directory",
					zap.String("dir", dir), zap.Error(err))
			}
		}
	}()

	texPath := filepath.Join(dir, "document.tex")
	if err := os.WriteFile(texPath, []byte(source), 0644); err != nil {
		return "", nil, fmt.Errorf("failed to write source: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.command,
		"-interaction=nonstopmode",
		"-output-directory", dir,
		texPath)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()

	diagnostics := parseLaTeXErrors(string(output))
	if err != nil {
		p.log.Debug("Compiler exited with error",
			zap.String("dir", dir),
			zap.Int("diagnostics", len(diagnostics)))
		return "", diagnostics, fmt.Errorf("%s failed: %w", p.command, err)
	}
	// pdflatex can exit zero yet still report errors in nonstop mode.
	if len(diagnostics) > 0 {
		return "", diagnostics, fmt.Errorf("%s reported %d errors", p.command, len(diagnostics))
	}

	pdfPath := filepath.Join(dir, "document.pdf")
	if _, statErr := os.Stat(pdfPath); statErr != nil {
		return "", diagnostics, fmt.Errorf("compiler succeeded but no artifact at %s: %w", pdfPath, statErr)
	}
	keep = true
	return pdfPath, nil, nil
}

// parseLaTeXErrors extracts error lines from compiler output. LaTeX
// errors start with "! " and are often followed by an "l.<line>" marker
// pointing at the offending source line.
func parseLaTeXErrors(output string) []string {
	var diagnostics []string
	lines := strings.Split(output, "\n")
	for i, line := range lines {
		if !strings.HasPrefix(line, "! ") {
			continue
		}
		diag := strings.TrimPrefix(line, "! ")
		// Attach the location marker when the next few lines carry one.
		for j := i + 1; j < len(lines) && j <= i+4; j++ {
			if strings.HasPrefix(lines[j], "l.") {
				diag = fmt.Sprintf("%s (%s)", diag, strings.TrimSpace(lines[j]))
				break
			}
		}
		diagnostics = append(diagnostics, diag)
	}
	return diagnostics
}
