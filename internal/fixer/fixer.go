// Package fixer asks the model to diagnose and repair a failing Go test
// file from its error log.
package fixer

import (
	"context"
	"errors"
	"fmt"
	"go/format"
	"go/parser"
	"go/token"
	"os"
	"regexp"
	"strings"

	"github.com/kamilpajak/smarttest/internal/llm"
	"go.uber.org/zap"
)

// BackupSuffix is appended to a test file's name for its backup copy.
const BackupSuffix = ".bak"

// MaxLogBytes bounds the error log excerpt sent to the model.
const MaxLogBytes = 8000

var (
	// ErrNoCompleter is returned when no model client is configured.
	ErrNoCompleter = errors.New("fixing tests needs an AI client")
	// ErrInvalidFix is returned when the model's fix does not parse as Go.
	ErrInvalidFix = errors.New("generated fix contains syntax errors")
)

const (
	unknownIssue = "Unknown issue"
	noFix        = "No fix suggested"
)

var (
	issuePattern = regexp.MustCompile(`(?s)Issue:(.*?)(?:Fix:|$)`)
	fixPattern   = regexp.MustCompile(`(?s)Fix:(.*)$`)
)

// Diagnosis is the model's reading of a failure.
type Diagnosis struct {
	TestFile     string `json:"test_file"`
	Issue        string `json:"issue"`
	SuggestedFix string `json:"suggested_fix"`
	Raw          string `json:"raw_analysis"`
}

// Fixer diagnoses and repairs failing tests.
type Fixer struct {
	client llm.Completer
	logger *zap.Logger
}

// Option configures a Fixer.
type Option func(*Fixer)

// WithLogger sets the fixer logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Fixer) {
		if l != nil {
			f.logger = l.Named("fixer")
		}
	}
}

// New creates a Fixer backed by client.
func New(client llm.Completer, opts ...Option) *Fixer {
	f := &Fixer{client: client, logger: zap.NewNop()}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Analyze asks the model why testFile failed with errorLog.
func (f *Fixer) Analyze(ctx context.Context, testFile, errorLog string) (*Diagnosis, error) {
	code, err := f.read(testFile)
	if err != nil {
		return nil, err
	}
	text, err := f.complete(ctx, analyzeSystemPrompt, userPrompt(code, errorLog, analyzeInstructions))
	if err != nil {
		return nil, err
	}
	return parseDiagnosis(testFile, text), nil
}

// Apply asks the model for a corrected testFile and writes it in place. The
// fix must parse as Go in the file's package; otherwise ErrInvalidFix is
// returned and the file is left untouched. With backup set, the original
// is first copied to testFile+BackupSuffix.
func (f *Fixer) Apply(ctx context.Context, testFile, errorLog string, backup bool) error {
	code, err := f.read(testFile)
	if err != nil {
		return err
	}
	text, err := f.complete(ctx, applySystemPrompt, userPrompt(code, errorLog, applyInstructions))
	if err != nil {
		return err
	}

	fixed, err := validate(code, llm.StripCodeFence(text))
	if err != nil {
		f.logger.Warn("rejected fix", zap.String("file", testFile), zap.Error(err))
		return err
	}

	info, err := os.Stat(testFile)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", testFile, err)
	}
	if backup {
		if err := os.WriteFile(testFile+BackupSuffix, code, info.Mode().Perm()); err != nil {
			return fmt.Errorf("failed to write backup: %w", err)
		}
	}
	if err := os.WriteFile(testFile, fixed, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write %s: %w", testFile, err)
	}
	f.logger.Info("applied fix", zap.String("file", testFile), zap.Bool("backup", backup))
	return nil
}

// Suggest diagnoses the failure, then asks for the concrete code changes
// without touching the file.
func (f *Fixer) Suggest(ctx context.Context, testFile, errorLog string) (string, error) {
	diag, err := f.Analyze(ctx, testFile, errorLog)
	if err != nil {
		return "", err
	}
	code, err := f.read(testFile)
	if err != nil {
		return "", err
	}
	instructions := fmt.Sprintf("Issue identified: %s\n\n%s", diag.Issue, suggestInstructions)
	return f.complete(ctx, suggestSystemPrompt, userPrompt(code, errorLog, instructions))
}

func (f *Fixer) read(testFile string) ([]byte, error) {
	code, err := os.ReadFile(testFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read test file: %w", err)
	}
	return code, nil
}

func (f *Fixer) complete(ctx context.Context, system, user string) (string, error) {
	if f.client == nil {
		return "", ErrNoCompleter
	}
	resp, err := f.client.Complete(ctx, llm.Prompt{System: system, User: user})
	if err != nil {
		return "", fmt.Errorf("failed to query model: %w", err)
	}
	f.logger.Debug("model answered", zap.String("model", resp.Model), zap.Bool("cached", resp.Cached))
	return resp.Text, nil
}

func parseDiagnosis(testFile, text string) *Diagnosis {
	d := &Diagnosis{TestFile: testFile, Issue: unknownIssue, SuggestedFix: noFix, Raw: text}
	if m := issuePattern.FindStringSubmatch(text); m != nil {
		if s := strings.TrimSpace(m[1]); s != "" {
			d.Issue = s
		}
	}
	if m := fixPattern.FindStringSubmatch(text); m != nil {
		if s := strings.TrimSpace(m[1]); s != "" {
			d.SuggestedFix = s
		}
	}
	return d
}

// validate gofmts fixed and checks it keeps the package of original.
func validate(original []byte, fixed string) ([]byte, error) {
	out, err := format.Source([]byte(fixed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFix, err)
	}
	want, err := packageName(original)
	if err != nil {
		return nil, fmt.Errorf("failed to parse original file: %w", err)
	}
	got, err := packageName(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFix, err)
	}
	if got != want {
		return nil, fmt.Errorf("%w: package %s, want %s", ErrInvalidFix, got, want)
	}
	return out, nil
}

func packageName(src []byte) (string, error) {
	f, err := parser.ParseFile(token.NewFileSet(), "", src, parser.PackageClauseOnly)
	if err != nil {
		return "", err
	}
	return f.Name.Name, nil
}
