package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/oakvm/internal/compiler"
	"github.com/roach88/oakvm/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool                       `json:"valid"`
	Classes int                        `json:"classes"`
	Hash    string                     `json:"hash,omitempty"`
	Errors  []compiler.ValidationError `json:"errors,omitempty"`
}

// WriteText implements TextWriter.
func (r ValidationResult) WriteText(w io.Writer) error {
	if r.Valid {
		_, err := fmt.Fprintf(w, "✓ %d classes valid (%s)\n", r.Classes, r.Hash)
		return err
	}
	fmt.Fprintf(w, "✗ %d validation error(s)\n", len(r.Errors))
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s\n", e.Error())
	}
	return nil
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <specs-dir>",
		Short: "Validate class specs",
		Long: `Validate the CUE class declarations in a directory.

Checks names, kinds and access values, that every super class and
interface is declared, and that the inheritance graph has no cycles.
Reports every problem found, not just the first.

Examples:
  oakvm validate ./specs
  oakvm validate ./specs --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, specsDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	h, err := loadSpecs(specsDir)
	if err == nil {
		hash, hashErr := ir.HierarchyHash(h)
		if hashErr != nil {
			return WrapExitError(ExitFailure, "failed to hash hierarchy", hashErr)
		}
		formatter.VerboseLog("compiled %d classes from %s", len(h.Classes), specsDir)
		return formatter.Success(ValidationResult{Valid: true, Classes: len(h.Classes), Hash: hash})
	}

	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) {
		if outErr := formatter.Success(ValidationResult{Valid: false, Errors: verrs}); outErr != nil {
			return outErr
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d validation error(s)", len(verrs)))
	}

	if outErr := formatter.Error(specErrorCode(err), err.Error(), nil); outErr != nil {
		return outErr
	}
	var se *SpecError
	if errors.As(err, &se) && se.Code == ErrCodeNotFound {
		return WrapExitError(ExitCommandError, "invalid specs directory", err)
	}
	return WrapExitError(ExitFailure, "validation failed", err)
}
