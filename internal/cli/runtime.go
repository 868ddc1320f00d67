package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/roach88/oakvm/internal/compiler"
	"github.com/roach88/oakvm/internal/config"
	"github.com/roach88/oakvm/internal/gc"
	"github.com/roach88/oakvm/internal/ir"
	"github.com/roach88/oakvm/internal/oops"
)

// Loader and module names for classes defined from a specs directory.
const (
	appLoaderName = "app"
	appModule     = "app"
)

// SpecError is a failure to load a specs directory, with the code reported
// in JSON output.
type SpecError struct {
	Code    string
	Message string
	Err     error
}

func (e *SpecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *SpecError) Unwrap() error { return e.Err }

// loadSpecs compiles the CUE package in dir into a hierarchy.
func loadSpecs(dir string) (*ir.Hierarchy, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &SpecError{Code: ErrCodeNotFound, Message: fmt.Sprintf("specs directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &SpecError{Code: ErrCodeNotFound, Message: "error accessing specs directory", Err: err}
	}
	if !info.IsDir() {
		return nil, &SpecError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	files, err := compiler.FindCUEFiles(dir)
	if err != nil {
		return nil, &SpecError{Code: ErrCodeGeneric, Message: "error scanning directory", Err: err}
	}
	if len(files) == 0 {
		return nil, &SpecError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	h, err := compiler.LoadDir(dir)
	if err != nil {
		return nil, &SpecError{Code: ErrorCode(err), Message: "failed to compile specs", Err: err}
	}
	return h, nil
}

// newUniverse creates a universe over a fresh heap.
func newUniverse(cfg *config.Config, logger *slog.Logger) (*oops.Universe, error) {
	return oops.New(gc.New(cfg.HeapOptions(logger)...), cfg.UniverseOptions(logger)...)
}

// defineSpecs defines h in a new application loader.
func defineSpecs(u *oops.Universe, h *ir.Hierarchy) (*oops.Loader, error) {
	loader := u.NewLoader(appLoaderName, appModule)
	if _, err := u.DefineHierarchy(loader, h); err != nil {
		return nil, err
	}
	return loader, nil
}

// specErrorCode returns the JSON code of a loadSpecs failure.
func specErrorCode(err error) string {
	var se *SpecError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrorCode(err)
}
