package mil

import (
	"io"
	"log/slog"

	"github.com/bgins/mil-tools/pkg/diag"
	"github.com/google/uuid"
)

// Context carries the state shared by every pass of one compilation: the
// primitive registry, the failure collector, the logger and the target
// word size. Independent compilations use independent contexts.
type Context struct {
	Prims    *PrimTable
	Handler  *diag.Handler
	Log      *slog.Logger
	WordSize int
	RunID    string
}

// NewContext creates a context for a target with the given word size. A
// nil logger discards output.
func NewContext(log *slog.Logger, wordSize int) *Context {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	id := uuid.NewString()
	log = log.With("run", id)
	return &Context{
		Prims:    NewPrimTable(),
		Handler:  diag.NewHandler(log),
		Log:      log,
		WordSize: wordSize,
		RunID:    id,
	}
}

// WordBytes is the size of a machine word in bytes.
func (c *Context) WordBytes() int {
	return c.WordSize / 8
}

// Normalize wraps v to the target word size.
func (c *Context) Normalize(v int64) int64 {
	return Normalize(c.WordSize, v)
}
