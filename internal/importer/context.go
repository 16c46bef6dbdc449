package importer

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rglservice/mediation-strapi-import-export/internal/store"
)

var (
	// ErrUnsupportedRelationType means the resolver met an attribute
	// type it has no variant for. Fatal for the record being processed.
	ErrUnsupportedRelationType = errors.New("unsupported relation type")

	// ErrCyclicReference means a record referenced one of its own
	// ancestors in the resolution chain.
	ErrCyclicReference = errors.New("cyclic reference")
)

// Context carries the per-record state of one import: the acting user,
// the structured logger, the requested draft mode and the visited set
// guarding recursive resolution against reference cycles. There is no
// ambient state anywhere in the pipeline; everything travels here.
type Context struct {
	User     *store.User
	Logger   *zap.Logger
	AsDrafts bool

	visited map[string]struct{}
}

// NewContext builds a fresh context. Each record of an import gets its
// own so a cycle in one record cannot poison the next.
func NewContext(user *store.User, logger *zap.Logger, asDrafts bool) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{
		User:     user,
		Logger:   logger,
		AsDrafts: asDrafts,
		visited:  make(map[string]struct{}),
	}
}

// UserID returns the acting user's identifier, zero when anonymous.
func (c *Context) UserID() uint {
	if c.User == nil {
		return 0
	}
	return c.User.ID
}

// visit registers a (model, identifying value) pair on the current
// resolution chain and fails fast when the pair repeats among the
// ancestors. The returned func removes the pair again once the nested
// upsert finishes, so siblings may legitimately reference the same
// entity twice; only a true ancestor loop is a cycle. Records without
// an identifying value cannot form a detectable cycle and pass
// through.
func (c *Context) visit(model string, idValue any) (func(), error) {
	noop := func() {}
	if idValue == nil {
		return noop, nil
	}
	if s, ok := idValue.(string); ok && s == "" {
		return noop, nil
	}
	key := model + "|" + fmt.Sprint(idValue)
	if _, seen := c.visited[key]; seen {
		return noop, fmt.Errorf("%w: %s", ErrCyclicReference, key)
	}
	c.visited[key] = struct{}{}
	return func() { delete(c.visited, key) }, nil
}
