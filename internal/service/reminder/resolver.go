package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	gocache "github.com/patrickmn/go-cache"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/reminder-dispatcher/internal/errs"
	reminderrepo "github.com/aliskhannn/reminder-dispatcher/internal/repository/reminder"
)

// ErrNoDueColumn is returned when probing finds none of the candidate due columns.
var ErrNoDueColumn = errors.New("no due column candidate resolved")

const dueColumnKey = "due_column"

type columnProber interface {
	ProbeColumn(ctx context.Context, column string) error
}

// ColumnResolver decides which column holds the due timestamp.
//
// An explicit column always wins. Without one, the declared schema default is
// used unless probing is enabled, in which case candidates are probed in order
// and the first that exists is cached for the process lifetime.
type ColumnResolver struct {
	store      columnProber
	explicit   string
	probe      bool
	candidates []string

	mu    sync.Mutex
	cache *gocache.Cache
}

// NewColumnResolver creates a resolver. cache may be shared with other
// process-lifetime lookups; nil creates a private one.
func NewColumnResolver(store columnProber, explicit string, probe bool, candidates []string, cache *gocache.Cache) *ColumnResolver {
	if cache == nil {
		cache = gocache.New(gocache.NoExpiration, 0)
	}
	if len(candidates) == 0 {
		candidates = []string{reminderrepo.DefaultDueColumn}
	}

	return &ColumnResolver{
		store:      store,
		explicit:   explicit,
		probe:      probe,
		candidates: candidates,
		cache:      cache,
	}
}

// Probing reports whether the resolver discovers the column at runtime.
func (r *ColumnResolver) Probing() bool {
	return r.explicit == "" && r.probe
}

// Resolve returns the due column name.
func (r *ColumnResolver) Resolve(ctx context.Context) (string, error) {
	if r.explicit != "" {
		if !reminderrepo.ValidColumn(r.explicit) {
			return "", fmt.Errorf("%w: %w: %q", errs.ErrConfiguration, reminderrepo.ErrInvalidColumn, r.explicit)
		}
		return r.explicit, nil
	}

	if !r.probe {
		return reminderrepo.DefaultDueColumn, nil
	}

	if v, ok := r.cache.Get(dueColumnKey); ok {
		return v.(string), nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.cache.Get(dueColumnKey); ok {
		return v.(string), nil
	}

	for _, column := range r.candidates {
		err := r.store.ProbeColumn(ctx, column)
		if err == nil {
			r.cache.Set(dueColumnKey, column, gocache.NoExpiration)
			zlog.Logger.Info().Str("column", column).Msg("resolved due column")
			return column, nil
		}

		if _, ok := reminderrepo.AsUnknownColumn(err); ok || errors.Is(err, reminderrepo.ErrInvalidColumn) {
			zlog.Logger.Debug().Str("column", column).Msg("due column candidate does not exist")
			continue
		}

		return "", errs.Store("probe due column", err)
	}

	return "", errs.Store("resolve due column",
		fmt.Errorf("%w (tried %s)", ErrNoDueColumn, strings.Join(r.candidates, ", ")))
}

// Invalidate drops the cached column so the next Resolve probes again.
func (r *ColumnResolver) Invalidate() {
	r.cache.Delete(dueColumnKey)
}
