package mirror

import (
	"context"

	"github.com/vbonduro/folio/internal/domain"
)

// Mirror is the remote copy every visitor converges to. Load returns nil when
// the remote holds no record of that kind.
type Mirror interface {
	Save(ctx context.Context, rec *domain.Record) error
	Load(ctx context.Context, kind domain.Kind) (*domain.Record, error)
}

// Path returns the document path a kind is mirrored under.
func Path(kind domain.Kind) string {
	return "portfolio/" + string(kind)
}

// Disabled stands in when no remote is configured.
type Disabled struct{}

func (Disabled) Save(context.Context, *domain.Record) error {
	return domain.ErrRemoteUnavailable
}

func (Disabled) Load(context.Context, domain.Kind) (*domain.Record, error) {
	return nil, domain.ErrRemoteUnavailable
}
