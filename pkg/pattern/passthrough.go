package pattern

import (
	"context"
	"net/http"

	"github.com/pondside-labs/loom/pkg/types"
)

// Passthrough performs no transformation at all.
type Passthrough struct{}

func (Passthrough) Request(context.Context, http.Header, *types.RequestBody, *types.MetadataEnvelope) error {
	return nil
}

func (Passthrough) Response(context.Context, http.Header, []byte) error {
	return nil
}
