package report

import (
	"context"
	"io"
)

// Backend is the remote report service the tracker drives.
type Backend interface {
	Submit(ctx context.Context, sel Selection) (*Job, error)
	Status(ctx context.Context, id string) (*Job, error)
	// History returns a page of jobs ordered newest first, plus the total count.
	History(ctx context.Context, limit, offset int) (*Page, error)
	Download(ctx context.Context, id string) (io.ReadCloser, error)
	Delete(ctx context.Context, id string) error
	Retry(ctx context.Context, id string) (*Job, error)
}
