package service

import (
	"context"
	"sync"

	"github.com/JonnyWalker81/healthlytics/internal/models"
)

// BuildFunc constructs a pipeline and its collaborators.
type BuildFunc func(ctx context.Context) (PipelineService, error)

type lazyPipeline struct {
	build BuildFunc
	mu    sync.Mutex
	svc   PipelineService
}

// NewLazyPipeline defers construction to the first Run so a service can
// start without credentials and report missing settings per request. A
// failed build is retried on the next Run; a successful one is reused.
func NewLazyPipeline(build BuildFunc) PipelineService {
	return &lazyPipeline{build: build}
}

func (l *lazyPipeline) Run(ctx context.Context, opts RunOptions) (*models.RunResult, error) {
	svc, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return svc.Run(ctx, opts)
}

func (l *lazyPipeline) get(ctx context.Context) (PipelineService, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.svc != nil {
		return l.svc, nil
	}
	svc, err := l.build(ctx)
	if err != nil {
		return nil, err
	}
	l.svc = svc
	return svc, nil
}
