package readings

import (
	"context"

	"ruuvigw-bridge/internal/types"
)

// Sink archives observations through a Repository.
type Sink struct {
	repo Repository
}

func NewSink(repo Repository) *Sink {
	return &Sink{repo: repo}
}

func (s *Sink) Name() string { return "sqlite" }

func (s *Sink) Write(ctx context.Context, obs types.Observation) error {
	return s.repo.InsertObservation(ctx, obs)
}
