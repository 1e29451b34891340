package application

import "context"

// UseCase is the shape every application operation exposes to transports.
type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}
