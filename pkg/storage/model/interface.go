package model

import (
	"context"

	"github.com/denysvitali/odi-invoices/pkg/models"
)

// Storer persists a saved result under its Id.
type Storer interface {
	Store(ctx context.Context, result *models.SavedResult) error
}

// Retriever returns os.ErrNotExist when no result has the given id.
type Retriever interface {
	Retrieve(ctx context.Context, id string) (*models.SavedResult, error)
}

// Lister returns saved results, most recent first.
type Lister interface {
	List(ctx context.Context) ([]models.SavedResult, error)
}

type Searcher interface {
	Search(ctx context.Context, query string, size int) ([]models.SavedResult, error)
}

type RWStorage interface {
	Storer
	Retriever
	Lister
}
