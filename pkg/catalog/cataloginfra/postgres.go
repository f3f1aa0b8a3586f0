package cataloginfra

import (
	"context"
	"database/sql"

	"github.com/gridworks/gridcore/pkg/catalog"
	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresCatalogRepository is the Postgres implementation of catalog.Repository.
type PostgresCatalogRepository struct {
	db *sqlx.DB
}

// NewPostgresCatalogRepository creates a new repository instance.
func NewPostgresCatalogRepository(db *sqlx.DB) catalog.Repository {
	return &PostgresCatalogRepository{db: db}
}

type entryRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	BasePrice   int64          `db:"base_price"`
	Features    pq.StringArray `db:"features"`
	ProviderRef string         `db:"provider_ref"`
	Active      bool           `db:"is_active"`
}

func (r entryRow) toDomain() catalog.Entry {
	return catalog.Entry{
		ID:          r.ID,
		Name:        r.Name,
		BasePrice:   r.BasePrice,
		Features:    []string(r.Features),
		ProviderRef: r.ProviderRef,
		Active:      r.Active,
	}
}

// FindByID looks up one catalog entry.
func (r *PostgresCatalogRepository) FindByID(ctx context.Context, id string) (*catalog.Entry, error) {
	var row entryRow
	query := `SELECT * FROM service_catalog WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, catalog.ErrUnknownService(id)
		}
		return nil, errx.Wrap(err, "failed to find catalog entry", errx.TypeInternal)
	}
	entry := row.toDomain()
	return &entry, nil
}

// FindActive lists all active catalog entries.
func (r *PostgresCatalogRepository) FindActive(ctx context.Context) ([]catalog.Entry, error) {
	var rows []entryRow
	query := `SELECT * FROM service_catalog WHERE is_active = true ORDER BY id`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errx.Wrap(err, "failed to list catalog entries", errx.TypeInternal)
	}

	entries := make([]catalog.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toDomain())
	}
	return entries, nil
}

// Snapshot materializes the active catalog into an immutable view.
func (r *PostgresCatalogRepository) Snapshot(ctx context.Context) (catalog.Snapshot, error) {
	entries, err := r.FindActive(ctx)
	if err != nil {
		return nil, err
	}

	snap := make(catalog.Snapshot, len(entries))
	for _, e := range entries {
		snap[e.ID] = e
	}
	return snap, nil
}
