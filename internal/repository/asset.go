package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/openvest/brokerlink/internal/database"
	apperrors "github.com/openvest/brokerlink/internal/errors"
	"github.com/openvest/brokerlink/internal/models"
)

// AssetRepository creates rows in the ledger's assets table. Reconciliation
// only ever inserts; updating or deleting earlier rows belongs to the ledger
// subsystem.
type AssetRepository struct {
	db *database.DB
}

func NewAssetRepository(db *database.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// CategoryIDBySlug resolves an asset category by its fixed slug.
func (r *AssetRepository) CategoryIDBySlug(ctx context.Context, slug string) (int64, error) {
	qb := database.NewQueryBuilder()
	qb.AddParam("slug", slug)

	query, args := qb.Build(`
        SELECT id FROM asset_categories WHERE slug = @slug
    `)

	var id int64
	err := r.db.QueryRowSafe(ctx, query, args...).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, apperrors.NewStorageError(
			fmt.Sprintf("asset category %q not found", slug), err)
	}
	if err != nil {
		return 0, apperrors.NewStorageError("resolve asset category", err)
	}

	return id, nil
}

// Create inserts one asset row and fills in its generated id.
func (r *AssetRepository) Create(ctx context.Context, asset *models.Asset) error {
	qb := database.NewQueryBuilder()
	qb.AddParam("uid", asset.UserID)
	qb.AddParam("category", asset.CategoryID)
	qb.AddParam("name", asset.Name)
	qb.AddParam("description", asset.Description)
	qb.AddParam("loc", asset.Location)
	qb.AddParam("val", asset.Value)
	qb.AddParam("acq_value", asset.AcquisitionValue)
	qb.AddParam("acq_date", asset.AcquisitionDate)
	qb.AddParam("liability", asset.IsLiability)
	qb.AddParam("meta", asset.Metadata)

	query, args := qb.Build(`
        INSERT INTO assets (user_id, category_id, name, description, location, value, acquisition_value, acquisition_date, is_liability, metadata)
        VALUES (@uid, @category, @name, @description, @loc, @val, @acq_value, @acq_date, @liability, @meta)
        RETURNING id
    `)

	err := r.db.QueryRowSafe(ctx, query, args...).Scan(&asset.ID)
	if err != nil {
		return apperrors.NewStorageError("create asset", err)
	}

	return nil
}
