package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/domain"
)

// CatalogRepository handles catalog models, variants and media.
type CatalogRepository struct {
	db DB
}

// NewCatalogRepository creates a new catalog repository.
func NewCatalogRepository(db DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// UpsertModel inserts a model or updates the one with the same name, then
// replaces its media. The model's ID is set to the stored row's ID.
func (r *CatalogRepository) UpsertModel(ctx context.Context, model *CatalogModel) error {
	if strings.TrimSpace(model.Name) == "" {
		return domain.Validation("model name is required", nil)
	}
	if model.ID == uuid.Nil {
		model.ID = uuid.New()
	}
	model.CreatedAt = now()

	query := `
		INSERT INTO catalog_models (id, name, segment, description, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET segment = excluded.segment, description = excluded.description
		RETURNING id
	`
	if err := r.db.QueryRowContext(ctx, query,
		model.ID, model.Name, model.Segment, model.Description, model.CreatedAt,
	).Scan(&model.ID); err != nil {
		return fmt.Errorf("upsert model %s: %w", model.Name, err)
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM model_media WHERE model_id = $1`, model.ID); err != nil {
		return fmt.Errorf("clear media: %w", err)
	}
	for i, m := range model.Media {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO model_media (id, model_id, url, caption, position) VALUES ($1, $2, $3, $4, $5)`,
			uuid.New(), model.ID, m.URL, m.Caption, i,
		); err != nil {
			return fmt.Errorf("insert media: %w", err)
		}
	}
	return nil
}

// UpsertVariant inserts a variant or updates the one with the same model and name.
func (r *CatalogRepository) UpsertVariant(ctx context.Context, variant *CatalogVariant) error {
	if variant.Price.IsNegative() {
		return domain.Validation(fmt.Sprintf("variant %s has a negative price", variant.Name), nil)
	}
	if variant.ModelID == uuid.Nil {
		return domain.Validation("variant model is required", nil)
	}
	if variant.ID == uuid.Nil {
		variant.ID = uuid.New()
	}
	if variant.UpdatedAt.IsZero() {
		variant.UpdatedAt = now()
	}

	query := `
		INSERT INTO catalog_variants (id, model_id, name, price, transmission, fuel_type, specs, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (model_id, name) DO UPDATE SET
			price = excluded.price,
			transmission = excluded.transmission,
			fuel_type = excluded.fuel_type,
			specs = excluded.specs,
			updated_at = excluded.updated_at
		RETURNING id
	`
	if err := r.db.QueryRowContext(ctx, query,
		variant.ID, variant.ModelID, variant.Name, variant.Price, variant.Transmission,
		variant.FuelType, variant.Specs, variant.UpdatedAt,
	).Scan(&variant.ID); err != nil {
		return fmt.Errorf("upsert variant %s: %w", variant.Name, err)
	}
	return nil
}

// FindModelByName returns the model whose name contains name, case-insensitively.
// The shortest matching name wins so "Vios" does not resolve to "Vios Cross".
func (r *CatalogRepository) FindModelByName(ctx context.Context, name string) (*CatalogModel, error) {
	query := `
		SELECT id, name, segment, description, created_at
		FROM catalog_models
		WHERE LOWER(name) LIKE '%' || LOWER($1) || '%'
		ORDER BY LENGTH(name), name
		LIMIT 1
	`
	model := &CatalogModel{}
	err := r.db.QueryRowContext(ctx, query, name).Scan(
		&model.ID, &model.Name, &model.Segment, &model.Description, &model.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	variants, err := r.listVariants(ctx, "WHERE v.model_id = $1", model.ID)
	if err != nil {
		return nil, err
	}
	media, err := r.listMedia(ctx, "WHERE model_id = $1", model.ID)
	if err != nil {
		return nil, err
	}
	model.Media = media[model.ID]
	for _, v := range variants {
		v.Media = model.Media
	}
	model.Variants = variants
	return model, nil
}

// ListModels returns every model with its variants and media.
func (r *CatalogRepository) ListModels(ctx context.Context) ([]*CatalogModel, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, segment, description, created_at
		FROM catalog_models
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}

	var models []*CatalogModel
	for rows.Next() {
		m := &CatalogModel{}
		if err := rows.Scan(&m.ID, &m.Name, &m.Segment, &m.Description, &m.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		models = append(models, m)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	variants, err := r.listVariants(ctx, "")
	if err != nil {
		return nil, err
	}
	media, err := r.listMedia(ctx, "")
	if err != nil {
		return nil, err
	}

	byModel := make(map[uuid.UUID]*CatalogModel, len(models))
	for _, m := range models {
		m.Media = media[m.ID]
		byModel[m.ID] = m
	}
	for _, v := range variants {
		if m, ok := byModel[v.ModelID]; ok {
			v.Media = m.Media
			m.Variants = append(m.Variants, v)
		}
	}
	return models, nil
}

// GetVariant retrieves a variant by ID together with its model name and media.
func (r *CatalogRepository) GetVariant(ctx context.Context, id uuid.UUID) (*CatalogVariant, error) {
	variants, err := r.listVariants(ctx, "WHERE v.id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		return nil, ErrNotFound
	}
	v := variants[0]

	media, err := r.listMedia(ctx, "WHERE model_id = $1", v.ModelID)
	if err != nil {
		return nil, err
	}
	v.Media = media[v.ModelID]
	return v, nil
}

// ListVariants returns every variant ordered by model name then price.
func (r *CatalogRepository) ListVariants(ctx context.Context) ([]*CatalogVariant, error) {
	return r.listVariants(ctx, "")
}

func (r *CatalogRepository) listVariants(ctx context.Context, where string, args ...interface{}) ([]*CatalogVariant, error) {
	query := `
		SELECT v.id, v.model_id, m.name, v.name, v.price, v.transmission, v.fuel_type, v.specs, v.updated_at
		FROM catalog_variants v
		JOIN catalog_models m ON m.id = v.model_id
		` + where + `
		ORDER BY m.name, CAST(v.price AS NUMERIC), v.name
	`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var variants []*CatalogVariant
	for rows.Next() {
		v := &CatalogVariant{}
		if err := rows.Scan(
			&v.ID, &v.ModelID, &v.ModelName, &v.Name, &v.Price, &v.Transmission,
			&v.FuelType, &v.Specs, &v.UpdatedAt,
		); err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

func (r *CatalogRepository) listMedia(ctx context.Context, where string, args ...interface{}) (map[uuid.UUID][]Media, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT model_id, url, caption FROM model_media `+where+` ORDER BY model_id, position
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]Media)
	for rows.Next() {
		var (
			modelID uuid.UUID
			m       Media
		)
		if err := rows.Scan(&modelID, &m.URL, &m.Caption); err != nil {
			return nil, err
		}
		out[modelID] = append(out[modelID], m)
	}
	return out, rows.Err()
}

// RegionRepository handles region fee and promo schedules.
type RegionRepository struct {
	db DB
}

// NewRegionRepository creates a new region repository.
func NewRegionRepository(db DB) *RegionRepository {
	return &RegionRepository{db: db}
}

// Create stores a new rule. Older rules for the region are kept; the newest wins.
func (r *RegionRepository) Create(ctx context.Context, rule *RegionPriceRule) error {
	if strings.TrimSpace(rule.Region) == "" {
		return domain.Validation("region code is required", nil)
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = now()
	}
	rule.Region = strings.ToUpper(rule.Region)

	query := `
		INSERT INTO region_price_rules (id, region, registration_fee, chattel_fee, insurance_fee,
			insurance_rate, extra_fees, promo_discount, freebies, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		rule.ID, rule.Region, rule.RegistrationFee, rule.ChattelFee,
		nullDecimal(rule.InsuranceFee), nullDecimal(rule.InsuranceRate),
		rule.ExtraFees, rule.PromoDiscount, rule.Freebies, rule.UpdatedAt,
	)
	return err
}

// GetCurrent returns the most recently updated rule for a region code.
func (r *RegionRepository) GetCurrent(ctx context.Context, region string) (*RegionPriceRule, error) {
	query := `
		SELECT id, region, registration_fee, chattel_fee, insurance_fee, insurance_rate,
			extra_fees, promo_discount, freebies, updated_at
		FROM region_price_rules
		WHERE region = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`
	var (
		rule          = &RegionPriceRule{}
		insuranceFee  decimal.NullDecimal
		insuranceRate decimal.NullDecimal
	)
	err := r.db.QueryRowContext(ctx, query, strings.ToUpper(region)).Scan(
		&rule.ID, &rule.Region, &rule.RegistrationFee, &rule.ChattelFee, &insuranceFee,
		&insuranceRate, &rule.ExtraFees, &rule.PromoDiscount, &rule.Freebies, &rule.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if insuranceFee.Valid {
		rule.InsuranceFee = &insuranceFee.Decimal
	}
	if insuranceRate.Valid {
		rule.InsuranceRate = &insuranceRate.Decimal
	}
	return rule, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

// FAQRepository handles knowledge-base entries.
type FAQRepository struct {
	db DB
}

// NewFAQRepository creates a new FAQ repository.
func NewFAQRepository(db DB) *FAQRepository {
	return &FAQRepository{db: db}
}

// Upsert inserts an entry or replaces the one with the same question text.
func (r *FAQRepository) Upsert(ctx context.Context, entry *FAQEntry) error {
	if strings.TrimSpace(entry.Question) == "" {
		return domain.Validation("faq question is required", nil)
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.UpdatedAt = now()

	query := `
		INSERT INTO faq_entries (id, question, answer, category, keywords, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (question) DO UPDATE SET
			answer = excluded.answer,
			category = excluded.category,
			keywords = excluded.keywords,
			updated_at = excluded.updated_at
		RETURNING id
	`
	return r.db.QueryRowContext(ctx, query,
		entry.ID, entry.Question, entry.Answer, entry.Category, entry.Keywords, entry.UpdatedAt,
	).Scan(&entry.ID)
}

// List returns every entry in insertion-independent, stable question order.
func (r *FAQRepository) List(ctx context.Context) ([]*FAQEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, question, answer, category, keywords, updated_at
		FROM faq_entries
		ORDER BY question
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*FAQEntry
	for rows.Next() {
		e := &FAQEntry{}
		if err := rows.Scan(&e.ID, &e.Question, &e.Answer, &e.Category, &e.Keywords, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
