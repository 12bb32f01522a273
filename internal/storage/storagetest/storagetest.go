// Package storagetest provides a migrated, seeded SQLite database for tests.
package storagetest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage"
)

// NewDB returns an empty, migrated in-memory database closed at test end.
func NewDB(t testing.TB) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open(ctx, storage.OpenOptions{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = storage.Migrate(ctx, db, "sqlite")
	require.NoError(t, err)
	return db
}

// Seeded returns a migrated database loaded with Fixture().
func Seeded(t testing.TB) *sql.DB {
	t.Helper()
	db := NewDB(t)
	_, err := storage.NewSeeder(db, nil).Seed(context.Background(), Fixture())
	require.NoError(t, err)
	return db
}

// FindVariant returns the variant named name, failing the test if absent.
func FindVariant(t testing.TB, db *sql.DB, name string) *storage.CatalogVariant {
	t.Helper()
	variants, err := storage.NewCatalogRepository(db).ListVariants(context.Background())
	require.NoError(t, err)
	for _, v := range variants {
		if v.Name == name {
			return v
		}
	}
	t.Fatalf("variant %q not in fixture", name)
	return nil
}

// SetVariantUpdatedAt backdates a variant's price timestamp.
func SetVariantUpdatedAt(t testing.TB, db *sql.DB, name string, at time.Time) {
	t.Helper()
	_, err := db.ExecContext(context.Background(),
		`UPDATE catalog_variants SET updated_at = $1 WHERE name = $2`, at.UTC(), name)
	require.NoError(t, err)
}

// Fixture is a small catalog: three models, six variants, two regions and five FAQs.
func Fixture() *storage.SeedFile {
	recent := time.Now().UTC().Add(-5 * 24 * time.Hour)

	return &storage.SeedFile{
		Models: []storage.SeedModel{
			{
				Name:        "Xpander",
				Segment:     "MPV",
				Description: "Seven-seat family MPV",
				Media: []storage.Media{
					{URL: "https://cdn.example.com/xpander/front.jpg", Caption: "Xpander front"},
					{URL: "https://cdn.example.com/xpander/side.jpg", Caption: "Xpander side"},
				},
				Variants: []storage.SeedVariant{
					{
						Name: "GLS A/T", Price: "1198000", Transmission: "Automatic", FuelType: "Gasoline",
						Specs: map[string]interface{}{
							"engine":   "1.5L MIVEC",
							"seating":  7,
							"features": []interface{}{"Keyless entry", "8-inch touchscreen", "Rear AC"},
						},
						UpdatedAt: &recent,
					},
					{
						Name: "GLX M/T", Price: "1068000", Transmission: "Manual", FuelType: "Gasoline",
						Specs:     map[string]interface{}{"engine": "1.5L MIVEC", "seating": 7},
						UpdatedAt: &recent,
					},
				},
			},
			{
				Name:        "Vios",
				Segment:     "Sedan",
				Description: "Subcompact sedan",
				Media: []storage.Media{
					{URL: "https://cdn.example.com/vios/front.jpg", Caption: "Vios front"},
				},
				Variants: []storage.SeedVariant{
					{
						Name: "XLE CVT", Price: "867000", Transmission: "CVT", FuelType: "Gasoline",
						Specs:     map[string]interface{}{"engine": "1.3L Dual VVT-i", "seating": 5},
						UpdatedAt: &recent,
					},
					{
						Name: "J M/T", Price: "722000", Transmission: "Manual", FuelType: "Gasoline",
						UpdatedAt: &recent,
					},
					{
						Name: "G CVT", Price: "1014000", Transmission: "CVT", FuelType: "Gasoline",
						Specs:     map[string]interface{}{"engine": "1.5L Dual VVT-i", "seating": 5},
						UpdatedAt: &recent,
					},
				},
			},
			{
				Name:        "Montero Sport",
				Segment:     "SUV",
				Description: "Midsize body-on-frame SUV",
				Variants: []storage.SeedVariant{
					{
						Name: "GLS 4x2 AT", Price: "2024000", Transmission: "Automatic", FuelType: "Diesel",
						Specs:     map[string]interface{}{"engine": "2.4L MIVEC Diesel", "seating": 7},
						UpdatedAt: &recent,
					},
				},
			},
		},
		Regions: []storage.SeedRegion{
			{Region: "NCR", RegistrationFee: "5000", ChattelFee: "15000"},
			{
				Region: "CEBU", RegistrationFee: "4500", ChattelFee: "12000", InsuranceFee: "25000",
				ExtraFees:     []storage.SeedFee{{Name: "Transport", Amount: "8000"}},
				PromoDiscount: "20000",
				Freebies:      []string{"Window tint", "Floor mats"},
			},
		},
		FAQs: []storage.SeedFAQ{
			{
				Question: "What warranty do your vehicles have?",
				Answer:   "Every new vehicle comes with a 3-year or 100,000 km warranty, whichever comes first.",
				Category: "warranty",
				Keywords: []string{"warranty", "coverage"},
			},
			{
				Question: "Where is your showroom?",
				Answer:   "Our showroom is on EDSA, Quezon City, open Monday to Saturday.",
				Category: "dealership",
				Keywords: []string{"showroom", "location", "address"},
			},
			{
				Question: "Do you accept trade-ins?",
				Answer:   "Yes. Bring your car in for a free appraisal and we will credit it to your purchase.",
				Category: "purchase",
				Keywords: []string{"trade-in", "tradein", "appraisal"},
			},
			{
				Question: "How long does financing approval take?",
				Answer:   "Bank approval usually takes 3 to 5 banking days once documents are complete.",
				Category: "financing",
				Keywords: []string{"financing", "approval", "bank", "loan"},
			},
			{
				Question: "Can I book a test drive?",
				Answer:   "Of course. Tell us your preferred date and a sales consultant will confirm.",
				Category: "dealership",
				Keywords: []string{"test", "drive", "booking"},
			},
		},
	}
}
