package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/observability"
)

// SeedFile is the YAML layout accepted by the seeder.
type SeedFile struct {
	Models  []SeedModel  `yaml:"models"`
	Regions []SeedRegion `yaml:"regions"`
	FAQs    []SeedFAQ    `yaml:"faqs"`
}

// SeedModel describes a model and its variants.
type SeedModel struct {
	Name        string        `yaml:"name"`
	Segment     string        `yaml:"segment"`
	Description string        `yaml:"description"`
	Media       []Media       `yaml:"media"`
	Variants    []SeedVariant `yaml:"variants"`
}

// SeedVariant describes one variant. Price is a decimal string.
type SeedVariant struct {
	Name         string                 `yaml:"name"`
	Price        string                 `yaml:"price"`
	Transmission string                 `yaml:"transmission"`
	FuelType     string                 `yaml:"fuel_type"`
	Specs        map[string]interface{} `yaml:"specs"`
	UpdatedAt    *time.Time             `yaml:"updated_at"`
}

// SeedRegion describes a region fee schedule.
type SeedRegion struct {
	Region          string    `yaml:"region"`
	RegistrationFee string    `yaml:"registration_fee"`
	ChattelFee      string    `yaml:"chattel_fee"`
	InsuranceFee    string    `yaml:"insurance_fee"`
	InsuranceRate   string    `yaml:"insurance_rate"`
	ExtraFees       []SeedFee `yaml:"extra_fees"`
	PromoDiscount   string    `yaml:"promo_discount"`
	Freebies        []string  `yaml:"freebies"`
}

// SeedFee is a named extra fee. Amount is a decimal string.
type SeedFee struct {
	Name   string `yaml:"name"`
	Amount string `yaml:"amount"`
}

// SeedFAQ describes a knowledge-base entry.
type SeedFAQ struct {
	Question string   `yaml:"question"`
	Answer   string   `yaml:"answer"`
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// SeedStats counts what a seed run wrote.
type SeedStats struct {
	Models   int
	Variants int
	Regions  int
	FAQs     int
}

// Seeder loads catalog, region and FAQ data. Re-running it is idempotent:
// models, variants and FAQs are upserted by their natural keys and a region
// rule is only added when the region has none.
type Seeder struct {
	catalog *CatalogRepository
	regions *RegionRepository
	faqs    *FAQRepository
	logger  *observability.Logger

	// OnItem, when set, is called after each model, variant, region or FAQ
	// is processed.
	OnItem func()
}

// NewSeeder creates a seeder writing to db.
func NewSeeder(db DB, logger *observability.Logger) *Seeder {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Seeder{
		catalog: NewCatalogRepository(db),
		regions: NewRegionRepository(db),
		faqs:    NewFAQRepository(db),
		logger:  logger,
	}
}

// Total is the number of items Seed processes, for progress reporting.
func (f *SeedFile) Total() int {
	n := len(f.Models) + len(f.Regions) + len(f.FAQs)
	for _, m := range f.Models {
		n += len(m.Variants)
	}
	return n
}

func (s *Seeder) tick() {
	if s.OnItem != nil {
		s.OnItem()
	}
}

// LoadSeedFile parses a YAML seed file.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &file, nil
}

// Seed writes the file's contents.
func (s *Seeder) Seed(ctx context.Context, file *SeedFile) (*SeedStats, error) {
	stats := &SeedStats{}

	for _, sm := range file.Models {
		model := &CatalogModel{
			Name:        sm.Name,
			Segment:     sm.Segment,
			Description: sm.Description,
			Media:       sm.Media,
		}
		if err := s.catalog.UpsertModel(ctx, model); err != nil {
			return stats, err
		}
		stats.Models++
		s.tick()

		for _, sv := range sm.Variants {
			price, err := parseMoney(sv.Price)
			if err != nil {
				return stats, fmt.Errorf("variant %s %s price: %w", sm.Name, sv.Name, err)
			}
			variant := &CatalogVariant{
				ModelID:      model.ID,
				Name:         sv.Name,
				Price:        price,
				Transmission: sv.Transmission,
				FuelType:     sv.FuelType,
				Specs:        Attributes(sv.Specs),
			}
			if sv.UpdatedAt != nil {
				variant.UpdatedAt = sv.UpdatedAt.UTC()
			}
			if err := s.catalog.UpsertVariant(ctx, variant); err != nil {
				return stats, err
			}
			stats.Variants++
			s.tick()
		}
	}

	for _, sr := range file.Regions {
		if _, err := s.regions.GetCurrent(ctx, sr.Region); err == nil {
			s.tick()
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return stats, err
		}

		rule, err := sr.toRule()
		if err != nil {
			return stats, fmt.Errorf("region %s: %w", sr.Region, err)
		}
		if err := s.regions.Create(ctx, rule); err != nil {
			return stats, err
		}
		stats.Regions++
		s.tick()
	}

	for _, sf := range file.FAQs {
		entry := &FAQEntry{
			Question: sf.Question,
			Answer:   sf.Answer,
			Category: sf.Category,
			Keywords: StringList(sf.Keywords),
		}
		if err := s.faqs.Upsert(ctx, entry); err != nil {
			return stats, fmt.Errorf("faq %q: %w", sf.Question, err)
		}
		stats.FAQs++
		s.tick()
	}

	s.logger.Info().
		Int("models", stats.Models).
		Int("variants", stats.Variants).
		Int("regions", stats.Regions).
		Int("faqs", stats.FAQs).
		Msg("Seed complete")

	return stats, nil
}

func (sr SeedRegion) toRule() (*RegionPriceRule, error) {
	rule := &RegionPriceRule{Region: sr.Region, Freebies: StringList(sr.Freebies)}

	var err error
	if rule.RegistrationFee, err = parseMoney(sr.RegistrationFee); err != nil {
		return nil, fmt.Errorf("registration_fee: %w", err)
	}
	if rule.ChattelFee, err = parseMoney(sr.ChattelFee); err != nil {
		return nil, fmt.Errorf("chattel_fee: %w", err)
	}
	if rule.PromoDiscount, err = parseMoney(sr.PromoDiscount); err != nil {
		return nil, fmt.Errorf("promo_discount: %w", err)
	}
	if sr.InsuranceFee != "" {
		fee, err := decimal.NewFromString(sr.InsuranceFee)
		if err != nil {
			return nil, fmt.Errorf("insurance_fee: %w", err)
		}
		rule.InsuranceFee = &fee
	}
	if sr.InsuranceRate != "" {
		rate, err := decimal.NewFromString(sr.InsuranceRate)
		if err != nil {
			return nil, fmt.Errorf("insurance_rate: %w", err)
		}
		rule.InsuranceRate = &rate
	}
	for _, f := range sr.ExtraFees {
		amount, err := parseMoney(f.Amount)
		if err != nil {
			return nil, fmt.Errorf("extra fee %s: %w", f.Name, err)
		}
		rule.ExtraFees = append(rule.ExtraFees, Fee{Name: f.Name, Amount: amount})
	}
	return rule, nil
}

func parseMoney(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount %s", s)
	}
	return d, nil
}
