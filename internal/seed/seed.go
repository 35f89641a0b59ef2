// Package seed loads the built-in metric taxonomy.
package seed

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	taxonomydomain "github.com/smallbiznis/formmetrics/internal/taxonomy/domain"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

//go:embed taxonomy.yaml
var defaultTaxonomy []byte

type Taxonomy struct {
	Units      []UnitSeed     `yaml:"units"`
	Categories []CategorySeed `yaml:"categories"`
	Metrics    []MetricSeed   `yaml:"metrics"`
}

type UnitSeed struct {
	Code                 string `yaml:"code"`
	Name                 string `yaml:"name"`
	Symbol               string `yaml:"symbol"`
	FormatPattern        string `yaml:"format_pattern"`
	Category             string `yaml:"category"`
	SuggestedAggregation string `yaml:"suggested_aggregation"`
}

type CategorySeed struct {
	Code          string            `yaml:"code"`
	Name          string            `yaml:"name"`
	Description   string            `yaml:"description"`
	SortOrder     int               `yaml:"sort_order"`
	SubCategories []SubCategorySeed `yaml:"sub_categories"`
}

type ThresholdSeed struct {
	Green  float64 `yaml:"green"`
	Yellow float64 `yaml:"yellow"`
	Red    float64 `yaml:"red"`
}

type SubCategorySeed struct {
	Code                string         `yaml:"code"`
	Name                string         `yaml:"name"`
	AllowedDataTypes    []string       `yaml:"allowed_data_types"`
	AllowedAggregations []string       `yaml:"allowed_aggregations"`
	DefaultDataType     string         `yaml:"default_data_type"`
	DefaultAggregation  string         `yaml:"default_aggregation"`
	Thresholds          *ThresholdSeed `yaml:"thresholds"`
}

type MetricSeed struct {
	Code            string `yaml:"code"`
	Name            string `yaml:"name"`
	SubCategory     string `yaml:"sub_category"`
	Unit            string `yaml:"unit"`
	DataType        string `yaml:"data_type"`
	AggregationType string `yaml:"aggregation_type"`
	IsKPI           bool   `yaml:"is_kpi"`
	ExpectedValue   string `yaml:"expected_value"`
	Description     string `yaml:"description"`
}

// Result counts the rows inserted by one seed pass.
type Result struct {
	Units         int
	Categories    int
	SubCategories int
	Metrics       int
}

// DefaultTaxonomy parses the embedded taxonomy.
func DefaultTaxonomy() (*Taxonomy, error) {
	return ParseTaxonomy(defaultTaxonomy)
}

func ParseTaxonomy(raw []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	return &t, nil
}

// EnsureTaxonomy inserts every unit, category, sub-category and metric of t
// whose code is not present yet. Existing rows are left untouched.
func EnsureTaxonomy(ctx context.Context, db *gorm.DB, repo taxonomydomain.Repository, node *snowflake.Node, t *Taxonomy) (*Result, error) {
	if db == nil {
		return nil, errors.New("seed database handle is required")
	}
	if t == nil {
		return &Result{}, nil
	}

	res := &Result{}
	now := time.Now().UTC()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		units := map[string]snowflake.ID{}
		for _, u := range t.Units {
			code := normalizeCode(u.Code)
			existing, err := repo.FindUnitByCode(ctx, tx, code)
			if err != nil {
				return err
			}
			if existing != nil {
				units[code] = existing.ID
				continue
			}
			row := &taxonomydomain.Unit{
				ID:                   node.Generate(),
				Code:                 code,
				Name:                 u.Name,
				Symbol:               u.Symbol,
				FormatPattern:        u.FormatPattern,
				Category:             u.Category,
				SuggestedAggregation: u.SuggestedAggregation,
				IsActive:             true,
				CreatedAt:            now,
			}
			if err := repo.InsertUnit(ctx, tx, row); err != nil {
				return fmt.Errorf("insert unit %s: %w", code, err)
			}
			units[code] = row.ID
			res.Units++
		}

		subCategories := map[string]snowflake.ID{}
		for _, c := range t.Categories {
			code := normalizeCode(c.Code)
			category, err := repo.FindCategoryByCode(ctx, tx, code)
			if err != nil {
				return err
			}
			if category == nil {
				category = &taxonomydomain.Category{
					ID:          node.Generate(),
					Code:        code,
					Name:        c.Name,
					Description: c.Description,
					SortOrder:   c.SortOrder,
					IsActive:    true,
				}
				if err := repo.InsertCategory(ctx, tx, category); err != nil {
					return fmt.Errorf("insert category %s: %w", code, err)
				}
				res.Categories++
			}

			for _, sc := range c.SubCategories {
				subCode := normalizeCode(sc.Code)
				existing, err := repo.FindSubCategoryByCode(ctx, tx, subCode)
				if err != nil {
					return err
				}
				if existing != nil {
					subCategories[subCode] = existing.ID
					continue
				}
				row, err := subCategoryRow(node.Generate(), category.ID, subCode, sc)
				if err != nil {
					return err
				}
				if err := repo.InsertSubCategory(ctx, tx, row); err != nil {
					return fmt.Errorf("insert sub-category %s: %w", subCode, err)
				}
				subCategories[subCode] = row.ID
				res.SubCategories++
			}
		}

		for _, m := range t.Metrics {
			code := normalizeCode(m.Code)
			existing, err := repo.FindMetricByCode(ctx, tx, code)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}
			row := &taxonomydomain.MetricDefinition{
				ID:              node.Generate(),
				Code:            code,
				Name:            m.Name,
				SourceType:      "Form",
				DataType:        m.DataType,
				AggregationType: m.AggregationType,
				IsKPI:           m.IsKPI,
				Description:     m.Description,
				IsActive:        true,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if m.SubCategory != "" {
				id, ok := subCategories[normalizeCode(m.SubCategory)]
				if !ok {
					return fmt.Errorf("metric %s: unknown sub-category %s", code, m.SubCategory)
				}
				row.SubCategoryID = &id
			}
			if m.Unit != "" {
				id, ok := units[normalizeCode(m.Unit)]
				if !ok {
					return fmt.Errorf("metric %s: unknown unit %s", code, m.Unit)
				}
				row.UnitID = &id
			}
			if m.ExpectedValue != "" {
				expected := m.ExpectedValue
				row.ExpectedValue = &expected
			}
			if row.IsKPI && row.SubCategoryID != nil {
				sub, err := repo.FindSubCategory(ctx, tx, *row.SubCategoryID)
				if err != nil {
					return err
				}
				if sub != nil {
					row.ThresholdGreen = sub.ThresholdGreen
					row.ThresholdYellow = sub.ThresholdYellow
					row.ThresholdRed = sub.ThresholdRed
				}
			}
			if err := repo.InsertMetric(ctx, tx, row); err != nil {
				return fmt.Errorf("insert metric %s: %w", code, err)
			}
			res.Metrics++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// EnsureDefaultTaxonomy seeds the embedded taxonomy and logs what was added.
func EnsureDefaultTaxonomy(ctx context.Context, db *gorm.DB, repo taxonomydomain.Repository, node *snowflake.Node, log *zap.Logger) error {
	t, err := DefaultTaxonomy()
	if err != nil {
		return err
	}
	res, err := EnsureTaxonomy(ctx, db, repo, node, t)
	if err != nil {
		return fmt.Errorf("seed taxonomy: %w", err)
	}
	log.Info("taxonomy seeded",
		zap.Int("units", res.Units),
		zap.Int("categories", res.Categories),
		zap.Int("sub_categories", res.SubCategories),
		zap.Int("metrics", res.Metrics),
	)
	return nil
}

func subCategoryRow(id, categoryID snowflake.ID, code string, sc SubCategorySeed) (*taxonomydomain.SubCategory, error) {
	row := &taxonomydomain.SubCategory{
		ID:                 id,
		CategoryID:         categoryID,
		Code:               code,
		Name:               sc.Name,
		DefaultDataType:    sc.DefaultDataType,
		DefaultAggregation: sc.DefaultAggregation,
		IsActive:           true,
	}
	if len(sc.AllowedDataTypes) > 0 {
		b, err := json.Marshal(sc.AllowedDataTypes)
		if err != nil {
			return nil, err
		}
		row.AllowedDataTypes = datatypes.JSON(b)
	}
	if len(sc.AllowedAggregations) > 0 {
		b, err := json.Marshal(sc.AllowedAggregations)
		if err != nil {
			return nil, err
		}
		row.AllowedAggregations = datatypes.JSON(b)
	}
	if sc.Thresholds != nil {
		green, yellow, red := sc.Thresholds.Green, sc.Thresholds.Yellow, sc.Thresholds.Red
		row.ThresholdGreen = &green
		row.ThresholdYellow = &yellow
		row.ThresholdRed = &red
	}
	return row, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
