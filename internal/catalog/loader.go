package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/estimator/internal/models"
)

// Catalog file names inside the catalog directory
const (
	ColumnsFile    = "columns.yaml"
	BrandFile      = "brand.yaml"
	PromotionsFile = "promotions.yaml"
	FinancingFile  = "financing.yaml"
	FixturesFile   = "fixtures.yaml"
)

// Loader manages loading and caching of the static catalog
type Loader struct {
	mu         sync.RWMutex
	columns    []models.Column
	brand      *models.Brand
	promotions map[string]*models.Promotion
	plans      map[string]*models.FinancingPlan
	fixtures   *models.Fixtures
}

// NewLoader creates a new catalog loader holding the built-in columns
func NewLoader() *Loader {
	return &Loader{
		columns:    models.DefaultColumns(),
		brand:      &models.Brand{Name: "Estimator", Colors: map[string]string{}},
		promotions: make(map[string]*models.Promotion),
		plans:      make(map[string]*models.FinancingPlan),
		fixtures:   &models.Fixtures{},
	}
}

// LoadFromDir loads every known catalog file from a directory.
// Missing files are skipped, malformed files are logged and skipped.
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading catalog from directory", "dir", dir)

	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("failed to stat catalog dir: %w", err)
	}

	loaders := []struct {
		file string
		load func(data []byte) error
	}{
		{ColumnsFile, l.loadColumns},
		{BrandFile, l.loadBrand},
		{PromotionsFile, l.loadPromotions},
		{FinancingFile, l.loadFinancing},
		{FixturesFile, l.loadFixtures},
	}

	loaded := 0
	for _, ld := range loaders {
		path := filepath.Join(dir, ld.file)
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				slog.Debug("catalog file not present", "file", ld.file)
				continue
			}
			slog.Warn("failed to read catalog file", "file", path, "error", err)
			continue
		}

		if err := ld.load(data); err != nil {
			slog.Warn("failed to load catalog file", "file", path, "error", err)
			continue
		}
		loaded++
	}

	slog.Info("catalog loaded",
		"files", loaded,
		"columns", len(l.Columns()),
		"promotions", len(l.Promotions()),
		"financing_plans", len(l.FinancingPlans()),
	)

	return nil
}

func (l *Loader) loadColumns(data []byte) error {
	var cf columnsFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	if len(cf.Columns) == 0 {
		return fmt.Errorf("at least one column is required")
	}

	seen := make(map[models.ColumnID]bool)
	for _, c := range cf.Columns {
		if c.ID == "" || c.Title == "" {
			return fmt.Errorf("column id and title are required")
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate column id: %s", c.ID)
		}
		seen[c.ID] = true
	}

	l.mu.Lock()
	l.columns = cf.Columns
	l.mu.Unlock()
	return nil
}

func (l *Loader) loadBrand(data []byte) error {
	var brand models.Brand
	if err := yaml.Unmarshal(data, &brand); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	if brand.Name == "" {
		return fmt.Errorf("brand name is required")
	}
	if brand.Colors == nil {
		brand.Colors = map[string]string{}
	}

	l.mu.Lock()
	l.brand = &brand
	l.mu.Unlock()
	return nil
}

func (l *Loader) loadPromotions(data []byte) error {
	var pf promotionsFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	promotions := make(map[string]*models.Promotion, len(pf.Promotions))
	for i := range pf.Promotions {
		p := pf.Promotions[i]
		if p.ID == "" {
			return fmt.Errorf("promotion id is required")
		}
		promotions[p.ID] = &p
	}

	l.mu.Lock()
	l.promotions = promotions
	l.mu.Unlock()
	return nil
}

func (l *Loader) loadFinancing(data []byte) error {
	var ff financingFile
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	plans := make(map[string]*models.FinancingPlan, len(ff.Plans))
	for i := range ff.Plans {
		p := ff.Plans[i]
		if p.ID == "" {
			return fmt.Errorf("financing plan id is required")
		}
		if p.Months <= 0 {
			return fmt.Errorf("financing plan %s: months must be positive", p.ID)
		}
		plans[p.ID] = &p
	}

	l.mu.Lock()
	l.plans = plans
	l.mu.Unlock()
	return nil
}

func (l *Loader) loadFixtures(data []byte) error {
	var fixtures models.Fixtures
	if err := yaml.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	l.mu.Lock()
	l.fixtures = &fixtures
	l.mu.Unlock()
	return nil
}

// --- Accessors ---

// Columns returns the board columns in display order
func (l *Loader) Columns() []models.Column {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]models.Column, len(l.columns))
	copy(result, l.columns)
	return result
}

// Column returns a column by ID
func (l *Loader) Column(id models.ColumnID) (models.Column, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, c := range l.columns {
		if c.ID == id {
			return c, true
		}
	}
	return models.Column{}, false
}

// HasColumn reports whether the column exists
func (l *Loader) HasColumn(id models.ColumnID) bool {
	_, ok := l.Column(id)
	return ok
}

// FirstColumn returns the left-most column, where new cards land
func (l *Loader) FirstColumn() models.ColumnID {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.columns) == 0 {
		return models.ColumnDrafts
	}
	return l.columns[0].ID
}

// Brand returns the brand tokens
func (l *Loader) Brand() *models.Brand {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.brand
}

// Promotions returns all promotions sorted by ID
func (l *Loader) Promotions() []*models.Promotion {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*models.Promotion, 0, len(l.promotions))
	for _, p := range l.promotions {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Promotion returns a promotion by ID
func (l *Loader) Promotion(id string) *models.Promotion {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.promotions[id]
}

// FinancingPlans returns all financing plans sorted by ID
func (l *Loader) FinancingPlans() []*models.FinancingPlan {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*models.FinancingPlan, 0, len(l.plans))
	for _, p := range l.plans {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// FinancingPlan returns a financing plan by ID
func (l *Loader) FinancingPlan(id string) *models.FinancingPlan {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.plans[id]
}

// Fixtures returns the dummy data set
func (l *Loader) Fixtures() *models.Fixtures {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fixtures
}

// --- YAML file structs ---

type columnsFile struct {
	Columns []models.Column `yaml:"columns"`
}

type promotionsFile struct {
	Promotions []models.Promotion `yaml:"promotions"`
}

type financingFile struct {
	Plans []models.FinancingPlan `yaml:"plans"`
}
