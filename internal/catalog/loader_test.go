package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/estimator/internal/models"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadFromDir_RepositoryCatalog(t *testing.T) {
	catalogDir := filepath.Join("..", "..", "catalog")
	if _, err := os.Stat(catalogDir); os.IsNotExist(err) {
		t.Skip("catalog directory not found, skipping")
	}

	loader := NewLoader()
	require.NoError(t, loader.LoadFromDir(catalogDir))

	columns := loader.Columns()
	require.Len(t, columns, 3)
	assert.Equal(t, models.ColumnDrafts, columns[0].ID)
	assert.Equal(t, "Approved", columns[2].Title)

	assert.NotEmpty(t, loader.Brand().Colors)
	assert.NotEmpty(t, loader.FinancingPlans())
	assert.NotEmpty(t, loader.Fixtures().Opportunities)
}

func TestLoadFromDir_Defaults(t *testing.T) {
	loader := NewLoader()
	require.NoError(t, loader.LoadFromDir(t.TempDir()))

	assert.Equal(t, models.DefaultColumns(), loader.Columns())
	assert.Equal(t, models.ColumnDrafts, loader.FirstColumn())
	assert.Empty(t, loader.Promotions())
	assert.Nil(t, loader.FinancingPlan("missing"))
}

func TestLoadFromDir_MissingDir(t *testing.T) {
	loader := NewLoader()
	assert.Error(t, loader.LoadFromDir(filepath.Join(t.TempDir(), "nope")))
}

func TestLoadFromDir_CustomFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ColumnsFile, `
columns:
  - id: leads
    title: Leads
  - id: won
    title: Won
`)
	writeFile(t, dir, PromotionsFile, `
promotions:
  - id: spring
    title: Spring Sale
    discount_percent: 10
  - id: bundle
    title: Bundle
    discount_amount: 250
    expires_at: 2027-01-01T00:00:00Z
`)
	writeFile(t, dir, FinancingFile, `
plans:
  - id: sixty
    provider: LendCo
    name: 60 months
    apr: 6.99
    months: 60
`)

	loader := NewLoader()
	require.NoError(t, loader.LoadFromDir(dir))

	assert.Equal(t, models.ColumnID("leads"), loader.FirstColumn())
	assert.True(t, loader.HasColumn("won"))
	assert.False(t, loader.HasColumn(models.ColumnDrafts))

	promos := loader.Promotions()
	require.Len(t, promos, 2)
	assert.Equal(t, "bundle", promos[0].ID)
	require.NotNil(t, promos[0].ExpiresAt)
	assert.Equal(t, 2027, promos[0].ExpiresAt.Year())

	plan := loader.FinancingPlan("sixty")
	require.NotNil(t, plan)
	assert.Equal(t, 60, plan.Months)
	assert.Equal(t, 6.99, plan.APR)
}

func TestLoadFromDir_InvalidFilesKeepDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ColumnsFile, `
columns:
  - id: drafts
    title: Drafts
  - id: drafts
    title: Again
`)
	writeFile(t, dir, FinancingFile, `
plans:
  - id: broken
    months: 0
`)
	writeFile(t, dir, BrandFile, "name: [unterminated")

	loader := NewLoader()
	require.NoError(t, loader.LoadFromDir(dir))

	assert.Equal(t, models.DefaultColumns(), loader.Columns())
	assert.Empty(t, loader.FinancingPlans())
	assert.Equal(t, "Estimator", loader.Brand().Name)
}

func TestColumnsReturnsCopy(t *testing.T) {
	loader := NewLoader()
	cols := loader.Columns()
	cols[0].Title = "Changed"

	assert.Equal(t, "Drafts", loader.Columns()[0].Title)
}
