package services

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"inventory-forecast-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/xuri/excelize/v2"
)

// makeSalesRecords 連続した日付の販売実績を生成するテストヘルパー
func makeSalesRecords(productID, category string, start time.Time, n int, salesAt func(i int) float64, price, baseDemand float64) []models.HistoricalSalesRecord {
	records := make([]models.HistoricalSalesRecord, n)
	for i := 0; i < n; i++ {
		records[i] = models.HistoricalSalesRecord{
			Date:            start.AddDate(0, 0, i),
			ProductID:       productID,
			ProductCategory: category,
			SalesQty:        salesAt(i),
			Price:           price,
			BaseDemand:      baseDemand,
		}
	}
	return records
}

func newTestHistoryService(t *testing.T, records []models.HistoricalSalesRecord) *HistoryService {
	t.Helper()
	hs, err := NewHistoryService(records)
	assert.NoError(t, err)
	return hs
}

func TestNewHistoryServiceEmpty(t *testing.T) {
	_, err := NewHistoryService(nil)
	assert.Error(t, err)
}

func TestResolveDefaultsKnownProduct(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	records := makeSalesRecords("SKU001", "Electronics", start, 10, func(i int) float64 { return 100 }, 250.0, 120.0)
	hs := newTestHistoryService(t, records)

	defaults := hs.ResolveDefaults("SKU001")
	assert.Equal(t, "Electronics", defaults.Category)
	assert.Equal(t, 250.0, defaults.AvgPrice)
	assert.Equal(t, 120.0, defaults.AvgBaseDemand)
	assert.Equal(t, 100.0, defaults.AvgSales)
	assert.Equal(t, 0.0, defaults.SalesStd) // 全件同値なら標準偏差0
}

func TestResolveDefaultsUnknownProduct(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	records := makeSalesRecords("SKU001", "Clothing", start, 10, func(i int) float64 { return 100 }, 300.0, 150.0)
	hs := newTestHistoryService(t, records)

	// 履歴にない商品は全体デフォルトへフォールバック（失敗しない）
	defaults := hs.ResolveDefaults("SKU999")
	assert.Equal(t, "Electronics", defaults.Category)
	assert.Equal(t, 300.0, defaults.AvgPrice)
	assert.Equal(t, 150.0, defaults.AvgBaseDemand)
	assert.Equal(t, 150.0, defaults.AvgSales) // avg_salesは基準需要で代替
	assert.InDelta(t, 150.0*0.2, defaults.SalesStd, 1e-9)
}

func TestCategoryDefaultsComputed(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	records := append(
		makeSalesRecords("SKU001", "Food", start, 5, func(i int) float64 { return 50 }, 20.0, 60.0),
		makeSalesRecords("SKU002", "Food", start, 5, func(i int) float64 { return 150 }, 40.0, 80.0)...,
	)
	hs := newTestHistoryService(t, records)

	// カテゴリ層は計算されるが、未知商品のフォールバックには使われない
	catDefaults, ok := hs.CategoryDefaultsFor("Food")
	assert.True(t, ok)
	assert.Equal(t, 30.0, catDefaults.AvgPrice)
	assert.Equal(t, 70.0, catDefaults.AvgBaseDemand)
	assert.Equal(t, 100.0, catDefaults.AvgSales)

	_, ok = hs.CategoryDefaultsFor("Unknown")
	assert.False(t, ok)
}

func TestProductIDsSorted(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	records := append(
		makeSalesRecords("SKU002", "Food", start, 3, func(i int) float64 { return 1 }, 1, 1),
		makeSalesRecords("SKU001", "Food", start, 3, func(i int) float64 { return 1 }, 1, 1)...,
	)
	hs := newTestHistoryService(t, records)

	assert.Equal(t, []string{"SKU001", "SKU002"}, hs.ProductIDs())
}

func TestComputeLagFeaturesFullHistory(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	// 40日分、販売数100, 101, ..., 139
	records := makeSalesRecords("SKU001", "Electronics", start, 40, func(i int) float64 { return float64(100 + i) }, 100, 200)
	hs := newTestHistoryService(t, records)

	target := time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC) // 全40件が対象日より前
	lags := hs.ComputeLagFeatures("SKU001", target)

	assert.Equal(t, 133.0, lags.SalesLag7d)  // 末尾から7件前
	assert.Equal(t, 110.0, lags.SalesLag30d) // 末尾から30件前
	assert.Equal(t, 136.0, lags.RollingAvg7d)
	assert.Equal(t, 124.5, lags.RollingAvg30d)
}

func TestComputeLagFeaturesTierBoundaries(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	target := start.AddDate(0, 0, 100)
	salesAt := func(i int) float64 { return float64(10 + i) }

	// ちょうど30件: n>=30の分岐
	hs30 := newTestHistoryService(t, makeSalesRecords("P", "C", start, 30, salesAt, 1, 1))
	lags30 := hs30.ComputeLagFeatures("P", target)
	assert.Equal(t, 33.0, lags30.SalesLag7d)  // sales[23]
	assert.Equal(t, 10.0, lags30.SalesLag30d) // sales[0]

	// 31件でも同じ分岐を同じ規則で使う
	hs31 := newTestHistoryService(t, makeSalesRecords("P", "C", start, 31, salesAt, 1, 1))
	lags31 := hs31.ComputeLagFeatures("P", target)
	assert.Equal(t, 34.0, lags31.SalesLag7d)
	assert.Equal(t, 11.0, lags31.SalesLag30d) // sales[1]

	// ちょうど7件: 中間分岐。lag30は直近値、rolling30は全件平均
	hs7 := newTestHistoryService(t, makeSalesRecords("P", "C", start, 7, salesAt, 1, 1))
	lags7 := hs7.ComputeLagFeatures("P", target)
	assert.Equal(t, 10.0, lags7.SalesLag7d)  // 末尾から7件前 = 先頭
	assert.Equal(t, 16.0, lags7.SalesLag30d) // 直近値
	assert.Equal(t, 13.0, lags7.RollingAvg7d)
	assert.Equal(t, 13.0, lags7.RollingAvg30d)

	// 6件: n<7の分岐。4つすべて直近値に収束する
	hs6 := newTestHistoryService(t, makeSalesRecords("P", "C", start, 6, salesAt, 1, 1))
	lags6 := hs6.ComputeLagFeatures("P", target)
	assert.Equal(t, 15.0, lags6.SalesLag7d)
	assert.Equal(t, 15.0, lags6.SalesLag30d)
	assert.Equal(t, 15.0, lags6.RollingAvg7d)
	assert.Equal(t, 15.0, lags6.RollingAvg30d)
}

func TestComputeLagFeaturesNoHistory(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	records := makeSalesRecords("SKU001", "Electronics", start, 10, func(i int) float64 { return 80 }, 100, 200)
	hs := newTestHistoryService(t, records)

	// 履歴のない商品は商品デフォルト（ここでは全体デフォルト）の平均販売数
	lags := hs.ComputeLagFeatures("SKU999", start.AddDate(0, 0, 50))
	expected := hs.ResolveDefaults("SKU999").AvgSales
	assert.Equal(t, expected, lags.SalesLag7d)
	assert.Equal(t, expected, lags.SalesLag30d)
	assert.Equal(t, expected, lags.RollingAvg7d)
	assert.Equal(t, expected, lags.RollingAvg30d)

	// 対象日より前のレコードがない場合も同様
	before := hs.ComputeLagFeatures("SKU001", start)
	assert.Equal(t, hs.ResolveDefaults("SKU001").AvgSales, before.SalesLag7d)
}

func TestComputeLagFeaturesStrictlyBefore(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	records := makeSalesRecords("SKU001", "Electronics", start, 3, func(i int) float64 { return float64(10 * (i + 1)) }, 1, 1)
	hs := newTestHistoryService(t, records)

	// 対象日当日のレコードは含まれない（厳密にその日より前）
	lags := hs.ComputeLagFeatures("SKU001", start.AddDate(0, 0, 2))
	assert.Equal(t, 20.0, lags.SalesLag7d)
}

func TestComputeLagFeaturesIdempotent(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	records := makeSalesRecords("SKU001", "Electronics", start, 20, func(i int) float64 { return float64(i * 3) }, 1, 1)
	hs := newTestHistoryService(t, records)

	target := start.AddDate(0, 0, 25)
	first := hs.ComputeLagFeatures("SKU001", target)
	second := hs.ComputeLagFeatures("SKU001", target)
	assert.Equal(t, first, second)
}

func TestLoadSalesHistoryCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sales.csv")

	csvContent := "date,product_id,product_category,sales_qty,price,base_demand\n" +
		"2024-01-01,SKU001,Electronics,120,199.99,100\n" +
		"2024-01-02,SKU001,Electronics,130,199.99,100\n" +
		"bad-date,SKU001,Electronics,140,199.99,100\n" + // 不正な日付はスキップ
		"2024-01-03,SKU002,Food,50,9.99,40\n"
	assert.NoError(t, os.WriteFile(path, []byte(csvContent), 0o644))

	records, err := LoadSalesHistory(path)
	assert.NoError(t, err)
	assert.Len(t, records, 3)
	assert.Equal(t, "SKU001", records[0].ProductID)
	assert.Equal(t, 120.0, records[0].SalesQty)
	assert.Equal(t, "Food", records[2].ProductCategory)
}

func TestLoadSalesHistoryCSVMissingColumns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sales.csv")

	// base_demand列が欠けている
	csvContent := "date,product_id,product_category,sales_qty,price\n" +
		"2024-01-01,SKU001,Electronics,120,199.99\n"
	assert.NoError(t, os.WriteFile(path, []byte(csvContent), 0o644))

	_, err := LoadSalesHistory(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "base_demand")
}

func TestLoadSalesHistoryCSVNoValidRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sales.csv")

	csvContent := "date,product_id,product_category,sales_qty,price,base_demand\n" +
		"bad,SKU001,Electronics,x,y,z\n"
	assert.NoError(t, os.WriteFile(path, []byte(csvContent), 0o644))

	_, err := LoadSalesHistory(path)
	assert.Error(t, err)
}

func TestLoadSalesHistoryXLSX(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sales.xlsx")

	// テスト用のワークブックを生成
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"date", "product_id", "product_category", "sales_qty", "price", "base_demand"},
		{"2024-01-01", "SKU001", "Electronics", 120, 199.99, 100},
		{"2024-01-02", "SKU001", "Electronics", 130, 199.99, 100},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		assert.NoError(t, err)
		assert.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	assert.NoError(t, f.SaveAs(path))
	assert.NoError(t, f.Close())

	records, err := LoadSalesHistory(path)
	assert.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, 130.0, records[1].SalesQty)
}

func TestLoadSalesHistoryUnsupportedExtension(t *testing.T) {
	_, err := LoadSalesHistory("sales.txt")
	assert.Error(t, err)
}

func TestLoadSalesHistoryMissingFile(t *testing.T) {
	_, err := LoadSalesHistory(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestSampleStdDevConsecutive(t *testing.T) {
	// 連続する整数n個の標本分散は n(n+1)/12
	var values []float64
	for i := 1; i <= 10; i++ {
		values = append(values, float64(i))
	}
	got := sampleStdDev(values)
	assert.InDelta(t, 3.0277, got, 0.001, fmt.Sprintf("got %f", got))
}
