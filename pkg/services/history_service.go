package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"inventory-forecast-api/pkg/models"

	"github.com/xuri/excelize/v2"
)

// fallbackCategory 未知商品のフォールバックに使うカテゴリ（履歴中の最頻カテゴリ）
const fallbackCategory = "Electronics"

// salesHistoryDateLayouts accepted date formats for the sales history file.
var salesHistoryDateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-1-2",
	"2006/01/02",
	"2006/1/2",
	"01/02/2006",
	"20060102",
}

// HistoryService owns the read-only historical sales table and the lookup
// caches derived from it (per-product, per-category, overall). It is built
// once at startup and queried concurrently without locking.
type HistoryService struct {
	byProduct        map[string][]models.HistoricalSalesRecord // 商品ごと、日付昇順
	productDefaults  map[string]models.ProductDefaults
	categoryDefaults map[string]models.CategoryDefaults
	overallPrice     float64
	overallBase      float64
	recordCount      int
}

// NewHistoryService は履歴テーブルから各種ルックアップを構築します。
// 構築後は不変で、全コンポーネントが読み取り専用ビューとして共有します。
func NewHistoryService(records []models.HistoricalSalesRecord) (*HistoryService, error) {
	if len(records) == 0 {
		return nil, errors.New("sales history: no records")
	}

	hs := &HistoryService{
		byProduct:        make(map[string][]models.HistoricalSalesRecord),
		productDefaults:  make(map[string]models.ProductDefaults),
		categoryDefaults: make(map[string]models.CategoryDefaults),
		recordCount:      len(records),
	}

	sorted := make([]models.HistoricalSalesRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	var sumPrice, sumBase float64
	for _, rec := range sorted {
		hs.byProduct[rec.ProductID] = append(hs.byProduct[rec.ProductID], rec)
		sumPrice += rec.Price
		sumBase += rec.BaseDemand
	}
	hs.overallPrice = sumPrice / float64(len(sorted))
	hs.overallBase = sumBase / float64(len(sorted))

	// 商品単位の集計: カテゴリは先頭、価格・基準需要・販売数は平均、販売数は標準偏差も
	for productID, recs := range hs.byProduct {
		var prices, bases, sales []float64
		for _, r := range recs {
			prices = append(prices, r.Price)
			bases = append(bases, r.BaseDemand)
			sales = append(sales, r.SalesQty)
		}
		hs.productDefaults[productID] = models.ProductDefaults{
			Category:      recs[0].ProductCategory,
			AvgPrice:      round2(mean(prices)),
			AvgBaseDemand: round2(mean(bases)),
			AvgSales:      round2(mean(sales)),
			SalesStd:      round2(sampleStdDev(sales)),
		}
	}

	// カテゴリ単位の集計（粗いフォールバック層）。
	// 現行の契約では未知商品はOverallDefaultsへ直接フォールバックし、
	// この層は参照専用として公開するのみ。
	catValues := make(map[string][3][]float64)
	for _, recs := range hs.byProduct {
		for _, r := range recs {
			v := catValues[r.ProductCategory]
			v[0] = append(v[0], r.Price)
			v[1] = append(v[1], r.BaseDemand)
			v[2] = append(v[2], r.SalesQty)
			catValues[r.ProductCategory] = v
		}
	}
	for cat, v := range catValues {
		hs.categoryDefaults[cat] = models.CategoryDefaults{
			AvgPrice:      round2(mean(v[0])),
			AvgBaseDemand: round2(mean(v[1])),
			AvgSales:      round2(mean(v[2])),
		}
	}

	return hs, nil
}

// ResolveDefaults は商品の統計デフォルト値を返します。
// 履歴に存在しない商品は全体デフォルトから合成した値になります
// （sales_stdは基準需要の20%で近似）。
func (hs *HistoryService) ResolveDefaults(productID string) models.ProductDefaults {
	if d, ok := hs.productDefaults[productID]; ok {
		return d
	}
	return hs.OverallDefaults()
}

// OverallDefaults は未知商品用に合成したデフォルト値を返します。
func (hs *HistoryService) OverallDefaults() models.ProductDefaults {
	return models.ProductDefaults{
		Category:      fallbackCategory,
		AvgPrice:      hs.overallPrice,
		AvgBaseDemand: hs.overallBase,
		AvgSales:      hs.overallBase,
		SalesStd:      hs.overallBase * 0.2,
	}
}

// CategoryDefaultsFor はカテゴリ単位の集計値を返します（参照専用）。
func (hs *HistoryService) CategoryDefaultsFor(category string) (models.CategoryDefaults, bool) {
	d, ok := hs.categoryDefaults[category]
	return d, ok
}

// ProductIDs は履歴に存在する商品IDの一覧をソート済みで返します。
func (hs *HistoryService) ProductIDs() []string {
	ids := make([]string, 0, len(hs.byProduct))
	for id := range hs.byProduct {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RecordCount は読み込んだ履歴行数を返します。
func (hs *HistoryService) RecordCount() int {
	return hs.recordCount
}

// ComputeLagFeatures は対象日より厳密に前の販売実績からラグ・移動平均
// 特徴量を導出します。利用可能なレコード数nに応じた3段階のフォールバック:
//
//	n >= 30:     lag7は末尾から7件前、lag30は30件前、移動平均は直近7/30件の平均
//	7 <= n < 30: lag7は末尾からmin(7,n)件前、lag30は直近値、
//	             rolling7は直近7件の平均、rolling30は全件の平均
//	n < 7:       4つすべて直近値（n=0は商品デフォルトの平均販売数）
//
// この段階分けは再現必須の仕様であり、近似ではありません。
func (hs *HistoryService) ComputeLagFeatures(productID string, date time.Time) models.LagFeatures {
	var sales []float64
	for _, rec := range hs.byProduct[productID] {
		if rec.Date.Before(date) {
			sales = append(sales, rec.SalesQty)
		}
	}

	n := len(sales)
	if n == 0 {
		avg := hs.ResolveDefaults(productID).AvgSales
		return models.LagFeatures{
			SalesLag7d:    avg,
			SalesLag30d:   avg,
			RollingAvg7d:  avg,
			RollingAvg30d: avg,
		}
	}

	var lag7, lag30, roll7, roll30 float64
	switch {
	case n >= 30:
		lag7 = sales[n-7]
		lag30 = sales[n-30]
		roll7 = mean(sales[n-7:])
		roll30 = mean(sales[n-30:])
	case n >= 7:
		lag7 = sales[n-minInt(7, n)]
		lag30 = sales[n-1]
		roll7 = mean(sales[n-7:])
		roll30 = mean(sales)
	default:
		latest := sales[n-1]
		lag7, lag30, roll7, roll30 = latest, latest, latest, latest
	}

	return models.LagFeatures{
		SalesLag7d:    round2(lag7),
		SalesLag30d:   round2(lag30),
		RollingAvg7d:  round2(roll7),
		RollingAvg30d: round2(roll30),
	}
}

// LoadSalesHistory reads the historical sales table from a CSV or XLSX file.
// Headers are matched case-insensitively (English and Japanese accepted) and
// rows with unparsable dates or quantities are skipped.
func LoadSalesHistory(path string) ([]models.HistoricalSalesRecord, error) {
	var rows [][]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("sales history: failed to open workbook: %w", err)
		}
		defer f.Close()
		rows, err = f.GetRows(f.GetSheetName(0))
		if err != nil {
			return nil, fmt.Errorf("sales history: failed to read sheet: %w", err)
		}
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("sales history: failed to open file: %w", err)
		}
		defer f.Close()
		r := csv.NewReader(f)
		r.FieldsPerRecord = -1
		var err2 error
		rows, err2 = r.ReadAll()
		if err2 != nil {
			return nil, fmt.Errorf("sales history: failed to parse csv: %w", err2)
		}
	default:
		return nil, fmt.Errorf("sales history: unsupported file type: %s", path)
	}

	return parseSalesRows(rows)
}

// parseSalesRows converts raw [][]string rows (header + data) into records.
func parseSalesRows(rows [][]string) ([]models.HistoricalSalesRecord, error) {
	if len(rows) < 2 {
		return nil, errors.New("sales history: header and at least one data row required")
	}

	header := normalizeSalesHeader(rows[0])
	dateIdx := findHeaderIndex(header, "date", "日付")
	productIdx := findHeaderIndex(header, "product_id", "product_code", "商品id", "商品コード")
	categoryIdx := findHeaderIndex(header, "product_category", "category", "カテゴリ")
	salesIdx := findHeaderIndex(header, "sales_qty", "sales", "quantity", "販売数", "数量")
	priceIdx := findHeaderIndex(header, "price", "価格")
	baseIdx := findHeaderIndex(header, "base_demand", "基準需要")

	var missing []string
	for _, col := range []struct {
		name string
		idx  int
	}{
		{"date", dateIdx},
		{"product_id", productIdx},
		{"product_category", categoryIdx},
		{"sales_qty", salesIdx},
		{"price", priceIdx},
		{"base_demand", baseIdx},
	} {
		if col.idx == -1 {
			missing = append(missing, col.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("sales history: missing columns: %s", strings.Join(missing, ", "))
	}

	var records []models.HistoricalSalesRecord
	for _, row := range rows[1:] {
		if len(row) <= dateIdx || len(row) <= productIdx || len(row) <= categoryIdx ||
			len(row) <= salesIdx || len(row) <= priceIdx || len(row) <= baseIdx {
			continue
		}
		date, ok := parseSalesDate(strings.TrimSpace(row[dateIdx]))
		if !ok {
			continue
		}
		productID := strings.TrimSpace(row[productIdx])
		if productID == "" {
			continue
		}
		salesQty, err := strconv.ParseFloat(strings.TrimSpace(row[salesIdx]), 64)
		if err != nil {
			continue
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(row[priceIdx]), 64)
		if err != nil {
			continue
		}
		baseDemand, err := strconv.ParseFloat(strings.TrimSpace(row[baseIdx]), 64)
		if err != nil {
			continue
		}
		records = append(records, models.HistoricalSalesRecord{
			Date:            date,
			ProductID:       productID,
			ProductCategory: strings.TrimSpace(row[categoryIdx]),
			SalesQty:        salesQty,
			Price:           price,
			BaseDemand:      baseDemand,
		})
	}

	if len(records) == 0 {
		return nil, errors.New("sales history: no valid rows")
	}
	return records, nil
}

func parseSalesDate(s string) (time.Time, bool) {
	for _, layout := range salesHistoryDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func normalizeSalesHeader(hdr []string) []string {
	out := make([]string, len(hdr))
	for i, v := range hdr {
		// Remove UTF-8 BOM if present, then trim and lowercase
		v = strings.TrimPrefix(v, "\ufeff")
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func findHeaderIndex(hdr []string, candidates ...string) int {
	for _, c := range candidates {
		for i, v := range hdr {
			if v == c {
				return i
			}
		}
	}
	return -1
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStdDev 標本標準偏差（n-1）。n<2のときは0。
func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var ss float64
	for _, v := range values {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(values)-1))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
