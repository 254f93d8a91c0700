package models

import "time"

// EventNone は「イベントなし」を表すセンチネル値。
// イベント系フィールドはnull/空ではなく必ずこの値を持つ。
const EventNone = "None"

// PredictionRequest represents a single sales prediction request.
// Event fields default to "None" when omitted.
type PredictionRequest struct {
	ProductID        string   `json:"product_id" binding:"required"`
	Date             string   `json:"date" binding:"required"` // YYYY-MM-DD
	WeatherEvent     string   `json:"weather_event,omitempty"`
	NaturalDisaster  string   `json:"natural_disaster,omitempty"`
	FestivalEvent    string   `json:"festival_event,omitempty"`
	EconomicEvent    string   `json:"economic_event,omitempty"`
	CustomPrice      *float64 `json:"custom_price,omitempty"`       // 省略時は商品デフォルト価格
	CustomBaseDemand *float64 `json:"custom_base_demand,omitempty"` // 省略時は商品デフォルト基準需要
}

// Normalize fills absent event fields with the "None" sentinel.
func (r *PredictionRequest) Normalize() {
	if r.WeatherEvent == "" {
		r.WeatherEvent = EventNone
	}
	if r.NaturalDisaster == "" {
		r.NaturalDisaster = EventNone
	}
	if r.FestivalEvent == "" {
		r.FestivalEvent = EventNone
	}
	if r.EconomicEvent == "" {
		r.EconomicEvent = EventNone
	}
}

// BatchPredictionRequest 複数リクエストの一括予測
type BatchPredictionRequest struct {
	Requests []PredictionRequest `json:"requests" binding:"required"`
}

// BatchPredictionItem 一括予測の1件分の結果。
// 個別の失敗はバッチ全体を中断せず、Errorに格納される。
type BatchPredictionItem struct {
	Index   int               `json:"index"`
	Success bool              `json:"success"`
	Result  *PredictionResult `json:"result,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// HistoricalSalesRecord is an immutable row of the historical sales table.
type HistoricalSalesRecord struct {
	Date            time.Time `json:"date"`
	ProductID       string    `json:"product_id"`
	ProductCategory string    `json:"product_category"`
	SalesQty        float64   `json:"sales_qty"`
	Price           float64   `json:"price"`
	BaseDemand      float64   `json:"base_demand"`
}

// ProductDefaults 商品ごとの統計デフォルト値（履歴テーブルから導出）
type ProductDefaults struct {
	Category      string  `json:"category"`
	AvgPrice      float64 `json:"avg_price"`
	AvgBaseDemand float64 `json:"avg_base_demand"`
	AvgSales      float64 `json:"avg_sales"`
	SalesStd      float64 `json:"sales_std"`
}

// CategoryDefaults カテゴリ単位の集計値（粗いフォールバック層）
type CategoryDefaults struct {
	AvgPrice      float64 `json:"avg_price"`
	AvgBaseDemand float64 `json:"avg_base_demand"`
	AvgSales      float64 `json:"avg_sales"`
}

// DateFeatures holds calendar-derived features for a prediction date.
// DayOfWeek uses the Monday=0 convention.
type DateFeatures struct {
	DayOfWeek  int `json:"day_of_week"`
	Month      int `json:"month"`
	Quarter    int `json:"quarter"`
	IsWeekend  int `json:"is_weekend"`
	DayOfMonth int `json:"day_of_month"`
	WeekOfYear int `json:"week_of_year"`
	IsHoliday  int `json:"is_holiday"`
}

// LagFeatures ラグ・移動平均特徴量（小数第2位で丸め）
type LagFeatures struct {
	SalesLag7d    float64 `json:"sales_lag_7d"`
	SalesLag30d   float64 `json:"sales_lag_30d"`
	RollingAvg7d  float64 `json:"rolling_avg_7d"`
	RollingAvg30d float64 `json:"rolling_avg_30d"`
}

// EventFeatures holds ordinal severity scores derived from the four
// categorical event inputs plus the aggregate externality signal.
type EventFeatures struct {
	WeatherIntensity    string `json:"weather_intensity"`
	FestivalImpactLevel string `json:"festival_impact_level"`
	DisasterSeverity    int    `json:"disaster_severity"`
	EconomicImpactScore int    `json:"economic_impact_score"`
	ExternalIntensity   int    `json:"external_intensity"`
	CombinedEventCount  int    `json:"combined_event_count"`
	IsPreEvent          int    `json:"is_pre_event"`
	IsPostEvent         int    `json:"is_post_event"`
}

// InputSummary 予測に使用した入力値のエコーバック
type InputSummary struct {
	ProductID            string  `json:"product_id"`
	Date                 string  `json:"date"`
	WeatherEvent         string  `json:"weather_event"`
	NaturalDisaster      string  `json:"natural_disaster"`
	FestivalEvent        string  `json:"festival_event"`
	EconomicEvent        string  `json:"economic_event"`
	CalculatedPrice      float64 `json:"calculated_price"`
	CalculatedBaseDemand float64 `json:"calculated_base_demand"`
}

// FeatureSummary 主要な導出特徴量のサマリー。
// EncodingFallbacksには未学習カテゴリのため0で代替した列名が入る。
type FeatureSummary struct {
	ExternalIntensity int      `json:"external_intensity"`
	IsWeekend         int      `json:"is_weekend"`
	IsHoliday         int      `json:"is_holiday"`
	CombinedEvents    int      `json:"combined_events"`
	EncodingFallbacks []string `json:"encoding_fallbacks,omitempty"`
}

// PredictionResult represents the final structured prediction response.
type PredictionResult struct {
	PredictionID     string         `json:"prediction_id"`
	PredictedSales   int            `json:"predicted_sales"` // 非負の整数
	BaseDemand       float64        `json:"base_demand"`
	UpliftUnits      float64        `json:"uplift_units"`
	UpliftPercentage float64        `json:"uplift_percentage"` // 小数第1位で丸め
	InputSummary     InputSummary   `json:"input_summary"`
	FeatureSummary   FeatureSummary `json:"feature_summary"`
}
