package services

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"inventory-forecast-api/pkg/models"

	"github.com/google/uuid"
)

// ErrZeroBaseDemand は基準需要が0のときの上昇率計算の失敗を表します。
var ErrZeroBaseDemand = errors.New("base demand is zero: uplift percentage undefined")

// PredictorService assembles the model feature vector from product defaults,
// calendar, lag, and event features, invokes the trained model, and
// synthesizes the final prediction result.
type PredictorService struct {
	history   *HistoryService
	features  *FeatureService
	artifacts *ArtifactStore
}

// NewPredictorService 新しいPredictorServiceを生成します。
func NewPredictorService(history *HistoryService, features *FeatureService, artifacts *ArtifactStore) *PredictorService {
	return &PredictorService{
		history:   history,
		features:  features,
		artifacts: artifacts,
	}
}

// PredictSimple は最小限の入力から販売数を予測します。
// 日付不正と基準需要0はリクエスト単位の失敗として返り、
// 未学習カテゴリや欠損特徴量はローカルに回復して処理を継続します。
func (ps *PredictorService) PredictSimple(req models.PredictionRequest) (*models.PredictionResult, error) {
	req.Normalize()

	date, err := ps.features.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}

	// 商品デフォルトの解決（未知商品は全体デフォルトへフォールバック）
	defaults := ps.history.ResolveDefaults(req.ProductID)

	price := defaults.AvgPrice
	if req.CustomPrice != nil {
		price = *req.CustomPrice
	}
	baseDemand := defaults.AvgBaseDemand
	if req.CustomBaseDemand != nil {
		baseDemand = *req.CustomBaseDemand
	}

	// 3つの特徴量計算は同一リクエストに対して互いに独立
	dateFeatures := ps.features.dateFeaturesOf(date)
	lagFeatures := ps.history.ComputeLagFeatures(req.ProductID, date)
	eventFeatures := ps.features.ScoreEvents(req.WeatherEvent, req.NaturalDisaster, req.FestivalEvent, req.EconomicEvent)

	row, fallbacks := ps.assembleFeatures(req, defaults.Category, price, baseDemand, dateFeatures, lagFeatures, eventFeatures)

	raw, err := ps.artifacts.Model.Predict(row)
	if err != nil {
		return nil, fmt.Errorf("model prediction failed: %w", err)
	}

	// 予測値は常に非負の整数単位
	predicted := int(math.Round(raw))
	if predicted < 0 {
		predicted = 0
	}

	// 上昇量の合成。基準需要0は百分率が定義できないため失敗にする。
	if baseDemand == 0 {
		return nil, ErrZeroBaseDemand
	}
	upliftUnits := float64(predicted) - baseDemand
	upliftPercentage := math.Round(upliftUnits/baseDemand*100*10) / 10

	return &models.PredictionResult{
		PredictionID:     uuid.New().String(),
		PredictedSales:   predicted,
		BaseDemand:       baseDemand,
		UpliftUnits:      upliftUnits,
		UpliftPercentage: upliftPercentage,
		InputSummary: models.InputSummary{
			ProductID:            req.ProductID,
			Date:                 req.Date,
			WeatherEvent:         req.WeatherEvent,
			NaturalDisaster:      req.NaturalDisaster,
			FestivalEvent:        req.FestivalEvent,
			EconomicEvent:        req.EconomicEvent,
			CalculatedPrice:      price,
			CalculatedBaseDemand: baseDemand,
		},
		FeatureSummary: models.FeatureSummary{
			ExternalIntensity: eventFeatures.ExternalIntensity,
			IsWeekend:         dateFeatures.IsWeekend,
			IsHoliday:         dateFeatures.IsHoliday,
			CombinedEvents:    eventFeatures.CombinedEventCount,
			EncodingFallbacks: fallbacks,
		},
	}, nil
}

// PredictBatch は順序を保ったまま複数リクエストを処理します。
// 1件の失敗でバッチ全体を中断せず、該当項目にエラーを記録します。
func (ps *PredictorService) PredictBatch(requests []models.PredictionRequest) []models.BatchPredictionItem {
	items := make([]models.BatchPredictionItem, len(requests))
	for i, req := range requests {
		result, err := ps.PredictSimple(req)
		if err != nil {
			items[i] = models.BatchPredictionItem{Index: i, Success: false, Error: err.Error()}
			continue
		}
		items[i] = models.BatchPredictionItem{Index: i, Success: true, Result: result}
	}
	return items
}

// assembleFeatures merges all inputs into the exact schema the model was
// trained with: categorical columns are label-encoded (unseen values fall
// back to code 0 and are reported, never raised), and any expected column
// missing from the assembled record is zero-filled.
func (ps *PredictorService) assembleFeatures(
	req models.PredictionRequest,
	category string,
	price, baseDemand float64,
	dateFeatures models.DateFeatures,
	lagFeatures models.LagFeatures,
	eventFeatures models.EventFeatures,
) (map[string]float64, []string) {
	categorical := map[string]string{
		"product_id":            req.ProductID,
		"product_category":      category,
		"weather_event":         req.WeatherEvent,
		"natural_disaster":      req.NaturalDisaster,
		"festival_event":        req.FestivalEvent,
		"economic_event":        req.EconomicEvent,
		"weather_intensity":     eventFeatures.WeatherIntensity,
		"festival_impact_level": eventFeatures.FestivalImpactLevel,
	}

	numeric := map[string]float64{
		"price":                 price,
		"base_demand":           baseDemand,
		"price_change_pct":      0, // 価格変動なしとして扱う
		"day_of_week":           float64(dateFeatures.DayOfWeek),
		"month":                 float64(dateFeatures.Month),
		"quarter":               float64(dateFeatures.Quarter),
		"is_weekend":            float64(dateFeatures.IsWeekend),
		"day_of_month":          float64(dateFeatures.DayOfMonth),
		"week_of_year":          float64(dateFeatures.WeekOfYear),
		"is_holiday":            float64(dateFeatures.IsHoliday),
		"sales_lag_7d":          lagFeatures.SalesLag7d,
		"sales_lag_30d":         lagFeatures.SalesLag30d,
		"rolling_avg_7d":        lagFeatures.RollingAvg7d,
		"rolling_avg_30d":       lagFeatures.RollingAvg30d,
		"disaster_severity":     float64(eventFeatures.DisasterSeverity),
		"economic_impact_score": float64(eventFeatures.EconomicImpactScore),
		"external_intensity":    float64(eventFeatures.ExternalIntensity),
		"combined_event_count":  float64(eventFeatures.CombinedEventCount),
		"is_pre_event":          float64(eventFeatures.IsPreEvent),
		"is_post_event":         float64(eventFeatures.IsPostEvent),
	}

	// カテゴリカル列のエンコード。列の走査順を固定して再現性を保つ。
	var fallbacks []string
	columns := ps.artifacts.Encoders.Columns()
	sort.Strings(columns)
	for _, col := range columns {
		value, ok := categorical[col]
		if !ok {
			continue
		}
		code, seen := ps.artifacts.Encoders.Encode(col, value)
		if !seen {
			// 未学習カテゴリは中立コード0で代替（想定内のためログしない）
			code = 0
			fallbacks = append(fallbacks, col)
		}
		numeric[col+"_encoded"] = float64(code)
	}

	// モデルが期待する列だけを、期待する順に埋める。欠損は0埋め。
	row := make(map[string]float64, len(ps.artifacts.FeatureColumns))
	for _, feature := range ps.artifacts.FeatureColumns {
		if v, ok := numeric[feature]; ok {
			row[feature] = v
		} else {
			row[feature] = 0
		}
	}
	return row, fallbacks
}
