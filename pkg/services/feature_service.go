package services

import (
	"errors"
	"fmt"
	"time"

	"inventory-forecast-api/pkg/models"
)

// ErrInvalidDate は解析不能な日付文字列に対して返されます。
var ErrInvalidDate = errors.New("invalid date: expected YYYY-MM-DD")

// nationalHolidays 固定の祝日（月/日、年に依存しない）
var nationalHolidays = [][2]int{
	{1, 1},   // New Year
	{1, 26},  // Republic Day
	{8, 15},  // Independence Day
	{10, 2},  // Gandhi Jayanti
	{12, 25}, // Christmas
}

// weatherIntensityMap 天候イベント → 強度ラベル
var weatherIntensityMap = map[string]string{
	"None":         "None",
	"Heavy_Rain":   "High",
	"Extreme_Heat": "High",
	"Storm":        "High",
	"Light_Rain":   "Low",
	"Cloudy":       "Low",
	"Sunny":        "None",
}

// festivalImpactMap 祭事イベント → 影響度ラベル
var festivalImpactMap = map[string]string{
	"None":      "None",
	"Diwali":    "High",
	"Holi":      "High",
	"Christmas": "High",
	"Eid":       "High",
	"New_Year":  "Medium",
	"Valentine": "Low",
}

// disasterSeverityMap 災害イベント → 深刻度スコア
var disasterSeverityMap = map[string]int{
	"Flood":      7,
	"Earthquake": 8,
	"Cyclone":    6,
}

// economicImpactMap 経済イベント → 符号付き影響スコア
var economicImpactMap = map[string]int{
	"Recession":     -5,
	"Boom":          5,
	"Policy_Change": 3,
}

// 強度ラベル → external_intensityへの寄与
var weatherContribution = map[string]int{"Low": 2, "Medium": 4, "High": 6}
var festivalContribution = map[string]int{"Low": 3, "Medium": 5, "High": 8}

// FeatureService derives calendar and event features for a prediction.
// All methods are pure functions over their inputs; the service holds no state.
type FeatureService struct{}

// NewFeatureService 新しいFeatureServiceを生成します。
func NewFeatureService() *FeatureService {
	return &FeatureService{}
}

// ParseDate は予測日付（YYYY-MM-DD）を解析します。
func (fs *FeatureService) ParseDate(dateStr string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, dateStr)
	}
	return t, nil
}

// ComputeDateFeatures は日付からカレンダー特徴量を導出します。
// 曜日は月曜=0の規約。is_weekendは土日のみ1。
func (fs *FeatureService) ComputeDateFeatures(dateStr string) (models.DateFeatures, error) {
	date, err := fs.ParseDate(dateStr)
	if err != nil {
		return models.DateFeatures{}, err
	}
	return fs.dateFeaturesOf(date), nil
}

func (fs *FeatureService) dateFeaturesOf(date time.Time) models.DateFeatures {
	// time.WeekdayはSunday=0なので月曜=0に変換する
	dayOfWeek := (int(date.Weekday()) + 6) % 7

	isWeekend := 0
	if dayOfWeek >= 5 {
		isWeekend = 1
	}

	isHoliday := 0
	for _, h := range nationalHolidays {
		if int(date.Month()) == h[0] && date.Day() == h[1] {
			isHoliday = 1
			break
		}
	}

	_, week := date.ISOWeek()

	return models.DateFeatures{
		DayOfWeek:  dayOfWeek,
		Month:      int(date.Month()),
		Quarter:    (int(date.Month())-1)/3 + 1,
		IsWeekend:  isWeekend,
		DayOfMonth: date.Day(),
		WeekOfYear: week,
		IsHoliday:  isHoliday,
	}
}

// ScoreEvents は4種類のカテゴリカルなイベント入力を順序付きの強度スコアへ
// 変換し、external_intensity（外的強度の合算値）を計算します。
// "None"センチネルのフィールドは寄与ゼロ。テーブルの参照順は固定です。
func (fs *FeatureService) ScoreEvents(weatherEvent, naturalDisaster, festivalEvent, economicEvent string) models.EventFeatures {
	externalIntensity := 0

	// 天候: 未登録の非"None"値はLow扱い
	weatherIntensity, ok := weatherIntensityMap[weatherEvent]
	if !ok {
		weatherIntensity = "Low"
	}
	if weatherEvent != models.EventNone {
		externalIntensity += weatherContribution[weatherIntensity]
	}

	// 祭事: 未登録の非"None"値はLow扱い
	festivalImpactLevel, ok := festivalImpactMap[festivalEvent]
	if !ok {
		festivalImpactLevel = "Low"
	}
	if festivalEvent != models.EventNone {
		externalIntensity += festivalContribution[festivalImpactLevel]
	}

	// 災害: 未登録の非"None"値は深刻度5
	disasterSeverity := 0
	if naturalDisaster != models.EventNone {
		if sev, ok := disasterSeverityMap[naturalDisaster]; ok {
			disasterSeverity = sev
		} else {
			disasterSeverity = 5
		}
		externalIntensity += disasterSeverity
	}

	// 経済: 符号付きスコア、強度には絶対値で寄与
	economicImpactScore := 0
	if economicEvent != models.EventNone {
		economicImpactScore = economicImpactMap[economicEvent]
		if economicImpactScore < 0 {
			externalIntensity += -economicImpactScore
		} else {
			externalIntensity += economicImpactScore
		}
	}

	combinedEventCount := 0
	for _, ev := range []string{weatherEvent, naturalDisaster, festivalEvent, economicEvent} {
		if ev != models.EventNone {
			combinedEventCount++
		}
	}

	// is_pre_eventは祭事の有無のみで判定する（日付相対のウィンドウ計算は
	// 本経路では行わない）。is_post_eventは常に0。
	isPreEvent := 0
	if festivalEvent != models.EventNone {
		isPreEvent = 1
	}

	return models.EventFeatures{
		WeatherIntensity:    weatherIntensity,
		FestivalImpactLevel: festivalImpactLevel,
		DisasterSeverity:    disasterSeverity,
		EconomicImpactScore: economicImpactScore,
		ExternalIntensity:   externalIntensity,
		CombinedEventCount:  combinedEventCount,
		IsPreEvent:          isPreEvent,
		IsPostEvent:         0,
	}
}
