package handlers

import (
	"errors"
	"net/http"

	"inventory-forecast-api/pkg/models"
	"inventory-forecast-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// PredictionHandler 販売数予測ハンドラー
type PredictionHandler struct {
	predictorService *services.PredictorService
	historyService   *services.HistoryService
	featureService   *services.FeatureService
}

// NewPredictionHandler 新しい販売数予測ハンドラーを作成
func NewPredictionHandler(predictorService *services.PredictorService, historyService *services.HistoryService, featureService *services.FeatureService) *PredictionHandler {
	return &PredictionHandler{
		predictorService: predictorService,
		historyService:   historyService,
		featureService:   featureService,
	}
}

// PredictSales 単一リクエストの販売数予測を実行
func (ph *PredictionHandler) PredictSales(c *gin.Context) {
	var request models.PredictionRequest

	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "リクエストの解析に失敗しました: " + err.Error(),
		})
		return
	}

	result, err := ph.predictorService.PredictSimple(request)
	if err != nil {
		// 日付不正・基準需要0はクライアント起因のリクエスト単位の失敗
		if errors.Is(err, services.ErrInvalidDate) || errors.Is(err, services.ErrZeroBaseDemand) {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "予測の実行に失敗しました: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// PredictSalesBatch 複数リクエストの一括予測を実行。
// 個別の失敗は該当項目に記録され、バッチ全体は継続する。
func (ph *PredictionHandler) PredictSalesBatch(c *gin.Context) {
	var request models.BatchPredictionRequest

	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "リクエストの解析に失敗しました: " + err.Error(),
		})
		return
	}

	if len(request.Requests) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "requestsには少なくとも1件必要です",
		})
		return
	}

	items := ph.predictorService.PredictBatch(request.Requests)

	succeeded := 0
	for _, item := range items {
		if item.Success {
			succeeded++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"data":      items,
		"total":     len(items),
		"succeeded": succeeded,
		"failed":    len(items) - succeeded,
	})
}

// GetProducts 履歴テーブルに存在する商品IDの一覧を返す
func (ph *PredictionHandler) GetProducts(c *gin.Context) {
	ids := ph.historyService.ProductIDs()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    ids,
		"count":   len(ids),
	})
}

// GetProductDefaults 商品の統計デフォルト値を返す。
// 未知の商品でも失敗せず、全体デフォルトから合成した値を返す。
func (ph *PredictionHandler) GetProductDefaults(c *gin.Context) {
	productID := c.Param("productID")

	defaults := ph.historyService.ResolveDefaults(productID)

	response := gin.H{
		"success":  true,
		"data":     defaults,
		"fallback": false,
	}

	known := false
	for _, id := range ph.historyService.ProductIDs() {
		if id == productID {
			known = true
			break
		}
	}
	if !known {
		response["fallback"] = true
	}

	// カテゴリ単位の集計は参考情報として併せて返す（フォールバックには未使用）
	if catDefaults, ok := ph.historyService.CategoryDefaultsFor(defaults.Category); ok {
		response["category_defaults"] = catDefaults
	}

	c.JSON(http.StatusOK, response)
}

// GetDateFeatures 日付からカレンダー特徴量を計算して返す（デバッグ用）
func (ph *PredictionHandler) GetDateFeatures(c *gin.Context) {
	dateStr := c.Query("date")
	if dateStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "dateクエリパラメータが必要です（YYYY-MM-DD）",
		})
		return
	}

	features, err := ph.featureService.ComputeDateFeatures(dateStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    features,
	})
}

// GetEventFeatures イベント入力から強度スコアを計算して返す（デバッグ用）
func (ph *PredictionHandler) GetEventFeatures(c *gin.Context) {
	weatherEvent := c.DefaultQuery("weather_event", models.EventNone)
	naturalDisaster := c.DefaultQuery("natural_disaster", models.EventNone)
	festivalEvent := c.DefaultQuery("festival_event", models.EventNone)
	economicEvent := c.DefaultQuery("economic_event", models.EventNone)

	features := ph.featureService.ScoreEvents(weatherEvent, naturalDisaster, festivalEvent, economicEvent)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    features,
	})
}
