package main

import (
	"log"
	"net/http"

	config "inventory-forecast-api/configs"
	"inventory-forecast-api/pkg/handlers"
	"inventory-forecast-api/pkg/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	// 設定の読み込み
	cfg := config.LoadConfig()

	// 学習済み成果物の読み込み。欠損・破損があれば起動を中止する
	// （部分的に読み込まれた状態で予測を提供してはならない）。
	artifacts, err := services.LoadArtifacts(cfg.ModelPath, cfg.EncodersPath, cfg.FeatureColumnsPath)
	if err != nil {
		log.Fatalf("FATAL: Failed to load model artifacts: %v", err)
	}

	// 販売履歴テーブルの読み込みとインデックス構築（起動時に一度だけ）
	records, err := services.LoadSalesHistory(cfg.SalesHistoryPath)
	if err != nil {
		log.Fatalf("FATAL: Failed to load sales history: %v", err)
	}
	historyService, err := services.NewHistoryService(records)
	if err != nil {
		log.Fatalf("FATAL: Failed to build history index: %v", err)
	}
	log.Printf("Sales history loaded: %d records, %d products", historyService.RecordCount(), len(historyService.ProductIDs()))

	// Ginルーターの初期化
	r := gin.Default()

	// サービスの初期化
	monitoringService := services.NewMonitoringService()
	featureService := services.NewFeatureService()
	predictorService := services.NewPredictorService(historyService, featureService, artifacts)

	// ハンドラーの初期化
	predictionHandler := handlers.NewPredictionHandler(predictorService, historyService, featureService)
	adminHandler := handlers.NewAdminHandler(cfg)
	monitoringHandler := handlers.NewMonitoringHandler(monitoringService)

	// ミドルウェアの登録
	r.Use(monitoringService.LoggingMiddleware())
	r.Use(cors.Default())

	// 認証ミドルウェア
	authMiddleware := func(apiKey string) gin.HandlerFunc {
		return func(c *gin.Context) {
			if apiKey == "" || apiKey == "default_secret_key" {
				c.Next()
				return
			}
			providedKey := c.GetHeader("X-API-KEY")
			if providedKey != apiKey {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
				return
			}
			c.Next()
		}
	}

	// ヘルスチェックエンドポイント
	r.GET("/health", handlers.HealthCheck)

	// APIバージョン1のルートグループ
	v1 := r.Group("/api/v1")
	v1.Use(authMiddleware(cfg.APIKey))
	{
		// 管理者向けAPI
		admin := v1.Group("/admin")
		{
			admin.GET("/health-status", adminHandler.GetHealthStatus)
			admin.POST("/maintenance/start", adminHandler.StartMaintenance)
			admin.POST("/maintenance/stop", adminHandler.StopMaintenance)
		}

		// モニタリングAPI
		monitoring := v1.Group("/monitoring")
		{
			monitoring.GET("/logs", monitoringHandler.GetLogs)
		}

		// 在庫予測API
		inventory := v1.Group("/inventory")
		{
			inventory.POST("/predict", predictionHandler.PredictSales)
			inventory.POST("/predict/batch", predictionHandler.PredictSalesBatch)
			inventory.GET("/products", predictionHandler.GetProducts)
			inventory.GET("/products/:productID/defaults", predictionHandler.GetProductDefaults)
			inventory.GET("/features/date", predictionHandler.GetDateFeatures)    // カレンダー特徴量の確認用
			inventory.GET("/features/events", predictionHandler.GetEventFeatures) // イベントスコアの確認用
		}
	}

	log.Printf("Starting Inventory Forecast API server on :%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
