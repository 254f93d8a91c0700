package config

import (
	"os"
)

// Config holds the application configuration
type Config struct {
	Port               string
	Environment        string
	APIKey             string
	AdminUsername      string
	AdminPassword      string
	ModelPath          string
	EncodersPath       string
	FeatureColumnsPath string
	SalesHistoryPath   string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Environment:        getEnv("ENVIRONMENT", "development"),
		APIKey:             getEnv("API_KEY", ""),
		AdminUsername:      getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:      getEnv("ADMIN_PASSWORD", ""),
		ModelPath:          getEnv("MODEL_PATH", "artifacts/inventory_model.json"),
		EncodersPath:       getEnv("ENCODERS_PATH", "artifacts/label_encoders.json"),
		FeatureColumnsPath: getEnv("FEATURE_COLUMNS_PATH", "artifacts/feature_columns.json"),
		SalesHistoryPath:   getEnv("SALES_HISTORY_PATH", "data/retail_sales_history.csv"),
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
