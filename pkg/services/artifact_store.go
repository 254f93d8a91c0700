package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// RegressionModel は学習済み回帰モデルの契約です。
// 特徴量名→値の行を受け取り、生の予測値を返します。内部構造は不問。
type RegressionModel interface {
	Predict(row map[string]float64) (float64, error)
}

// LinearModel is a trained regression artifact exported as JSON weights.
// Features absent from the weight map contribute nothing; weights whose
// feature is absent from the row are treated as zero-valued input.
type LinearModel struct {
	Version   string             `json:"version"`
	Intercept float64            `json:"intercept"`
	Weights   map[string]float64 `json:"weights"`
	TrainedAt string             `json:"trained_at"`
}

// Predict は重み付き線形結合で生の予測値を計算します。
func (m *LinearModel) Predict(row map[string]float64) (float64, error) {
	if len(m.Weights) == 0 {
		return 0, errors.New("model: no weights loaded")
	}
	sum := m.Intercept
	for feature, weight := range m.Weights {
		sum += weight * row[feature]
	}
	return sum, nil
}

// LabelEncoders maps categorical columns to their trained value→code tables.
type LabelEncoders struct {
	tables map[string]map[string]int
}

// Columns はエンコーダが定義されている列名の一覧を返します。
func (e *LabelEncoders) Columns() []string {
	cols := make([]string, 0, len(e.tables))
	for col := range e.tables {
		cols = append(cols, col)
	}
	return cols
}

// Encode は学習済みテーブルで値を整数コードへ変換します。
// 未学習の値（またはエンコーダのない列）はok=falseを返し、呼び出し側が
// 中立値0で代替します。
func (e *LabelEncoders) Encode(column, value string) (int, bool) {
	table, ok := e.tables[column]
	if !ok {
		return 0, false
	}
	code, ok := table[value]
	return code, ok
}

// ArtifactStore bundles the trained model, its categorical encoders, and the
// ordered feature schema. Loaded once at startup and immutable afterwards.
type ArtifactStore struct {
	Model          RegressionModel
	Encoders       *LabelEncoders
	FeatureColumns []string
}

// LoadArtifacts は学習済み成果物を読み込みます。
// いずれかのファイルが欠損・破損している場合はエラーを返し、
// プロセスは部分的な状態で稼働してはなりません。
func LoadArtifacts(modelPath, encodersPath, featureColumnsPath string) (*ArtifactStore, error) {
	model, err := loadLinearModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("artifacts: model: %w", err)
	}

	encoders, err := loadLabelEncoders(encodersPath)
	if err != nil {
		return nil, fmt.Errorf("artifacts: encoders: %w", err)
	}

	columns, err := loadFeatureColumns(featureColumnsPath)
	if err != nil {
		return nil, fmt.Errorf("artifacts: feature columns: %w", err)
	}

	return &ArtifactStore{
		Model:          model,
		Encoders:       encoders,
		FeatureColumns: columns,
	}, nil
}

func loadLinearModel(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var model LinearModel
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, err
	}
	if len(model.Weights) == 0 {
		return nil, errors.New("no weights defined")
	}
	return &model, nil
}

func loadLabelEncoders(path string) (*LabelEncoders, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tables map[string]map[string]int
	if err := json.Unmarshal(data, &tables); err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, errors.New("no encoder tables defined")
	}
	return &LabelEncoders{tables: tables}, nil
}

func loadFeatureColumns(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var columns []string
	if err := json.Unmarshal(data, &columns); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, errors.New("empty feature column list")
	}
	return columns, nil
}

// NewLabelEncoders はテーブルから直接エンコーダを構築します（テスト用途）。
func NewLabelEncoders(tables map[string]map[string]int) *LabelEncoders {
	return &LabelEncoders{tables: tables}
}
