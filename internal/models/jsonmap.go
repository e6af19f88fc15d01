package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap хранит произвольный набор пар ключ/значение в колонке jsonb.
// Ядро не интерпретирует содержимое: карта передается сквозь сервисы,
// аудит и события как есть.
type JSONMap map[string]interface{}

// Value сериализует карту для записи в базу данных.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json map: %w", err)
	}
	return data, nil
}

// Scan читает карту из значения колонки jsonb.
func (m *JSONMap) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported json map source type %T", src)
	}

	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}
