package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/brainbox/retailplus/internal/domain"
	"github.com/iancoleman/strcase"
)

// Domain objects use camelCase JSON; remote rows use snake_case columns.
// Only top-level keys are translated: nested objects (tenant settings) are
// stored as JSON columns and keep their domain shape.

// ToRow converts a domain payload into a snake_case column map.
func ToRow(p domain.Payload) (map[string]any, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s row: %w", p.Table(), err)
	}
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, fmt.Errorf("encode %s row: %w", p.Table(), err)
	}
	row := make(map[string]any, len(fields))
	for k, v := range fields {
		row[ColumnName(k)] = v
	}
	return row, nil
}

// FromRow converts a snake_case column map back into the table's payload type.
func FromRow(table domain.Table, row map[string]any) (domain.Payload, error) {
	fields := make(map[string]any, len(row))
	for k, v := range row {
		fields[FieldName(k)] = v
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("decode %s row: %w", table, err)
	}
	return domain.DecodePayload(table, b)
}

// FromRows decodes a list of rows; one bad row fails the whole read so a
// partial result never reaches the cache.
func FromRows(table domain.Table, rows []map[string]any) ([]domain.Payload, error) {
	out := make([]domain.Payload, 0, len(rows))
	for _, r := range rows {
		p, err := FromRow(table, r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func ColumnName(field string) string {
	return strcase.ToSnake(field)
}

func FieldName(column string) string {
	return strcase.ToLowerCamel(column)
}
