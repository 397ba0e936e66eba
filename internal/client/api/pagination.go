package api

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/and161185/tim-admin/internal/model"
)

// normalizePage accepts every list shape the backend has produced: a bare
// array, or an object with items under data, items, results, data.items or
// data.data and counters at the root, under data, or under meta/pagination.
func normalizePage[T any](body []byte, q model.ListQuery) (model.Page[T], error) {
	fallbackPage := max(q.Page, 1)
	fallbackLimit := q.Limit
	if fallbackLimit <= 0 {
		fallbackLimit = model.DefaultPageLimit
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return model.Page[T]{}, fmt.Errorf("decode list: %w", err)
	}

	root, _ := payload.(map[string]any)
	nested, _ := root["data"].(map[string]any)

	var rawItems []any
	switch {
	case isArray(payload):
		rawItems = payload.([]any)
	case isArray(root["data"]):
		rawItems = root["data"].([]any)
	case isArray(root["items"]):
		rawItems = root["items"].([]any)
	case isArray(root["results"]):
		rawItems = root["results"].([]any)
	case isArray(nested["items"]):
		rawItems = nested["items"].([]any)
	case isArray(nested["data"]):
		rawItems = nested["data"].([]any)
	}

	items := make([]T, 0, len(rawItems))
	if len(rawItems) > 0 {
		b, err := json.Marshal(rawItems)
		if err != nil {
			return model.Page[T]{}, err
		}
		if err := json.Unmarshal(b, &items); err != nil {
			return model.Page[T]{}, fmt.Errorf("decode list items: %w", err)
		}
	}

	meta, _ := root["meta"].(map[string]any)
	if meta == nil {
		meta, _ = root["pagination"].(map[string]any)
	}
	if meta == nil {
		meta, _ = nested["meta"].(map[string]any)
	}

	total, ok := firstNumber(
		lookup(root, "total"), lookup(nested, "total"), lookup(meta, "total"),
		lookup(root, "count"), lookup(nested, "count"),
	)
	if !ok {
		total = len(items)
	}
	limit, ok := firstNumber(lookup(root, "limit"), lookup(nested, "limit"), lookup(meta, "limit"))
	if !ok || limit <= 0 {
		limit = fallbackLimit
	}
	page, ok := firstNumber(lookup(root, "page"), lookup(nested, "page"), lookup(meta, "page"))
	if !ok || page <= 0 {
		page = fallbackPage
	}
	totalPages, ok := firstNumber(lookup(root, "totalPages"), lookup(nested, "totalPages"), lookup(meta, "totalPages"))
	if !ok || totalPages <= 0 {
		totalPages = model.TotalPages(total, limit)
	}

	return model.Page[T]{
		Items:      items,
		Total:      max(total, 0),
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}

func isArray(v any) bool {
	_, ok := v.([]any)
	return ok
}

func lookup(m map[string]any, key string) any {
	if m == nil {
		return nil
	}
	return m[key]
}

// firstNumber returns the first value that is a number or a numeric string.
func firstNumber(vals ...any) (int, bool) {
	for _, v := range vals {
		switch n := v.(type) {
		case float64:
			return int(n), true
		case string:
			if i, err := strconv.Atoi(n); err == nil {
				return i, true
			}
		}
	}
	return 0, false
}

// unwrapObject returns the object under "data" when body is an envelope
// like {"success": true, "data": {...}}, otherwise body itself.
func unwrapObject(body []byte) []byte {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return body
	}
	data, ok := env["data"]
	if !ok || len(data) == 0 || data[0] != '{' {
		return body
	}
	if _, hasID := env["id"]; hasID {
		return body
	}
	return data
}

func decodeObject[T any](body []byte) (T, error) {
	var out T
	if err := json.Unmarshal(unwrapObject(body), &out); err != nil {
		return out, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}
