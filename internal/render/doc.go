// Package render maps inference results onto view state. Every accessor is
// defensive: missing fields yield empty lists, zero numbers or a visible
// placeholder, never a panic.
package render

import (
	"math"
	"strconv"
	"strings"

	"github.com/raphaelgruber/portal-go/internal/models"
	"github.com/tidwall/gjson"
)

// Placeholder is shown in place of a missing text field.
const Placeholder = "—"

// Doc is a read-only view over a JSON result.
type Doc struct {
	res gjson.Result
}

// Parse wraps raw JSON. Invalid input yields an empty Doc.
func Parse(raw []byte) Doc {
	if !gjson.ValidBytes(raw) {
		return Doc{}
	}
	return Doc{res: gjson.ParseBytes(raw)}
}

// FromResult wraps the structured part of an inference result.
func FromResult(r *models.InferenceResult) Doc {
	if r == nil || len(r.Raw) == 0 {
		return Doc{}
	}
	return Parse(r.Raw)
}

func (d Doc) get(path string) gjson.Result {
	if !d.res.Exists() {
		return gjson.Result{}
	}
	return d.res.Get(path)
}

// Exists reports whether path holds a non-null value.
func (d Doc) Exists(path string) bool {
	r := d.get(path)
	return r.Exists() && r.Type != gjson.Null
}

// String returns the trimmed text at path, or Placeholder.
func (d Doc) String(path string) string {
	return d.StringOr(path, Placeholder)
}

// StringOr returns the trimmed text at path, or def.
func (d Doc) StringOr(path, def string) string {
	r := d.get(path)
	if r.Type == gjson.Null || r.IsArray() || r.IsObject() {
		return def
	}
	if s := strings.TrimSpace(r.String()); s != "" {
		return s
	}
	return def
}

// Number returns a finite number at path, or 0. Numeric strings such as
// "12.5%" or "$1,200" are coerced.
func (d Doc) Number(path string) float64 {
	r := d.get(path)
	var v float64
	switch r.Type {
	case gjson.Number:
		v = r.Float()
	case gjson.String:
		s := strings.NewReplacer("%", "", "$", "", ",", "", "+", "").Replace(strings.TrimSpace(r.Str))
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		v = f
	default:
		return 0
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Strings returns the non-empty scalar elements of the array at path.
// A missing or non-array value yields an empty, non-nil slice.
func (d Doc) Strings(path string) []string {
	out := []string{}
	r := d.get(path)
	if !r.IsArray() {
		return out
	}
	for _, el := range r.Array() {
		if el.IsArray() || el.IsObject() || el.Type == gjson.Null {
			continue
		}
		if s := strings.TrimSpace(el.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Objects returns the object elements of the array at path.
// A missing or non-array value yields an empty, non-nil slice.
func (d Doc) Objects(path string) []Doc {
	out := []Doc{}
	r := d.get(path)
	if !r.IsArray() {
		return out
	}
	for _, el := range r.Array() {
		if el.IsObject() {
			out = append(out, Doc{res: el})
		}
	}
	return out
}
