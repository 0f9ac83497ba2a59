// Package codec converts domain records to and from their JSON text forms.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/domain"
	"github.com/tidwall/gjson"
)

// ParsePatch parses a config body into ordered fields. The body may be a
// complete JSON object or the interior of one ("a":1,"b":2). A blank body
// is an empty patch. Anything else fails with domain.ErrMalformedPatch.
func ParsePatch(body []byte) (*domain.Fields, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return domain.NewFields(), nil
	}

	doc := trimmed
	if !isObject(doc) {
		doc = make([]byte, 0, len(trimmed)+2)
		doc = append(doc, '{')
		doc = append(doc, trimmed...)
		doc = append(doc, '}')
		if !isObject(doc) {
			return nil, domain.ErrMalformedPatch
		}
	}

	return objectFields(doc)
}

// DecodeFields parses the stored form produced by EncodeFields.
func DecodeFields(data []byte) (*domain.Fields, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return domain.NewFields(), nil
	}
	if !isObject(trimmed) {
		return nil, fmt.Errorf("decode custom fields: %w", domain.ErrMalformedPatch)
	}
	return objectFields(trimmed)
}

// EncodeFields renders fields as a compact JSON object in insertion order.
func EncodeFields(f *domain.Fields) []byte {
	var b bytes.Buffer
	b.WriteByte('{')
	first := true
	f.Each(func(key string, value json.RawMessage) {
		if !first {
			b.WriteByte(',')
		}
		first = false
		writeKey(&b, key)
		b.WriteByte(':')
		b.Write(value)
	})
	b.WriteByte('}')
	return b.Bytes()
}

func isObject(doc []byte) bool {
	return gjson.ValidBytes(doc) && gjson.ParseBytes(doc).IsObject()
}

// objectFields walks a validated JSON object. Later duplicates overwrite
// earlier values but keep the first position.
func objectFields(doc []byte) (*domain.Fields, error) {
	fields := domain.NewFields()
	var walkErr error

	gjson.ParseBytes(doc).ForEach(func(key, value gjson.Result) bool {
		var compacted bytes.Buffer
		if err := json.Compact(&compacted, []byte(value.Raw)); err != nil {
			walkErr = fmt.Errorf("%w: field %q: %w", domain.ErrMalformedPatch, key.String(), err)
			return false
		}
		fields.Set(key.String(), compacted.Bytes())
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return fields, nil
}

// writeKey writes key as a JSON string without HTML escaping.
func writeKey(b *bytes.Buffer, key string) {
	enc := json.NewEncoder(b)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(key)
	// Encode appends a newline.
	b.Truncate(b.Len() - 1)
}
