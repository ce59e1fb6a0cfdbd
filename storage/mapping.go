package storage

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/assetpipe/core"
)

// FieldType is the declared type of a mapped field.
type FieldType string

const (
	FieldTypeKeyword FieldType = "keyword"
	FieldTypeDate    FieldType = "date"
	FieldTypeInteger FieldType = "integer"
)

// Dynamic controls how fields absent from the mapping are handled.
type Dynamic string

const (
	// DynamicTrue accepts unlisted fields as they are.
	DynamicTrue Dynamic = "true"
	// DynamicStrict rejects documents carrying unlisted fields.
	DynamicStrict Dynamic = "strict"
)

// FieldMapping declares the type of a single field.
type FieldMapping struct {
	Type FieldType `json:"type" yaml:"type"`
	// Format lists accepted date formats separated by "||".
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
	// IgnoreMalformed keeps values that do not parse instead of rejecting the document.
	IgnoreMalformed bool `json:"ignore_malformed,omitempty" yaml:"ignore_malformed,omitempty"`
}

// Mapping is the schema of a collection.
type Mapping struct {
	Properties map[string]FieldMapping `json:"properties" yaml:"properties"`
	Dynamic    Dynamic                 `json:"dynamic" yaml:"dynamic"`
}

// Settings are storage parameters only self-managed deployments accept.
type Settings struct {
	NumberOfShards   int `json:"number_of_shards" yaml:"number_of_shards"`
	NumberOfReplicas int `json:"number_of_replicas" yaml:"number_of_replicas"`
}

// DefaultDateFormat accepts calendar dates, ISO-8601 timestamps and epoch milliseconds.
const DefaultDateFormat = "yyyy-MM-dd||strict_date_optional_time||epoch_millis"

// Check validates a document against the mapping. Document values are never
// rewritten; a field that fails its declared type yields a *MappingError.
func (m Mapping) Check(doc core.Document) error {
	for field, value := range doc {
		fm, ok := m.Properties[field]
		if !ok {
			if m.Dynamic == DynamicStrict {
				return &MappingError{Field: field, Reason: "dynamic field not allowed"}
			}
			continue
		}
		if value == nil {
			continue
		}
		if err := fm.check(field, value); err != nil {
			return err
		}
	}
	return nil
}

// Coerce rewrites integer-mapped values held as integral strings or floats to
// int64. Call it after Check has accepted the document.
func (m Mapping) Coerce(doc core.Document) {
	for field, value := range doc {
		if fm, ok := m.Properties[field]; ok && fm.Type == FieldTypeInteger {
			if i, ok := toInteger(value); ok {
				doc[field] = i
			}
		}
	}
}

func (fm FieldMapping) check(field string, value any) error {
	switch fm.Type {
	case FieldTypeKeyword:
		switch value.(type) {
		case string, int64, float64, bool:
			return nil
		}
		return &MappingError{Field: field, Type: fm.Type, Reason: fmt.Sprintf("unsupported value %T", value)}
	case FieldTypeInteger:
		if isInteger(value) {
			return nil
		}
		return &MappingError{Field: field, Type: fm.Type, Reason: fmt.Sprintf("cannot coerce %v", value)}
	case FieldTypeDate:
		if fm.IgnoreMalformed || isDate(value, fm.Format) {
			return nil
		}
		return &MappingError{Field: field, Type: fm.Type, Reason: fmt.Sprintf("failed to parse date %v", value)}
	default:
		return &MappingError{Field: field, Type: fm.Type, Reason: "unknown field type"}
	}
}

func isInteger(value any) bool {
	_, ok := toInteger(value)
	return ok
}

func toInteger(value any) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, v >= math.MinInt32 && v <= math.MaxInt32
	case float64:
		return int64(v), v == math.Trunc(v) && v >= math.MinInt32 && v <= math.MaxInt32
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 32)
		return i, err == nil
	default:
		return 0, false
	}
}

var optionalTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15",
	"2006-01-02",
	"2006-01",
	"2006",
}

func isDate(value any, format string) bool {
	if format == "" {
		format = DefaultDateFormat
	}
	for _, f := range strings.Split(format, "||") {
		if matchesDateFormat(value, f) {
			return true
		}
	}
	return false
}

func matchesDateFormat(value any, format string) bool {
	switch format {
	case "epoch_millis":
		switch v := value.(type) {
		case int64:
			return true
		case float64:
			return v == math.Trunc(v)
		case string:
			_, err := strconv.ParseInt(v, 10, 64)
			return err == nil
		}
		return false
	case "strict_date_optional_time":
		s, ok := value.(string)
		if !ok {
			return false
		}
		for _, layout := range optionalTimeLayouts {
			if _, err := time.Parse(layout, s); err == nil {
				return true
			}
		}
		return false
	case "yyyy-MM-dd":
		s, ok := value.(string)
		if !ok {
			return false
		}
		_, err := time.Parse("2006-01-02", s)
		return err == nil
	default:
		return false
	}
}
