package provision

import (
	"github.com/poiesic/assetpipe/core"
	"github.com/poiesic/assetpipe/storage"
)

// DefaultSchema returns the mapping of asset collections. Installation dates
// keep malformed values such as "Unknown" instead of rejecting the record.
func DefaultSchema() storage.Mapping {
	keyword := storage.FieldMapping{Type: storage.FieldTypeKeyword}
	return storage.Mapping{
		Dynamic: storage.DynamicTrue,
		Properties: map[string]storage.FieldMapping{
			core.FieldHostname:         keyword,
			core.FieldCountry:          keyword,
			core.FieldOS:               keyword,
			core.FieldOSProvider:       keyword,
			core.FieldLifecycleStatus:  keyword,
			core.FieldRiskLevel:        keyword,
			core.FieldSystemAgeYears:   {Type: storage.FieldTypeInteger},
			core.FieldInstallationDate: {
				Type:            storage.FieldTypeDate,
				Format:          storage.DefaultDateFormat,
				IgnoreMalformed: true,
			},
		},
	}
}
