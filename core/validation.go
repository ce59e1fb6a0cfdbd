// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"fmt"
	"strings"
)

// HasHostname reports whether the document carries a usable hostname: present,
// not null, and non-empty once surrounding whitespace is trimmed. Non-string
// values count by their string form, as keyword fields index them.
func HasHostname(doc Document) bool {
	v, ok := doc[FieldHostname]
	if !ok || v == nil {
		return false
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	return strings.TrimSpace(s) != ""
}

// IsUnknownProvider reports whether operating_system_provider is exactly the
// "Unknown" sentinel. The comparison is case-sensitive.
func IsUnknownProvider(doc Document) bool {
	s, ok := doc.String(FieldOSProvider)
	return ok && s == Unknown
}

// IsValid reports whether the document survives cleansing.
func IsValid(doc Document) bool {
	return HasHostname(doc) && !IsUnknownProvider(doc)
}

// DocumentID returns the identity a row is stored under: its hostname with
// surrounding whitespace removed. An empty result means the store assigns one.
func DocumentID(row Row) string {
	return strings.TrimSpace(row[FieldHostname])
}
