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
	"strconv"
	"strings"
)

// Derive computes risk_level and system_age_years for a document.
//
// Rules:
//   - risk_level is High when the lifecycle status, lowercased, is "eol" or "eos";
//     otherwise (including a missing or null status) Low
//   - system_age_years is currentYear minus the year in the first four characters
//     of the installation date, clamped at zero
//   - a missing, null or "Unknown" installation date yields a nil age
//   - any fault while extracting the year yields a nil age; it is never returned
//
// Both fields are recomputed from source fields only, so Derive is idempotent.
func Derive(doc Document, currentYear int) Derived {
	return Derived{
		RiskLevel:      deriveRisk(doc),
		SystemAgeYears: deriveAge(doc, currentYear),
	}
}

func deriveRisk(doc Document) RiskLevel {
	v, ok := doc[FieldLifecycleStatus]
	if !ok || v == nil {
		return RiskLow
	}
	switch strings.ToLower(fmt.Sprint(v)) {
	case "eol", "eos":
		return RiskHigh
	default:
		return RiskLow
	}
}

func deriveAge(doc Document, currentYear int) (age *int) {
	v, ok := doc[FieldInstallationDate]
	if !ok || v == nil {
		return nil
	}
	// Extraction faults of any kind collapse to an unknown age.
	defer func() {
		if recover() != nil {
			age = nil
		}
	}()

	raw := fmt.Sprint(v)
	if raw == Unknown {
		return nil
	}
	year, err := installationYear(raw)
	if err != nil {
		return nil
	}
	years := max(currentYear-year, 0)
	return &years
}

// installationYear parses the leading four characters of a date as a year.
func installationYear(raw string) (int, error) {
	if len(raw) < 4 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidInstallationDate, raw)
	}
	year, err := strconv.Atoi(raw[:4])
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidInstallationDate, err)
	}
	return year, nil
}
