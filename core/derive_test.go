package core

import "testing"

func intPtr(v int) *int { return &v }

func TestDeriveRiskLevel(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
		want RiskLevel
	}{
		{name: "EOL is high", doc: Document{FieldLifecycleStatus: "EOL"}, want: RiskHigh},
		{name: "EOS is high", doc: Document{FieldLifecycleStatus: "EOS"}, want: RiskHigh},
		{name: "lowercase eol is high", doc: Document{FieldLifecycleStatus: "eol"}, want: RiskHigh},
		{name: "mixed case Eos is high", doc: Document{FieldLifecycleStatus: "Eos"}, want: RiskHigh},
		{name: "active is low", doc: Document{FieldLifecycleStatus: "Active"}, want: RiskLow},
		{name: "missing status is low", doc: Document{}, want: RiskLow},
		{name: "null status is low", doc: Document{FieldLifecycleStatus: nil}, want: RiskLow},
		{name: "padded status is low", doc: Document{FieldLifecycleStatus: " EOL "}, want: RiskLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Derive(tt.doc, 2024).RiskLevel
			if got != tt.want {
				t.Errorf("Derive().RiskLevel = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeriveSystemAge(t *testing.T) {
	tests := []struct {
		name string
		date any
		omit bool
		want *int
	}{
		{name: "full date", date: "2015-06-01", want: intPtr(9)},
		{name: "same year", date: "2024-12-31", want: intPtr(0)},
		{name: "future year clamps to zero", date: "2999-01-01", want: intPtr(0)},
		{name: "unknown sentinel", date: "Unknown", want: nil},
		{name: "unparseable year", date: "20xx-01-01", want: nil},
		{name: "too short", date: "201", want: nil},
		{name: "empty string", date: "", want: nil},
		{name: "null date", date: nil, want: nil},
		{name: "missing date", omit: true, want: nil},
		{name: "year only", date: "2010", want: intPtr(14)},
		{name: "timestamp form", date: "2020-03-04T10:00:00Z", want: intPtr(4)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Document{}
			if !tt.omit {
				doc[FieldInstallationDate] = tt.date
			}
			got := Derive(doc, 2024).SystemAgeYears
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("Derive().SystemAgeYears = %d, want nil", *got)
			case tt.want != nil && got == nil:
				t.Errorf("Derive().SystemAgeYears = nil, want %d", *tt.want)
			case tt.want != nil && *got != *tt.want:
				t.Errorf("Derive().SystemAgeYears = %d, want %d", *got, *tt.want)
			}
		})
	}
}

func TestDeriveIsIdempotent(t *testing.T) {
	doc := Document{
		FieldHostname:         "host-a",
		FieldLifecycleStatus:  "EOL",
		FieldInstallationDate: "2010-01-01",
	}

	Derive(doc, 2024).Apply(doc)
	first := doc.Clone()
	Derive(doc, 2024).Apply(doc)

	if doc[FieldRiskLevel] != first[FieldRiskLevel] {
		t.Errorf("risk_level changed on second pass: %v -> %v", first[FieldRiskLevel], doc[FieldRiskLevel])
	}
	if doc[FieldSystemAgeYears] != first[FieldSystemAgeYears] {
		t.Errorf("system_age_years changed on second pass: %v -> %v", first[FieldSystemAgeYears], doc[FieldSystemAgeYears])
	}
	if doc[FieldSystemAgeYears] != int64(14) {
		t.Errorf("system_age_years = %v, want 14", doc[FieldSystemAgeYears])
	}
}

func TestDerivedApplyNullAge(t *testing.T) {
	doc := Document{FieldSystemAgeYears: int64(3)}
	Derived{RiskLevel: RiskLow}.Apply(doc)

	v, ok := doc[FieldSystemAgeYears]
	if !ok {
		t.Fatal("system_age_years should be present as null")
	}
	if v != nil {
		t.Errorf("system_age_years = %v, want nil", v)
	}
	if doc[FieldRiskLevel] != "Low" {
		t.Errorf("risk_level = %v, want Low", doc[FieldRiskLevel])
	}
}
