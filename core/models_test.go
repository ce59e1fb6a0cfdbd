package core

import "testing"

func TestHashID(t *testing.T) {
	if HashID("host-a") != HashID("host-a") {
		t.Error("HashID() produced different values for the same identifier")
	}
	if HashID("host-a") == HashID("host-b") {
		t.Error("HashID() collided for distinct identifiers")
	}
}

func TestRowDocumentPreservesColumns(t *testing.T) {
	row := Row{FieldHostname: "host-a", "rack": "r12", FieldCountry: "NL"}
	doc := row.Document()

	if len(doc) != len(row) {
		t.Fatalf("Document() has %d fields, want %d", len(doc), len(row))
	}
	for k, v := range row {
		if doc[k] != v {
			t.Errorf("field %q = %v, want %q", k, doc[k], v)
		}
	}
}

func TestDocumentClone(t *testing.T) {
	doc := Document{FieldHostname: "host-a"}
	clone := doc.Clone()
	clone[FieldHostname] = "host-b"

	if doc[FieldHostname] != "host-a" {
		t.Error("Clone() shares storage with the original")
	}
	if Document(nil).Clone() != nil {
		t.Error("Clone() of nil should be nil")
	}
}
