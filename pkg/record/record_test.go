package record

import "testing"

func TestPeriodFromNumber(t *testing.T) {
	cases := map[string]string{
		"1-2-6801234":       "68",
		"10-1-6712345":      "67",
		" 12/34/6900001 ":   "69",
		"1-2":               "",
		"abc":               "",
		"":                  "",
		"1-2-6":             "",
		"13-1-6850012345-1": "68",
	}
	for in, want := range cases {
		if got := PeriodFromNumber(in); got != want {
			t.Fatalf("PeriodFromNumber(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInAllowedPeriods(t *testing.T) {
	allow := []string{"68"}
	if !InAllowedPeriods("1-2-6801234", allow) {
		t.Fatalf("expected 1-2-6801234 to be accepted")
	}
	if InAllowedPeriods("1-2-6701234", allow) {
		t.Fatalf("expected 1-2-6701234 to be rejected")
	}
	if InAllowedPeriods("1-2", allow) {
		t.Fatalf("expected malformed number to be rejected")
	}
	if !InAllowedPeriods("1-2-6701234", []string{"68", "67"}) {
		t.Fatalf("expected second period to match")
	}
}

func TestNumberFromText(t *testing.T) {
	got := NumberFromText("ดูข้อมูล 10-1-6812345 บริษัท เอ จำกัด")
	if got != "10-1-6812345" {
		t.Fatalf("unexpected number %q", got)
	}
	if got := NumberFromText("no identifier here"); got != "" {
		t.Fatalf("expected empty number, got %q", got)
	}
}

func TestColumnForAcceptsBothSpellings(t *testing.T) {
	for _, h := range []string{"operator_name", "ชื่อผู้ประกอบการ", " ชื่อผู้ประกอบการ "} {
		col, ok := ColumnFor(h)
		if !ok || col != ColOperatorName {
			t.Fatalf("ColumnFor(%q) = %q, %v", h, col, ok)
		}
	}
	if _, ok := ColumnFor("unknown"); ok {
		t.Fatalf("expected unknown header to be rejected")
	}
}

func TestValuesFollowColumns(t *testing.T) {
	r := NotificationRecord{Number: "1-1-68001", OperatorName: "Acme Co"}
	vals := r.Values()
	if len(vals) != len(Columns) {
		t.Fatalf("expected %d values, got %d", len(Columns), len(vals))
	}
	if vals[2] != "1-1-68001" || vals[8] != "Acme Co" {
		t.Fatalf("values out of order: %v", vals)
	}
	var back NotificationRecord
	for i, c := range Columns {
		back.Set(c, vals[i])
	}
	if back != r {
		t.Fatalf("Set/Get mismatch: %#v", back)
	}
}
