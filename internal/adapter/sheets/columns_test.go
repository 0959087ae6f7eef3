package sheets

import "testing"

func TestColumnLetter(t *testing.T) {
	cases := map[int]string{
		0:  "A",
		1:  "B",
		13: "N",
		25: "Z",
		26: "AA",
	}
	for idx, want := range cases {
		if got := columnLetter(idx); got != want {
			t.Errorf("columnLetter(%d) = %q, want %q", idx, got, want)
		}
	}
}

func TestCellRange(t *testing.T) {
	got := cellRange("Worker", 5, ColStatus)
	want := "Worker!E5:E5"
	if got != want {
		t.Errorf("cellRange = %q, want %q", got, want)
	}
}

func TestRowRange(t *testing.T) {
	got := rowRange("Worker", 2)
	want := "Worker!A2:N2"
	if got != want {
		t.Errorf("rowRange = %q, want %q", got, want)
	}
}
