package partitioner

import (
	"testing"
)

func TestSplit(t *testing.T) {
	ranges, err := Split(10, 4)
	if err != nil {
		t.Fatal(err)
	}

	expected := []Range{{0, 4}, {4, 8}, {8, 10}}
	if len(ranges) != len(expected) {
		t.Fatalf("got %d ranges, expected %d", len(ranges), len(expected))
	}
	for i := range expected {
		if ranges[i] != expected[i] {
			t.Fatalf("range %d: got %+v, expected %+v", i, ranges[i], expected[i])
		}
	}

	ranges, err = Split(0, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(ranges) != 0 {
		t.Fatal("expected no ranges for an empty table")
	}

	_, err = Split(10, 0)
	if err != ErrInvalidSize {
		t.Fatal("did not get invalid size")
	}
}

func TestOutputFileName(t *testing.T) {
	if n := OutputFileName("0", ".parquet", 0, 1); n != "0.parquet" {
		t.Fatal("mismatched single chunk name", n)
	}
	if n := OutputFileName("0", ".parquet", 2, 3); n != "0_2.parquet" {
		t.Fatal("mismatched chunk name", n)
	}
}

func TestGetPartitionPlan(t *testing.T) {
	plan, err := GetPartitionPlan("data", ".parquet", 25, 10, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Files) != 3 {
		t.Fatalf("got %d files", len(plan.Files))
	}

	covered := 0
	for i, f := range plan.Files {
		if f.Rows.Start != covered {
			t.Fatalf("file %d starts at %d, expected %d", i, f.Rows.Start, covered)
		}
		inFile := 0
		for _, p := range f.Partitions {
			if p.Start != inFile || p.Len() > 4 || p.Len() == 0 {
				t.Fatalf("bad partition %+v in file %d", p, i)
			}
			inFile = p.End
		}
		if inFile != f.Rows.Len() {
			t.Fatalf("partitions of file %d cover %d of %d rows", i, inFile, f.Rows.Len())
		}
		covered = f.Rows.End
	}
	if covered != 25 {
		t.Fatalf("plan covers %d rows", covered)
	}
	if plan.Files[2].Name != "data_2.parquet" || len(plan.Files[2].Partitions) != 2 {
		t.Fatalf("unexpected last file %+v", plan.Files[2])
	}
}
