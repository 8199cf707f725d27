package cli

import (
	"reflect"
	"testing"
)

func TestExtractRepeatableBasic(t *testing.T) {
	args := []string{
		"in.exe", "out.exe",
		"--set-version", "CompanyName", "Example Co",
		"-icon", "app.ico",
		"--delete-version", "Comments",
		"--set-version", "ProductName", "Widget",
	}
	pairs, singles, rest, err := ExtractRepeatable(args, "set-version", "delete-version")
	if err != nil {
		t.Fatalf("ExtractRepeatable() error = %v", err)
	}

	wantPairs := []VersionPair{
		{Name: "CompanyName", Value: "Example Co"},
		{Name: "ProductName", Value: "Widget"},
	}
	if !reflect.DeepEqual(pairs, wantPairs) {
		t.Errorf("pairs = %+v, want %+v", pairs, wantPairs)
	}

	wantSingles := []string{"Comments"}
	if !reflect.DeepEqual(singles, wantSingles) {
		t.Errorf("singles = %+v, want %+v", singles, wantSingles)
	}

	wantRest := []string{"in.exe", "out.exe", "-icon", "app.ico"}
	if !reflect.DeepEqual(rest, wantRest) {
		t.Errorf("rest = %+v, want %+v", rest, wantRest)
	}
}

func TestExtractRepeatableAcceptsSingleAndDoubleDash(t *testing.T) {
	args := []string{"-set-version", "A", "1", "--set-version", "B", "2"}
	pairs, _, _, err := ExtractRepeatable(args, "set-version", "delete-version")
	if err != nil {
		t.Fatalf("ExtractRepeatable() error = %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("len(pairs) = %d, want 2", len(pairs))
	}
}

func TestExtractRepeatableErrorsOnMissingPairArgs(t *testing.T) {
	args := []string{"--set-version", "OnlyName"}
	if _, _, _, err := ExtractRepeatable(args, "set-version", "delete-version"); err == nil {
		t.Error("expected an error when --set-version is missing its VALUE argument")
	}
}

func TestExtractRepeatableErrorsOnMissingSingleArg(t *testing.T) {
	args := []string{"--delete-version"}
	if _, _, _, err := ExtractRepeatable(args, "set-version", "delete-version"); err == nil {
		t.Error("expected an error when --delete-version is missing its NAME argument")
	}
}

func TestExtractRepeatableNoMatches(t *testing.T) {
	args := []string{"in.exe", "out.exe", "-console"}
	pairs, singles, rest, err := ExtractRepeatable(args, "set-version", "delete-version")
	if err != nil {
		t.Fatalf("ExtractRepeatable() error = %v", err)
	}
	if len(pairs) != 0 || len(singles) != 0 {
		t.Errorf("expected no pairs/singles, got pairs=%v singles=%v", pairs, singles)
	}
	if !reflect.DeepEqual(rest, args) {
		t.Errorf("rest = %v, want unchanged %v", rest, args)
	}
}
