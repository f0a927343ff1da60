package predicate

import (
	"errors"
	"testing"
)

func TestParseComparison(t *testing.T) {
	p, err := Parse("score > 600")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Field != "score" || p.Op != OpGT || p.Value != 600 {
		t.Fatalf("unexpected predicate: %+v", p)
	}
}

func TestParseFlag(t *testing.T) {
	p, err := Parse("income_verified")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !p.Flag || p.Field != "income_verified" {
		t.Fatalf("unexpected predicate: %+v", p)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, text := range []string{"", "score >", "score ~ 600", "dti < abc", "a b c d", "score"} {
		if _, err := Parse(text); !errors.Is(err, ErrInvalidPredicate) {
			t.Fatalf("expected ErrInvalidPredicate for %q, got %v", text, err)
		}
	}
}

func TestEvalScoreBoundaries(t *testing.T) {
	gt, _ := Parse("score > 600")
	ge, _ := Parse("score >= 600")

	if gt.Eval(600, nil) {
		t.Fatal("score > 600 must be false at exactly 600")
	}
	if !gt.Eval(601, nil) {
		t.Fatal("score > 600 must be true at 601")
	}
	if !ge.Eval(600, nil) {
		t.Fatal("score >= 600 must be true at exactly 600")
	}
}

func TestEvalAttributes(t *testing.T) {
	dti, _ := Parse("dti < 0.40")
	attrs := map[string]string{"dti": "0.32"}
	if !dti.Eval(0, attrs) {
		t.Fatal("dti 0.32 satisfies dti < 0.40")
	}
	attrs["dti"] = "0.45"
	if dti.Eval(0, attrs) {
		t.Fatal("dti 0.45 fails dti < 0.40")
	}
}

func TestEvalMissingAttributeUnsatisfied(t *testing.T) {
	dti, _ := Parse("dti < 0.40")
	if dti.Eval(0, map[string]string{}) {
		t.Fatal("missing attribute must evaluate unsatisfied")
	}

	flag, _ := Parse("income_verified")
	if flag.Eval(0, map[string]string{}) {
		t.Fatal("missing flag must evaluate unsatisfied")
	}
	if !flag.Eval(0, map[string]string{"income_verified": "true"}) {
		t.Fatal("set flag must evaluate satisfied")
	}
}
