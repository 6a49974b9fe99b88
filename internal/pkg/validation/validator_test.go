package validation

import (
	"errors"
	"testing"
)

type sample struct {
	Name  string `json:"name" validate:"required"`
	Limit int    `json:"limit" validate:"gte=1,lte=10"`
}

func TestStruct_ReportsJSONFieldNames(t *testing.T) {
	err := Struct(sample{Limit: 20})

	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if len(verr.Fields) != 2 {
		t.Fatalf("expected 2 field errors, got %+v", verr.Fields)
	}
	if verr.Fields[0].Field != "name" || verr.Fields[0].Tag != "required" {
		t.Fatalf("unexpected first field error: %+v", verr.Fields[0])
	}
	if verr.Fields[1].Field != "limit" || verr.Fields[1].Param != "10" {
		t.Fatalf("unexpected second field error: %+v", verr.Fields[1])
	}
}

func TestStruct_Valid(t *testing.T) {
	if err := Struct(sample{Name: "x", Limit: 5}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}
