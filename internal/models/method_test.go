package models

import (
	"reflect"
	"testing"
)

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    Method
		wantErr bool
	}{
		{"api", MethodAPI, false},
		{"web", MethodWeb, false},
		{"webform", MethodWeb, false}, // legacy alias
		{"email", MethodEmail, false},
		{"phone", MethodPhone, false},
		{"fax", "", true},
		{"", "", true},
		{"WEB", "", true}, // case sensitive by design of the registry format
	}
	for _, tt := range tests {
		got, err := ParseMethod(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseMethod(%q) expected error, got %q", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMethod(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMethod(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAllMethods_PriorityOrder(t *testing.T) {
	want := []Method{MethodAPI, MethodWeb, MethodEmail, MethodPhone}
	if got := AllMethods(); !reflect.DeepEqual(got, want) {
		t.Errorf("AllMethods() = %v, want %v", got, want)
	}
}

func TestDistrict_HasMethod(t *testing.T) {
	d := &District{Methods: []string{"webform", "phone"}}

	if !d.HasMethod(MethodWeb) {
		t.Error("HasMethod(web) = false for a district listing webform")
	}
	if !d.HasMethod(MethodPhone) {
		t.Error("HasMethod(phone) = false")
	}
	if d.HasMethod(MethodAPI) {
		t.Error("HasMethod(api) = true for a district without api")
	}
}

func TestDistrict_MethodList_SkipsUnknown(t *testing.T) {
	d := &District{Methods: []string{"web", "carrier-pigeon", "phone"}}
	got := d.MethodList()
	want := []Method{MethodWeb, MethodPhone}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MethodList() = %v, want %v", got, want)
	}
}
