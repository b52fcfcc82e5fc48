package transform

import (
	"reflect"
	"testing"

	"github.com/cubicler/cubicler/pkg/config"
)

func TestApply_RemoveNestedField(t *testing.T) {
	data := map[string]any{"user": map[string]any{"name": "a", "secret": "x"}}
	out, err := Apply(data, []config.ResponseTransform{{Path: "user.secret", Transform: "remove"}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	user := out.(map[string]any)["user"].(map[string]any)
	if _, ok := user["secret"]; ok {
		t.Error("expected secret removed")
	}
	if user["name"] != "a" {
		t.Error("expected name untouched")
	}
}

func TestApply_RemoveFromArrayElements(t *testing.T) {
	data := map[string]any{"items": []any{
		map[string]any{"id": float64(1), "internal": true},
		map[string]any{"id": float64(2), "internal": true},
	}}
	out, err := Apply(data, []config.ResponseTransform{{Path: "items[].internal", Transform: "remove"}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	items := out.(map[string]any)["items"].([]any)
	for _, item := range items {
		if _, ok := item.(map[string]any)["internal"]; ok {
			t.Error("expected internal removed from every element")
		}
	}
}

func TestApply_RootArray(t *testing.T) {
	data := []any{
		map[string]any{"status": "ok"},
		map[string]any{"status": "fail"},
	}
	out, err := Apply(data, []config.ResponseTransform{{
		Path: "_root[].status", Transform: "map",
		Map: map[string]string{"ok": "success", "fail": "failure"},
	}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	arr := out.([]any)
	if arr[0].(map[string]any)["status"] != "success" || arr[1].(map[string]any)["status"] != "failure" {
		t.Errorf("unexpected result: %+v", arr)
	}
}

func TestApply_DateFormat(t *testing.T) {
	data := map[string]any{"createdAt": "2024-03-15T10:30:00Z"}
	out, err := Apply(data, []config.ResponseTransform{{
		Path: "createdAt", Transform: "date_format", Format: "YYYY/MM/DD",
	}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.(map[string]any)["createdAt"] != "2024/03/15" {
		t.Errorf("unexpected date: %v", out.(map[string]any)["createdAt"])
	}
}

func TestApply_Template(t *testing.T) {
	data := map[string]any{"temp": 72}
	out, err := Apply(data, []config.ResponseTransform{{
		Path: "temp", Transform: "template", Template: "{value}F",
	}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.(map[string]any)["temp"] != "72F" {
		t.Errorf("unexpected template result: %v", out.(map[string]any)["temp"])
	}
}

func TestApply_RegexReplace(t *testing.T) {
	data := map[string]any{"phone": "555-123-4567"}
	out, err := Apply(data, []config.ResponseTransform{{
		Path: "phone", Transform: "regex_replace", Pattern: `-`, Replacement: "",
	}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.(map[string]any)["phone"] != "5551234567" {
		t.Errorf("unexpected regex result: %v", out.(map[string]any)["phone"])
	}
}

func TestApply_PipelineInOrderAndDoesNotMutateOriginal(t *testing.T) {
	original := map[string]any{"status": "ok", "note": "keep"}
	out, err := Apply(original, []config.ResponseTransform{
		{Path: "status", Transform: "map", Map: map[string]string{"ok": "success"}},
		{Path: "note", Transform: "remove"},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := map[string]any{"status": "success"}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("expected %+v, got %+v", want, out)
	}
	if original["status"] != "ok" || original["note"] != "keep" {
		t.Errorf("expected original untouched, got %+v", original)
	}
}
