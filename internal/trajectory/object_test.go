package trajectory

import (
	"encoding/json"
	"slices"
	"testing"
)

func TestDecodeKeepsOrder(t *testing.T) {
	v, err := Decode([]byte(`{"z":1,"a":{"y":[1,"x",null],"b":true},"m":"<tag>","z":2}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	obj, ok := v.(*Object)
	if !ok {
		t.Fatalf("expected *Object, got %T", v)
	}
	if !slices.Equal(obj.Keys(), []string{"z", "a", "m"}) {
		t.Fatalf("keys %v", obj.Keys())
	}
	if z, _ := obj.Get("z"); z != json.Number("2") {
		t.Fatalf("duplicate key should keep the last value, got %v", z)
	}
	if got := Stringify(obj); got != `{"z":2,"a":{"y":[1,"x",null],"b":true},"m":"<tag>"}` {
		t.Fatalf("stringify %s", got)
	}
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	for _, in := range []string{`{"a":1} {"b":2}`, `{"a":`} {
		if _, err := Decode([]byte(in)); err == nil {
			t.Fatalf("Decode(%s) should fail", in)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"object", `{"a":1}`, `{"a":1}`},
		{"array", `[1,2]`, `[1,2]`},
		{"null", `null`, `{}`},
		{"empty", ``, `{}`},
		{"blank string", `"   "`, `{}`},
		{"string of json", `"{\"cascade_id\":\"X\"}"`, `{"cascade_id":"X"}`},
		{"plain string", `"cascade_id=X done"`, `cascade_id=X done`},
		{"number", `42`, `42`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Stringify(Normalize(json.RawMessage(tt.raw))); got != tt.want {
				t.Fatalf("Normalize(%s) = %s; want %s", tt.raw, got, tt.want)
			}
		})
	}
	v := Normalize(json.RawMessage(`"not {json"`))
	if _, isStr := v.(string); !isStr {
		t.Fatalf("unparseable text should stay a string, got %T", v)
	}
}
