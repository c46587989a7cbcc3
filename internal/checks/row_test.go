package checks

import "testing"

func TestRowLookup(t *testing.T) {
	t.Parallel()

	row := Row{
		"resourceId": "vol-1",
		"configuration": map[string]any{
			"encrypted": false,
			"size":      float64(100),
			"attachments": []any{
				map[string]any{"instanceId": "i-1"},
			},
			"nested": Row{"flag": "TRUE"},
		},
	}

	if got := row.Text("resourceId"); got != "vol-1" {
		t.Fatalf("Text(resourceId) = %q, want vol-1", got)
	}
	if got := row.Text("configuration.size"); got != "100" {
		t.Fatalf("Text(configuration.size) = %q, want 100", got)
	}
	if got := row.Text("configuration.missing"); got != "" {
		t.Fatalf("Text(missing) = %q, want empty", got)
	}
	if row.Bool("configuration.encrypted") {
		t.Fatalf("Bool(configuration.encrypted) = true, want false")
	}
	if !row.Bool("configuration.nested.flag") {
		t.Fatalf("Bool(configuration.nested.flag) = false, want true")
	}
	if got := row.Len("configuration.attachments"); got != 1 {
		t.Fatalf("Len(configuration.attachments) = %d, want 1", got)
	}
	if _, ok := row.Lookup("resourceId.deeper"); ok {
		t.Fatalf("Lookup() through a scalar = found, want missing")
	}
}
