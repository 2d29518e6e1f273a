package utils

import "testing"

func TestMergeLabel(t *testing.T) {
	tests := []struct {
		name     string
		existing Label
		incoming Label
		want     Label
	}{
		{
			name:     "empty existing",
			existing: Label{},
			incoming: Label{Value: "content", Source: "recall"},
			want:     Label{Value: "content", Source: "recall"},
		},
		{
			name:     "empty incoming",
			existing: Label{Value: "content", Source: "recall"},
			incoming: Label{},
			want:     Label{Value: "content", Source: "recall"},
		},
		{
			name:     "accumulate",
			existing: Label{Value: "content", Source: "recall"},
			incoming: Label{Value: "collaborative", Source: "recall"},
			want:     Label{Value: "content|collaborative", Source: "recall"},
		},
		{
			name:     "missing source",
			existing: Label{Value: "a"},
			incoming: Label{Value: "b", Source: "rule"},
			want:     Label{Value: "a|b", Source: "rule"},
		},
		{
			name:     "no duplicate value",
			existing: Label{Value: "content|collaborative", Source: "recall"},
			incoming: Label{Value: "content", Source: "filter"},
			want:     Label{Value: "content|collaborative", Source: "recall,filter"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MergeLabel(tt.existing, tt.incoming); got != tt.want {
				t.Errorf("MergeLabel() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLabelValues(t *testing.T) {
	if got := (Label{}).Values(); got != nil {
		t.Errorf("empty label Values() = %v", got)
	}
	got := Label{Value: "content|collaborative"}.Values()
	if len(got) != 2 || got[0] != "content" || got[1] != "collaborative" {
		t.Errorf("Values() = %v", got)
	}
}
