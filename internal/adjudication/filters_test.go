package adjudication

import "testing"

func TestParseFlags(t *testing.T) {
	tests := []struct {
		raw        string
		wantActive bool
		wantString string
	}{
		{"", false, ""},
		{"everything", false, ""},
		{"no_flags", true, "no_flags"},
		{"no_flags,issue", true, "no_flags"},
		{"quality, issue", true, "issue,quality"},
		{"issue,issue", true, "issue"},
		{"Issue", false, ""},
		{"discussion,everything,no_flags", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			f := ParseFlags(tt.raw)
			if f.Active() != tt.wantActive {
				t.Errorf("Active() = %v, want %v", f.Active(), tt.wantActive)
			}
			if f.String() != tt.wantString {
				t.Errorf("String() = %q, want %q", f.String(), tt.wantString)
			}
		})
	}
}

func TestCompileSearch(t *testing.T) {
	tests := []struct {
		term string
		text string
		want bool
	}{
		{"ada", "Ada Lovelace", true},
		{"ADA", "the ada language", true},
		{"ada", "Adaptive", false},
		{"ada", "ada", true},
		{"ada", "(ada)", true},
		{"ada", "ada_lovelace", false},
		{"c++", "written in c++ mostly", true},
		{"a.b", "axb", false},
		{"a.b", "see a.b here", true},
		{"two words", "Two Words here", true},
		{"café", "un café noir", true},
		{"CAFÉ", "un café noir", true},
		{"caf", "un café noir", false},
		{"naïve", "a naïveté", false},
		{"über", "das Über-Ich", true},
		{"straße", "die Straßenbahn", false},
		{"日本", "東京 日本 大阪", true},
		{"ändern", "verändern", false},
	}
	for _, tt := range tests {
		re, err := CompileSearch(tt.term)
		if err != nil {
			t.Fatalf("CompileSearch(%q) error = %v", tt.term, err)
		}
		if got := re.MatchString(tt.text); got != tt.want {
			t.Errorf("CompileSearch(%q).MatchString(%q) = %v, want %v", tt.term, tt.text, got, tt.want)
		}
	}

	re, err := CompileSearch("   ")
	if err != nil || re != nil {
		t.Errorf("CompileSearch(blank) = %v, %v; want nil, nil", re, err)
	}
}
