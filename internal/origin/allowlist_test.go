package origin

import (
	"reflect"
	"testing"
)

func TestParseAllowlist(t *testing.T) {
	tests := []struct {
		name         string
		in           string
		want         []string
		wantRejected int
	}{
		{
			name: "simple",
			in:   "https://a.example\nhttps://b.example\n",
			want: []string{"https://a.example", "https://b.example"},
		},
		{
			name: "trailing slash stripped",
			in:   "https://a.example/\n",
			want: []string{"https://a.example"},
		},
		{
			name: "blank lines and whitespace dropped",
			in:   "\n  https://a.example  \n\n\t\n",
			want: []string{"https://a.example"},
		},
		{
			name: "duplicates collapse",
			in:   "https://a.example\nhttps://a.example/\nhttps://a.example",
			want: []string{"https://a.example"},
		},
		{
			name: "port preserved",
			in:   "http://localhost:4321\n",
			want: []string{"http://localhost:4321"},
		},
		{
			name:         "bare host rejected",
			in:           "a.example\n",
			want:         nil,
			wantRejected: 1,
		},
		{
			name:         "path rejected",
			in:           "https://a.example/embed\n",
			want:         nil,
			wantRejected: 1,
		},
		{
			name:         "non-http scheme rejected",
			in:           "ftp://a.example\n",
			want:         nil,
			wantRejected: 1,
		},
		{
			name:         "mixed keeps order",
			in:           "https://b.example\nnot a url\nhttps://a.example\n",
			want:         []string{"https://b.example", "https://a.example"},
			wantRejected: 1,
		},
		{
			name: "empty input",
			in:   "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, rejected := ParseAllowlist(tt.in)
			got := a.Origins()
			if len(got) == 0 {
				got = nil
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("origins = %v, want %v", got, tt.want)
			}
			if len(rejected) != tt.wantRejected {
				t.Errorf("rejected = %v, want %d entries", rejected, tt.wantRejected)
			}
		})
	}
}

func TestAllows_ExactMatchOnly(t *testing.T) {
	a, _ := ParseAllowlist("https://a.example\n")

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://a.example", true},
		{"https://a.example.evil", false}, // no prefix matching
		{"https://sub.a.example", false},
		{"http://a.example", false}, // scheme matters
		{"https://A.example", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			if got := a.Allows(tt.origin); got != tt.want {
				t.Errorf("Allows(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestAllows_PreNormalizedTrailingSlash(t *testing.T) {
	// a list stored with a trailing slash is normalized on parse,
	// so the browser-form origin (no slash) still matches
	a, _ := ParseAllowlist("https://a.example/\n")
	if !a.Allows("https://a.example") {
		t.Error("normalized entry should match browser-form origin")
	}
}

func TestString_CanonicalForm(t *testing.T) {
	a, _ := ParseAllowlist("  https://a.example/ \n\nhttps://b.example\n")
	want := "https://a.example\nhttps://b.example\n"
	if got := a.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	empty, _ := ParseAllowlist("")
	if empty.String() != "" {
		t.Errorf("empty list String() = %q, want empty", empty.String())
	}
}
