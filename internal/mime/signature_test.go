package mime

import (
	"strings"
	"testing"
)

func TestCleanSignatureHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "empty",
			input: "",
			want:  "",
		},
		{
			name:  "invisible span removed",
			input: `before<span style="display:none">tracker</span>after`,
			want:  "beforeafter",
		},
		{
			name:  "text div flattened",
			input: `<div>営業担当</div>x`,
			want:  "営業担当<br>x",
		},
		{
			name:  "empty div dropped",
			input: `a<div>   </div>b`,
			want:  "ab",
		},
		{
			name:  "div ending in break gains no second one",
			input: `<div>営業担当<br></div>x`,
			want:  "営業担当<br>x",
		},
		{
			name:  "img without src dropped",
			input: `x<img width="10">y`,
			want:  "xy",
		},
		{
			name:  "img keeps https src",
			input: `<img onerror="alert(1)" src="https://example.com/sig.png">`,
			want:  `<img src="https://example.com/sig.png" alt="Signature" style="max-width: 400px; height: auto;">`,
		},
		{
			name:  "anchor without href unwrapped",
			input: `<a class="x">GITS</a>`,
			want:  "GITS",
		},
		{
			name:  "anchor keeps href and target",
			input: `<a href="https://gits.com.vn/ja/" rel="nofollow" target="_blank">site</a>`,
			want:  `<a href="https://gits.com.vn/ja/" target="_blank">site</a>`,
		},
		{
			name:  "break runs collapsed and trimmed",
			input: `<br><br>a<br><br><br><br>b<br>`,
			want:  "a<br><br>b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := CleanSignatureHTML(tt.input); got != tt.want {
				t.Fatalf("CleanSignatureHTML() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCleanSignatureHTMLRealWorldShape(t *testing.T) {
	t.Parallel()

	sig := `<br>---<br>田中 太郎<br><b>営業担当者</b><br>` +
		`<a href="mailto:taro@example.com" target="_blank">taro@example.com</a>` +
		`<div><img src="https://example.com/sig.png" data-x="y" src="https://example.com/sig.png"><br><div><br><br></div></div>`

	got := CleanSignatureHTML(sig)

	if strings.HasPrefix(got, "<br>") || strings.HasSuffix(got, "<br>") {
		t.Fatalf("leading/trailing breaks not trimmed: %q", got)
	}
	if strings.Count(got, "example.com/sig.png") != 1 {
		t.Fatalf("duplicate img src attributes not collapsed: %q", got)
	}
	if !strings.Contains(got, `<a href="mailto:taro@example.com" target="_blank">taro@example.com</a>`) {
		t.Fatalf("anchor not preserved: %q", got)
	}
}
