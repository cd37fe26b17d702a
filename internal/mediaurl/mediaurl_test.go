package mediaurl

import "testing"

func TestImageURLs(t *testing.T) {
	if got := Image("https://namlong.edu.vn/", "blb_1"); got != "https://namlong.edu.vn/media/blb_1" {
		t.Fatalf("Image() = %q", got)
	}
	if got := Image("", "blb_1"); got != "/media/blb_1" {
		t.Fatalf("Image() without base = %q", got)
	}
	if got := ImagePreview("https://namlong.edu.vn", "blb_1"); got != "https://namlong.edu.vn/media/blb_1/preview" {
		t.Fatalf("ImagePreview() = %q", got)
	}
}

func TestParseImageID(t *testing.T) {
	tests := []struct {
		raw    string
		wantID string
		wantOK bool
	}{
		{raw: "https://namlong.edu.vn/media/blb_abc", wantID: "blb_abc", wantOK: true},
		{raw: "/media/blb_abc", wantID: "blb_abc", wantOK: true},
		{raw: "/media/blb_abc?download=1", wantID: "blb_abc", wantOK: true},
		{raw: "/media/blb_abc/preview", wantOK: false},
		{raw: "/media/blb_", wantOK: false},
		{raw: "/media/other", wantOK: false},
		{raw: "https://cdn.example.com/photo.png", wantOK: false},
		{raw: "   ", wantOK: false},
	}

	for _, tt := range tests {
		id, ok := ParseImageID(tt.raw)
		if ok != tt.wantOK || id != tt.wantID {
			t.Fatalf("ParseImageID(%q) = (%q, %v), want (%q, %v)", tt.raw, id, ok, tt.wantID, tt.wantOK)
		}
	}
}
