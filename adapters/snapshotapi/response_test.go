package snapshotapi

import "testing"

func TestDownload_Disposition(t *testing.T) {
	cases := []struct {
		name string
		file Download
		want string
	}{
		{"plain", Download{Filename: "flyer-letter.pdf"}, `attachment; filename="flyer-letter.pdf"`},
		{"unsafe", Download{Filename: `../"flyer".png`}, `attachment; filename=".._flyer.png"`},
		{"empty", Download{}, `attachment; filename="snapshot"`},
		{"unicode", Download{Filename: "café.png"}, `attachment; filename*=utf-8''caf%C3%A9.png`},
	}
	for _, tc := range cases {
		if got := tc.file.Disposition(); got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}

func TestDownload_MediaType(t *testing.T) {
	if (Download{}).MediaType() != "application/octet-stream" {
		t.Fatalf("expected binary default")
	}
	if (Download{ContentType: "application/pdf"}).MediaType() != "application/pdf" {
		t.Fatalf("expected explicit content type")
	}
}
