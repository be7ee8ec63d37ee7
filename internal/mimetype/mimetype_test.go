package mimetype

import "testing"

func TestTypeFor(t *testing.T) {
	r := New(map[string]string{".foo": "application/x-foo", "CSS": "text/x-css"}, ".class", nil)

	testCases := []struct {
		name   string
		want   string
		wantOK bool
	}{
		{"help/about.htm", "text/html", true},
		{"help/ABOUT.HTM", "text/html", true},
		{"style.css", "text/x-css", true},
		{"data.foo", "application/x-foo", true},
		{"page.shtm", ServerParsed, true},
		{"README", "", false},
		{"archive.unknown", "", false},
	}
	for _, tc := range testCases {
		got, ok := r.TypeFor(tc.name)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("TypeFor(%q) = %q, %v; want %q, %v", tc.name, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestIsHandler(t *testing.T) {
	r := New(nil, ".class", []string{"Templates/", "/applets"})

	testCases := []struct {
		path string
		want bool
	}{
		{"reports/Summary.class", true},
		{"Summary.CLASS", true},
		{"Templates/Widget.class", false},
		{"help/Templates/Widget.class", false},
		{"applets/Chart.class", false},
		{"reports/summary.htm", false},
	}
	for _, tc := range testCases {
		if got := r.IsHandler(tc.path); got != tc.want {
			t.Errorf("IsHandler(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestClassify(t *testing.T) {
	r := New(nil, ".class", []string{"Templates/"})

	if c := r.Classify("x/Run.class", nil); !c.Executable || c.ContentType != HandlerType {
		t.Errorf("expected executable handler, got %+v", c)
	}
	if c := r.Classify("Templates/Run.class", nil); c.Executable || c.ContentType != Binary {
		t.Errorf("expected binary asset, got %+v", c)
	}
	if c := r.Classify("notes", []byte("plain words\r\n\tindented")); c.ContentType != Text {
		t.Errorf("expected text, got %+v", c)
	}
	if c := r.Classify("blob", []byte{'a', 0x00, 'b'}); c.ContentType != Binary {
		t.Errorf("expected binary, got %+v", c)
	}
}

func TestSniff(t *testing.T) {
	testCases := []struct {
		name string
		in   []byte
		want string
	}{
		{"empty", nil, Text},
		{"ascii", []byte("hello"), Text},
		{"whitespace", []byte("a\tb\nc\rd\fe"), Text},
		{"escape", []byte{0x1b, '[', '0', 'm'}, Text},
		{"nul", []byte{'a', 0}, Binary},
		{"bell", []byte{7}, Binary},
		{"del", []byte{0x7f}, Binary},
		{"utf8", []byte("héllo"), Text},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Sniff(tc.in); got != tc.want {
				t.Errorf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestSniff_OnlyLooksAtPrefix(t *testing.T) {
	data := make([]byte, SniffLen+10)
	for i := range data {
		data[i] = 'a'
	}
	data[SniffLen+5] = 0
	if got := Sniff(data); got != Text {
		t.Errorf("got %q want %q", got, Text)
	}
}

func TestStripHandlerSuffix(t *testing.T) {
	r := New(nil, ".class", nil)
	if got := r.StripHandlerSuffix("reports/Summary.CLASS"); got != "reports/Summary" {
		t.Errorf("got %q", got)
	}
	if got := r.StripHandlerSuffix("reports/summary.htm"); got != "reports/summary.htm" {
		t.Errorf("got %q", got)
	}
}
