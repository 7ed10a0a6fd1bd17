package websearch

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var samplePage = `<!DOCTYPE html>
<html>
<head>
<title>Sample Page</title>
<meta name="description" content="A page about nothing much.">
<script>var tracking = "noise";</script>
<style>.hidden { display: none }</style>
</head>
<body>
<nav>Home | About | Contact</nav>
<article>
<h1>Sample Page</h1>
<p>` + strings.Repeat("Substantial readable paragraph text. ", 10) + `</p>
<p>Second paragraph with &amp; entity and &quot;quotes&quot;.</p>
</article>
<footer>Copyright nobody</footer>
</body>
</html>`

func serveHTML(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExtractReadableContent(t *testing.T) {
	srv := serveHTML(t, samplePage)
	e := NewContentExtractorForTesting()

	text, err := e.Extract(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "Title: Sample Page") {
		t.Errorf("missing title line:\n%s", text)
	}
	if !strings.Contains(text, "Description: A page about nothing much.") {
		t.Errorf("missing description line:\n%s", text)
	}
	if !strings.Contains(text, "Substantial readable paragraph") {
		t.Errorf("missing article body:\n%s", text)
	}
	if strings.Contains(text, "tracking") || strings.Contains(text, "display: none") {
		t.Errorf("script/style noise leaked:\n%s", text)
	}
	if strings.Contains(text, "Home | About") {
		t.Errorf("nav content leaked:\n%s", text)
	}
	if !strings.Contains(text, `with & entity and "quotes"`) {
		t.Errorf("entities not decoded:\n%s", text)
	}
}

func TestExtractRejectsNonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
	}))
	defer srv.Close()

	e := NewContentExtractorForTesting()
	if _, err := e.Extract(context.Background(), srv.URL); err == nil {
		t.Fatal("expected content-type error")
	}
}

func TestExtractRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	e := NewContentExtractorForTesting()
	if _, err := e.Extract(context.Background(), srv.URL); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected HTTP 404 error, got %v", err)
	}
}

func TestExtractBlocksLocalTargets(t *testing.T) {
	e := NewContentExtractor()
	for _, target := range []string{
		"http://localhost/secret",
		"http://127.0.0.1:8080/",
		"file:///etc/passwd",
		"http://169.254.169.254/latest/meta-data/",
	} {
		if _, err := e.Extract(context.Background(), target); err == nil {
			t.Errorf("%s: expected SSRF rejection", target)
		}
	}
}

func TestBlockedIP(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"192.168.1.1", true},
		{"169.254.169.254", true},
		{"0.0.0.0", true},
		{"::1", true},
		{"8.8.8.8", false},
		{"93.184.216.34", false},
	}
	for _, tt := range tests {
		if got := blockedIP(net.ParseIP(tt.ip)); got != tt.want {
			t.Errorf("blockedIP(%s) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func TestTidyText(t *testing.T) {
	in := "  a   b \n\n\n\n c&nbsp;d &lt;tag&gt; "
	got := tidyText(in)
	if got != "a b\n\nc d <tag>" {
		t.Errorf("tidyText = %q", got)
	}
}
