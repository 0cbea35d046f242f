package vocabfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

const indexPage = `<html><body>
<h1>Vocabulary downloads</h1>
<ul>
<li><a href="CONCEPT.csv">CONCEPT.csv</a></li>
<li><a href="DRUG_STRENGTH.csv">DRUG_STRENGTH.csv</a></li>
<li><a href="CONCEPT.csv">CONCEPT.csv (mirror)</a></li>
<li><a href="readme.html">readme</a></li>
<li><a href="archive/BROKEN.csv">broken</a></li>
</ul>
</body></html>`

func newVocabServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Write([]byte(indexPage))
		case "/CONCEPT.csv":
			w.Write([]byte("concept_id\tconcept_name\n"))
		case "/DRUG_STRENGTH.csv":
			w.Write([]byte("drug_concept_id\tingredient_concept_id\n"))
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestListFiles(t *testing.T) {
	srv := newVocabServer(t)
	c := New(srv.URL, zerolog.Nop())

	files, err := c.ListFiles(context.Background())
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	// Deduplicated, page order, non-csv links ignored, nested paths
	// reduced to their base name.
	want := []string{"CONCEPT.csv", "DRUG_STRENGTH.csv", "BROKEN.csv"}
	if len(files) != len(want) {
		t.Fatalf("files = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, files[i], want[i])
		}
	}
}

func TestListFiles_IndexUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, zerolog.Nop())
	if _, err := c.ListFiles(context.Background()); err == nil {
		t.Error("expected error for unavailable index")
	}
}

func TestFetchAll_SkipsBrokenLinks(t *testing.T) {
	srv := newVocabServer(t)
	dir := t.TempDir()
	c := New(srv.URL, zerolog.Nop())

	fetched, err := c.FetchAll(context.Background(), dir)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	// BROKEN.csv 404s; the sync continues with the remaining files.
	if len(fetched) != 2 {
		t.Fatalf("fetched = %v", fetched)
	}

	data, err := os.ReadFile(filepath.Join(dir, "CONCEPT.csv"))
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if string(data) != "concept_id\tconcept_name\n" {
		t.Errorf("downloaded content = %q", data)
	}
}
