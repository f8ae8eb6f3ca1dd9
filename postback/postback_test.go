package postback_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/regsalud/exequatur/postback"
	"github.com/regsalud/exequatur/registry"
)

const viewState = "dDwtMTQ4OTIzNDU2Nzs7Pg=="

// registryStub mimics the registry's three-step exchange: entry page with an
// embedded frame, application page with a stateful form, postback with the
// result table.
func registryStub(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/herramientas/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><iframe src="/app/consulta.aspx" width="100%"></iframe></body></html>`)
	})

	mux.HandleFunc("/app/consulta.aspx", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			http.SetCookie(w, &http.Cookie{Name: "ASP.NET_SessionId", Value: "abc123"})
			fmt.Fprintf(w, `<html><body>
<form action="consulta.aspx" method="post">
  <input type="hidden" name="__VIEWSTATE" value="%s" />
  <input type="hidden" name="__EVENTVALIDATION" value="eV1" />
  <input name="txtBusqueda" type="text" value="" />
  <input type="submit" name="btnBuscar" value="Buscar" />
  <input type="submit" name="btnLimpiar" value="Limpiar" />
</form></body></html>`, viewState)
		case http.MethodPost:
			if c, err := r.Cookie("ASP.NET_SessionId"); err != nil || c.Value != "abc123" {
				http.Error(w, "session cookie missing", http.StatusForbidden)
				return
			}
			if r.FormValue("__VIEWSTATE") != viewState {
				http.Error(w, "view state not echoed", http.StatusBadRequest)
				return
			}
			if r.FormValue("btnBuscar") == "" || r.FormValue("btnLimpiar") != "" {
				http.Error(w, "expected exactly the search button pressed", http.StatusBadRequest)
				return
			}
			term := r.FormValue("txtBusqueda")
			if term == "" {
				http.Error(w, "search term missing", http.StatusBadRequest)
				return
			}
			if term == "99999999999" {
				fmt.Fprint(w, `<html><body><p>No se encontraron resultados.</p></body></html>`)
				return
			}
			fmt.Fprint(w, `<html><body><table>
<tr><th>Nombre</th><th>Profesión</th><th>Cédula</th></tr>
<tr><td>Juan Pérez Gómez</td><td>Médico</td><td>001-1234567-8</td></tr>
</table></body></html>`)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newSource(t *testing.T, entryURL string, opts ...postback.Option) *postback.Source {
	t.Helper()
	opts = append(opts, postback.WithLogger(slog.New(slog.DiscardHandler)))
	src, err := postback.New(entryURL, opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return src
}

func TestFetchCandidates(t *testing.T) {
	srv := registryStub(t)
	src := newSource(t, srv.URL+"/herramientas/")

	records, err := src.FetchCandidates(context.Background(), registry.NewQuery("001-1234567-8", ""))
	if err != nil {
		t.Fatalf("FetchCandidates() error: %v", err)
	}

	want := []registry.Record{{
		registry.FieldName:       "Juan Pérez Gómez",
		registry.FieldProfession: "Médico",
		registry.FieldIdentity:   "001-1234567-8",
	}}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchCandidatesNoResults(t *testing.T) {
	srv := registryStub(t)
	src := newSource(t, srv.URL+"/herramientas/")

	records, err := src.FetchCandidates(context.Background(), registry.NewQuery("999-9999999-9", ""))
	if err != nil {
		t.Fatalf("FetchCandidates() error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("records = %v, want none", records)
	}
}

func TestFetchCandidatesNoFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><p>maintenance</p></body></html>`)
	}))
	t.Cleanup(srv.Close)

	src := newSource(t, srv.URL)
	_, err := src.FetchCandidates(context.Background(), registry.NewQuery("123", ""))
	if !errors.Is(err, registry.ErrNoFrame) {
		t.Errorf("FetchCandidates() error = %v, want ErrNoFrame", err)
	}
}

func TestFetchCandidatesMissingStateToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><iframe src="/app"></iframe></body></html>`)
	})
	mux.HandleFunc("/app", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><form action="/app">
<input name="txtBusqueda" type="text" />
<input type="submit" name="btnBuscar" value="Buscar" />
</form></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	src := newSource(t, srv.URL+"/")
	_, err := src.FetchCandidates(context.Background(), registry.NewQuery("123", ""))
	if !errors.Is(err, registry.ErrFormStateMissing) {
		t.Errorf("FetchCandidates() error = %v, want ErrFormStateMissing", err)
	}
}

func TestFetchCandidatesConfiguredFields(t *testing.T) {
	srv := registryStub(t)
	src := newSource(t, srv.URL+"/herramientas/",
		postback.WithSearchField("txtBusqueda"),
		postback.WithSubmitField("btnBuscar"),
	)

	records, err := src.FetchCandidates(context.Background(), registry.NewQuery("", "Juan Pérez"))
	if err != nil {
		t.Fatalf("FetchCandidates() error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %v, want one", records)
	}
	if got := records[0].Name(); got != "Juan Pérez Gómez" {
		t.Errorf("Name() = %q", got)
	}
}

func TestFetchCandidatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	src := newSource(t, srv.URL)
	if _, err := src.FetchCandidates(context.Background(), registry.NewQuery("123", "")); err == nil {
		t.Error("FetchCandidates() on HTTP 500 should fail")
	}
}

func TestNewRequiresURL(t *testing.T) {
	if _, err := postback.New(""); err == nil {
		t.Error("New(\"\") should fail")
	}
}
