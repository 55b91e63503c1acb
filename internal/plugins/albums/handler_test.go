package albums

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/gallery/internal/pagination"
)

var testLimits = pagination.Limits{DefaultPerPage: 20, MaxPerPage: 100}

func newTestHandler(t *testing.T) (*Handler, *fixture) {
	t.Helper()
	f := newFixture(t)
	return NewHandler(f.svc, testLimits), f
}

// serve runs one request through a fresh echo instance with the album routes.
// Handler errors are returned instead of rendered.
func serve(t *testing.T, h *Handler, method, target, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	var handlerErr error
	e.HTTPErrorHandler = func(err error, c echo.Context) { handlerErr = err }
	RegisterRoutes(e.Group("/api/v1"), h)

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec, handlerErr
}

func TestHandler_CreateAndGet(t *testing.T) {
	h, _ := newTestHandler(t)

	rec, err := serve(t, h, http.MethodPost, "/api/v1/albums", `{"name":"Summer Trip","event":"Holiday"}`)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var created Album
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding: %v", err)
	}

	rec, err = serve(t, h, http.MethodGet, "/api/v1/albums/1", "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var got Album
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got.ID != created.ID || got.Name != "Summer Trip" || got.Tags == nil {
		t.Errorf("got %+v", got)
	}
}

func TestHandler_GetMissing(t *testing.T) {
	h, _ := newTestHandler(t)
	_, err := serve(t, h, http.MethodGet, "/api/v1/albums/42", "")
	assertAppError(t, err, http.StatusNotFound)

	_, err = serve(t, h, http.MethodGet, "/api/v1/albums/abc", "")
	assertAppError(t, err, http.StatusBadRequest)
}

func TestHandler_CreateBadJSON(t *testing.T) {
	h, _ := newTestHandler(t)
	_, err := serve(t, h, http.MethodPost, "/api/v1/albums", `{"name":`)
	assertAppError(t, err, http.StatusBadRequest)

	_, err = serve(t, h, http.MethodPost, "/api/v1/albums", `{"name":5}`)
	assertAppError(t, err, http.StatusBadRequest)
}

func TestHandler_BindIgnoresPathParams(t *testing.T) {
	h, f := newTestHandler(t)
	a := f.album(t, AlbumInput{Name: "Trip"})

	// Binding must not copy the :id path parameter into the body id.
	rec, err := serve(t, h, http.MethodPatch, "/api/v1/albums/"+strconv.FormatInt(a.ID, 10), `{"name":"Trip 2"}`)
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	var got Album
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got.ID != a.ID || got.Name != "Trip 2" {
		t.Errorf("got %+v", got)
	}
}

func TestHandler_ListPagesAndCounts(t *testing.T) {
	h, f := newTestHandler(t)
	for _, name := range []string{"Alpha", "Bravo", "Charlie"} {
		f.album(t, AlbumInput{Name: name})
	}

	rec, err := serve(t, h, http.MethodGet, "/api/v1/albums?sort=name,desc&page=1&perPage=2", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := rec.Header().Get("X-Total-Count"); got != "3" {
		t.Errorf("X-Total-Count = %q, want 3", got)
	}

	var page pagination.Page[Album]
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if page.Total != 3 || page.TotalPages != 2 || len(page.Items) != 2 || page.Items[0].Name != "Charlie" {
		t.Errorf("page = %+v", page)
	}
}

func TestHandler_UnknownSortByWarns(t *testing.T) {
	h, _ := newTestHandler(t)

	rec, err := serve(t, h, http.MethodGet, "/api/v1/albums/gallery?sortBy=POPULAR", "")
	if err != nil {
		t.Fatalf("gallery: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get(WarningHeader) == "" {
		t.Error("expected a warning header for an unknown sortBy")
	}

	rec, _ = serve(t, h, http.MethodGet, "/api/v1/albums/gallery?sortBy=date", "")
	if rec.Header().Get(WarningHeader) != "" {
		t.Error("known sortBy should not warn")
	}
}

func TestHandler_ListRejectsBadParams(t *testing.T) {
	h, _ := newTestHandler(t)
	for _, q := range []string{"year=soon", "sort=size", "page=0", "perPage=x", "eagerload=maybe"} {
		_, err := serve(t, h, http.MethodGet, "/api/v1/albums/search?"+q, "")
		assertAppError(t, err, http.StatusBadRequest)
	}
}

func TestHandler_FilterOptions(t *testing.T) {
	h, f := newTestHandler(t)
	f.album(t, AlbumInput{Name: "Trip", Event: strPtr("Party")})

	rec, err := serve(t, h, http.MethodGet, "/api/v1/albums/filter-options", "")
	if err != nil {
		t.Fatalf("filter-options: %v", err)
	}
	body := rec.Body.String()
	for _, want := range []string{`"events":["Party"]`, `"years":[2023]`, `"tags":[]`, `"contributors":[]`} {
		if !strings.Contains(body, want) {
			t.Errorf("body %s does not contain %s", body, want)
		}
	}
}

func TestHandler_UpdatePatchDelete(t *testing.T) {
	h, f := newTestHandler(t)
	f.album(t, AlbumInput{Name: "Trip", Event: strPtr("Party")})

	_, err := serve(t, h, http.MethodPut, "/api/v1/albums/1", `{"id":2,"name":"Trip"}`)
	assertAppError(t, err, http.StatusBadRequest)

	rec, err := serve(t, h, http.MethodPatch, "/api/v1/albums/1", `{"description":"sunny","event":null}`)
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	var patched Album
	_ = json.Unmarshal(rec.Body.Bytes(), &patched)
	if patched.Event == nil || *patched.Event != "Party" || patched.Description == nil {
		t.Errorf("patched = %+v", patched)
	}

	rec, err = serve(t, h, http.MethodDelete, "/api/v1/albums/1", "")
	if err != nil || rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d %v", rec.Code, err)
	}
	_, err = serve(t, h, http.MethodDelete, "/api/v1/albums/1", "")
	assertAppError(t, err, http.StatusNotFound)
}
