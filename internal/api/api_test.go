package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/tagshelf/internal/apperr"
	"github.com/starford/tagshelf/internal/models"
	"github.com/starford/tagshelf/internal/session"
	"github.com/starford/tagshelf/internal/tagservice"
	"github.com/starford/tagshelf/internal/testutil"
	"github.com/starford/tagshelf/internal/transfer"
)

type testEnvResult struct {
	svc    *tagservice.Service
	router http.Handler
	seed   testutil.Fixture
}

// testEnv sets up a seeded store, an active session and a router.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) testEnvResult {
	t.Helper()
	return testEnvFull(t, authToken != "", authToken, nil)
}

func testEnvFull(t *testing.T, authEnabled bool, authToken string, sseHandler http.Handler) testEnvResult {
	t.Helper()
	db := testutil.TestDB(t)
	seed := testutil.Seed(t, db, "Demo")
	_, files := testutil.TestExchange(t)

	sess := session.New(db, testutil.TestFlags(t), nil)
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	svc := tagservice.NewService(db, sess, nil, tagservice.WithFiles(files))
	return testEnvResult{
		svc:    svc,
		router: NewRouter(svc, authEnabled, authToken, sseHandler),
		seed:   seed,
	}
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestCreateAndListLibraries(t *testing.T) {
	env := testEnv(t, "")

	w := do(t, env.router, http.MethodPost, "/libraries", map[string]any{"name": "Portraits", "activate": true})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	lib := decode[models.Library](t, w)

	w = do(t, env.router, http.MethodGet, "/libraries", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	list := decode[LibraryListResponse](t, w)
	if len(list.Libraries) != 2 {
		t.Fatalf("libraries = %d, want 2", len(list.Libraries))
	}
	for _, l := range list.Libraries {
		if l.Active != (l.ID == lib.ID) {
			t.Errorf("library %s active = %v", l.Name, l.Active)
		}
	}

	w = do(t, env.router, http.MethodGet, "/session", nil)
	st := decode[tagservice.Status](t, w)
	if st.LibraryID != lib.ID || st.State != session.StateReady {
		t.Errorf("session = %+v, want ready on %s", st, lib.ID)
	}
}

func TestCreateLibraryValidation(t *testing.T) {
	env := testEnv(t, "")

	w := do(t, env.router, http.MethodPost, "/libraries", map[string]any{"name": ""})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty name = %d, want 400", w.Code)
	}
	resp := decode[errResponse](t, w)
	if resp.Code != "VALIDATION" {
		t.Errorf("code = %q", resp.Code)
	}

	w = do(t, env.router, http.MethodPost, "/libraries", "{not json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", w.Code)
	}

	w = do(t, env.router, http.MethodPost, "/libraries", map[string]any{"name": "demo"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("duplicate name = %d, want 400", w.Code)
	}
}

func TestLibraryNotFound(t *testing.T) {
	env := testEnv(t, "")

	for _, tc := range []struct{ method, target string }{
		{http.MethodGet, "/libraries/nope"},
		{http.MethodDelete, "/libraries/nope"},
		{http.MethodPost, "/libraries/nope/activate"},
	} {
		w := do(t, env.router, tc.method, tc.target, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s %s = %d, want 404", tc.method, tc.target, w.Code)
		}
	}

	w := do(t, env.router, http.MethodPatch, "/libraries/nope", map[string]any{"name": "x"})
	if w.Code != http.StatusNotFound {
		t.Errorf("patch missing = %d, want 404", w.Code)
	}
	body := decode[map[string]any](t, w)
	if body["code"] != string(apperr.CodeNotFound) || body["error"] == "" {
		t.Errorf("error body = %v", body)
	}
	if _, ok := body["details"]; ok {
		t.Errorf("error body carries empty details: %v", body)
	}
}

func TestWorkingSetFilters(t *testing.T) {
	env := testEnv(t, "")

	w := do(t, env.router, http.MethodGet, "/working-set", nil)
	ws := decode[WorkingSetResponse](t, w)
	if ws.Counts.Tags != 4 || len(ws.Tags) != 4 || len(ws.Groups) != 2 {
		t.Fatalf("working set = %+v", ws.Counts)
	}

	w = do(t, env.router, http.MethodGet, "/working-set?group="+env.seed.Groups["Style"]+"&q=light", nil)
	ws = decode[WorkingSetResponse](t, w)
	if len(ws.Tags) != 1 || ws.Tags[0].Name != "rim light" {
		t.Errorf("filtered tags = %+v", ws.Tags)
	}
	if len(ws.Categories) != 2 {
		t.Errorf("categories of Style = %d, want 2", len(ws.Categories))
	}

	w = do(t, env.router, http.MethodGet, "/working-set?category="+env.seed.Categories["Hair"]+"&q=light", nil)
	ws = decode[WorkingSetResponse](t, w)
	if len(ws.Tags) != 0 {
		t.Errorf("expected no match, got %+v", ws.Tags)
	}
}

func TestEntityCRUD(t *testing.T) {
	env := testEnv(t, "")

	w := do(t, env.router, http.MethodPost, "/groups", map[string]any{"name": "Camera", "color": "#123abc"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create group = %d, body = %s", w.Code, w.Body.String())
	}
	g := decode[models.Group](t, w)

	w = do(t, env.router, http.MethodPost, "/categories", map[string]any{"group_id": g.ID, "name": "Lens"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create category = %d, body = %s", w.Code, w.Body.String())
	}
	c := decode[models.Category](t, w)

	w = do(t, env.router, http.MethodPost, "/tags", map[string]any{"category_id": c.ID, "name": "85mm", "subtitles": []string{"portrait"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("create tag = %d, body = %s", w.Code, w.Body.String())
	}
	tag := decode[models.Tag](t, w)

	w = do(t, env.router, http.MethodGet, "/groups/"+g.ID+"/categories", nil)
	if cats := decode[[]models.Category](t, w); len(cats) != 1 {
		t.Errorf("categories = %d, want 1", len(cats))
	}

	w = do(t, env.router, http.MethodPatch, "/tags/"+tag.ID, map[string]any{"name": "50mm"})
	if w.Code != http.StatusOK {
		t.Fatalf("patch tag = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode[models.Tag](t, w); got.Name != "50mm" {
		t.Errorf("name = %q", got.Name)
	}

	w = do(t, env.router, http.MethodGet, "/categories/"+c.ID+"/tags", nil)
	if tags := decode[[]models.Tag](t, w); len(tags) != 1 || tags[0].Name != "50mm" {
		t.Errorf("tags = %+v", tags)
	}

	w = do(t, env.router, http.MethodDelete, "/groups/"+g.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete group = %d", w.Code)
	}
	w = do(t, env.router, http.MethodDelete, "/tags/"+tag.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("tag removed with its group, delete = %d, want 404", w.Code)
	}
}

func TestCreateRequestsValidated(t *testing.T) {
	env := testEnv(t, "")

	cases := []struct {
		target string
		body   map[string]any
	}{
		{"/groups", map[string]any{"name": ""}},
		{"/groups", map[string]any{"name": "X", "color": "red"}},
		{"/categories", map[string]any{"name": "X"}},
		{"/tags", map[string]any{"category_id": env.seed.Categories["Hair"], "name": "x", "weight": -1}},
		{"/tags/batch-delete", map[string]any{"ids": []string{}}},
		{"/tags/move", map[string]any{"ids": []string{"a"}}},
	}
	for _, tc := range cases {
		w := do(t, env.router, http.MethodPost, tc.target, tc.body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("POST %s %v = %d, want 400", tc.target, tc.body, w.Code)
		}
	}

	w := do(t, env.router, http.MethodPost, "/categories", map[string]any{"group_id": "missing", "name": "X"})
	if w.Code != http.StatusNotFound {
		t.Errorf("category under missing group = %d, want 404", w.Code)
	}
}

func TestBatchDeleteAndMove(t *testing.T) {
	env := testEnv(t, "")

	w := do(t, env.router, http.MethodPost, "/tags/move", map[string]any{
		"ids":         []string{env.seed.Tags["watercolor"]},
		"category_id": env.seed.Categories["Hair"],
	})
	if w.Code != http.StatusOK {
		t.Fatalf("move = %d, body = %s", w.Code, w.Body.String())
	}
	if n := decode[CountResponse](t, w).Count; n != 1 {
		t.Errorf("moved = %d", n)
	}

	w = do(t, env.router, http.MethodPost, "/tags/batch-delete", map[string]any{
		"ids": []string{env.seed.Tags["watercolor"], env.seed.Tags["long hair"], "missing"},
	})
	if n := decode[CountResponse](t, w).Count; n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
	if got := env.svc.Status(context.Background()).Counts.Tags; got != 2 {
		t.Errorf("remaining tags = %d, want 2", got)
	}
}

func TestExportAndImport(t *testing.T) {
	env := testEnv(t, "")

	w := do(t, env.router, http.MethodGet, "/export?format=yaml", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/yaml") {
		t.Errorf("content type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "demo.yaml") {
		t.Errorf("disposition = %q", cd)
	}
	exported := w.Body.Bytes()

	w = do(t, env.router, http.MethodPost, "/libraries/"+env.seed.LibraryID+"/clear", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("clear = %d", w.Code)
	}

	w = do(t, env.router, http.MethodPost, "/import?mode=replace", string(exported))
	if w.Code != http.StatusOK {
		t.Fatalf("import = %d, body = %s", w.Code, w.Body.String())
	}
	res := decode[tagservice.ImportResult](t, w)
	if res.TagsAdded != 4 || res.Mode != transfer.ModeReplace {
		t.Errorf("import result = %+v", res)
	}

	w = do(t, env.router, http.MethodGet, "/export?format=xml", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad format = %d, want 400", w.Code)
	}
	w = do(t, env.router, http.MethodPost, "/import?mode=append", validImportDoc)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad mode = %d, want 400", w.Code)
	}
}

const validImportDoc = `{"groups":[{"name":"Camera","categories":[{"name":"Lens","tags":[{"name":"85mm"}]}]}]}`

func TestImportMalformedIs422(t *testing.T) {
	env := testEnv(t, "")

	w := do(t, env.router, http.MethodPost, "/import", `{"unknown":1}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("malformed = %d, want 422", w.Code)
	}
	if got := env.svc.Status(context.Background()).Counts.Tags; got != 4 {
		t.Errorf("tags after failed import = %d, want 4", got)
	}
}

func TestImportMultipart(t *testing.T) {
	env := testEnv(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "camera.json")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte(validImportDoc))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("multipart import = %d, body = %s", w.Code, w.Body.String())
	}
	res := decode[tagservice.ImportResult](t, w)
	if res.Source != "camera.json" || res.TagsAdded != 1 || res.Mode != transfer.ModeMerge {
		t.Errorf("result = %+v", res)
	}
}

func TestImportMultipart_MissingFileField(t *testing.T) {
	env := testEnv(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("other", "value")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing field = %d, want 400", w.Code)
	}
}

func TestDocumentsRoundTrip(t *testing.T) {
	env := testEnv(t, "")

	w := do(t, env.router, http.MethodPost, "/documents/export", map[string]any{"path": "out/demo.json"})
	if w.Code != http.StatusCreated {
		t.Fatalf("export document = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, env.router, http.MethodGet, "/documents", nil)
	docs := decode[map[string][]models.DocumentFile](t, w)["documents"]
	if len(docs) != 1 || docs[0].Path != "out/demo.json" {
		t.Fatalf("documents = %+v", docs)
	}

	w = do(t, env.router, http.MethodPost, "/documents/import", map[string]any{"path": "out/demo.json", "mode": "merge"})
	if w.Code != http.StatusOK {
		t.Fatalf("import document = %d, body = %s", w.Code, w.Body.String())
	}
	res := decode[tagservice.ImportResult](t, w)
	if res.TagsAdded != 0 || res.TagsSkipped != 4 {
		t.Errorf("merge of own export = %+v", res)
	}

	w = do(t, env.router, http.MethodPost, "/documents/import", map[string]any{"path": "out/missing.json"})
	if w.Code != http.StatusNotFound {
		t.Errorf("missing document = %d, want 404", w.Code)
	}
}

func TestNoActiveLibrary(t *testing.T) {
	env := testEnv(t, "")

	w := do(t, env.router, http.MethodDelete, "/libraries/"+env.seed.LibraryID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}

	w = do(t, env.router, http.MethodGet, "/session", nil)
	if st := decode[tagservice.Status](t, w); st.State != session.StateNoLibrary {
		t.Errorf("state = %q", st.State)
	}
	w = do(t, env.router, http.MethodGet, "/export", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("export without library = %d, want 400", w.Code)
	}
	w = do(t, env.router, http.MethodGet, "/working-set", nil)
	if ws := decode[WorkingSetResponse](t, w); len(ws.Tags) != 0 || ws.Tags == nil {
		t.Errorf("empty working set tags = %v", ws.Tags)
	}
}

func TestHealth(t *testing.T) {
	env := testEnv(t, "secret")

	for _, path := range []string{"/health/live", "/health/ready"} {
		w := do(t, env.router, http.MethodGet, path, nil)
		if w.Code != http.StatusOK {
			t.Errorf("%s = %d, want 200 without auth", path, w.Code)
		}
	}
}

func TestAuthMiddleware_TokenMode(t *testing.T) {
	env := testEnv(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/libraries", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/libraries", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/libraries", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	env := testEnv(t, "")

	w := do(t, env.router, http.MethodGet, "/libraries", nil)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

type blockingSSE struct{}

func (blockingSSE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	<-r.Context().Done()
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	env := testEnvFull(t, true, "secret", blockingSSE{})

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	env := testEnvFull(t, true, "tok", blockingSSE{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
