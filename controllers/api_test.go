package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"fibo_store/app"
	"fibo_store/auth"
	"fibo_store/db/dbtest"
	"fibo_store/routes"
	"fibo_store/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	adminEmail   = "boss@student.fibo.edu"
	studentEmail = "kid@student.fibo.edu"
)

type fakeIdP struct{ identity auth.Identity }

func (f *fakeIdP) AuthCodeURL(state string) string {
	return "https://idp.test/auth?state=" + url.QueryEscape(state)
}

func (f *fakeIdP) Exchange(context.Context, string) (auth.Identity, error) { return f.identity, nil }

type harness struct {
	t   *testing.T
	app *app.App
	idp *fakeIdP
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	disk, err := storage.NewDiskStore(t.TempDir(), "http://api.test"+storage.UploadsPath)
	require.NoError(t, err)

	cfg := app.Config{
		WebOrigin:         "http://web.test",
		RPID:              "localhost",
		RPOrigins:         []string{"http://localhost:3000"},
		SessionTTL:        time.Minute,
		RefreshTTL:        time.Hour,
		AccessTTL:         15 * time.Minute,
		JWTSecret:         "test-secret",
		AllowedDomain:     "student.fibo.edu",
		AdminEmails:       []string{adminEmail},
		LowStockThreshold: 5,
	}
	a, err := app.New(cfg, dbtest.Open(t), rdb, disk, zap.NewNop())
	require.NoError(t, err)

	idp := &fakeIdP{}
	a.Google = idp
	routes.RegisterRoutes(a.Router, a)
	return &harness{t: t, app: a, idp: idp}
}

func (h *harness) token(email string, role auth.Role) string {
	tok, _, err := h.app.Tokens.Issue(auth.Principal{Email: email, Name: email, Role: role})
	require.NoError(h.t, err)
	return tok
}

func (h *harness) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.app.Router.ServeHTTP(w, req)
	return w
}

func (h *harness) json(method, path string, body any, token string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(h.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return h.do(req, token)
}

func (h *harness) form(method, path string, fields map[string]string, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(h.t, mw.WriteField(k, v))
	}
	require.NoError(h.t, mw.Close())
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return h.do(req, token)
}

// signIn walks the OAuth redirect flow and returns the callback response.
func (h *harness) signIn(email, name string) *httptest.ResponseRecorder {
	h.idp.identity = auth.Identity{Email: email, Name: name}

	w := h.do(httptest.NewRequest(http.MethodGet, "/auth/google/login?next=/dashboard", nil), "")
	require.Equal(h.t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(h.t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(h.t, state)

	return h.do(httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=c&state="+url.QueryEscape(state), nil), "")
}

func refreshCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == app.RefreshCookie && c.Value != "" {
			return c
		}
	}
	t.Fatalf("no %s cookie", app.RefreshCookie)
	return nil
}

func (h *harness) refresh(ck *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(ck)
	return h.do(req, "")
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type detailBody struct {
	Detail string `json:"detail"`
}

type itemBody struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Category          string `json:"category"`
	AvailableQuantity int    `json:"available_quantity"`
}

type bookingBody struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Items  []struct {
		ItemID   string `json:"item_id"`
		Quantity int    `json:"quantity"`
	} `json:"items"`
}

type tokenBody struct {
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	User        auth.Principal `json:"user"`
}

func (h *harness) createItem(name string, qty string) itemBody {
	w := h.form(http.MethodPost, "/items", map[string]string{
		"name": name, "category": "Electronics", "quantity": qty, "specifications": `{"voltage":"5V"}`,
	}, h.token(adminEmail, auth.RoleAdmin))
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[itemBody](h.t, w)
}

func booking(itemID string, qty int) map[string]any {
	return map[string]any{
		"pickup_date": "2026-11-02",
		"due_date":    "2026-11-09",
		"purpose":     "robotics club",
		"items":       []map[string]any{{"item_id": itemID, "quantity": qty}},
	}
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	w := h.json(http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, decode[map[string]any](t, w)["ok"])
}

func TestItems_AdminWritesPublicReads(t *testing.T) {
	h := newHarness(t)
	student := h.token(studentEmail, auth.RoleStudent)

	w := h.form(http.MethodPost, "/items", map[string]string{"name": "Drill", "quantity": "1"}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	w = h.form(http.MethodPost, "/items", map[string]string{"name": "Drill", "quantity": "1"}, student)
	require.Equal(t, http.StatusForbidden, w.Code)

	it := h.createItem("Arduino Uno", "5")
	require.Equal(t, 5, it.AvailableQuantity)
	require.Equal(t, "Electronics", it.Category)

	w = h.json(http.MethodGet, "/items?q=arduino", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]itemBody](t, w)
	require.Len(t, list, 1)
	require.Equal(t, it.ID, list[0].ID)

	w = h.json(http.MethodGet, "/categories", nil, "")
	require.Equal(t, []string{"Electronics"}, decode[[]string](t, w))

	w = h.form(http.MethodPut, "/items/"+it.ID, map[string]string{
		"name": "Arduino Uno R3", "category": "Electronics", "quantity": "7",
	}, h.token(adminEmail, auth.RoleAdmin))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, 7, decode[itemBody](t, w).AvailableQuantity)

	w = h.json(http.MethodGet, "/items/does-not-exist", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.NotEmpty(t, decode[detailBody](t, w).Detail)
}

func TestItems_DeleteReferencedConflicts(t *testing.T) {
	h := newHarness(t)
	admin := h.token(adminEmail, auth.RoleAdmin)
	it := h.createItem("Oscilloscope", "2")

	w := h.json(http.MethodPost, "/bookings", booking(it.ID, 1), h.token(studentEmail, auth.RoleStudent))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = h.json(http.MethodDelete, "/items/"+it.ID, nil, admin)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "item is referenced by an existing booking", decode[detailBody](t, w).Detail)

	free := h.createItem("Multimeter", "1")
	w = h.json(http.MethodDelete, "/items/"+free.ID, nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, http.StatusNotFound, h.json(http.MethodGet, "/items/"+free.ID, nil, "").Code)
}

func TestBookings_Lifecycle(t *testing.T) {
	h := newHarness(t)
	admin := h.token(adminEmail, auth.RoleAdmin)
	student := h.token(studentEmail, auth.RoleStudent)
	it := h.createItem("Raspberry Pi", "3")

	w := h.json(http.MethodPost, "/bookings", booking(it.ID, 2), student)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	b := decode[bookingBody](t, w)
	require.Equal(t, "Pending", b.Status)
	require.Len(t, b.Items, 1)

	stock := func() int {
		return decode[itemBody](t, h.json(http.MethodGet, "/items/"+it.ID, nil, "")).AvailableQuantity
	}
	require.Equal(t, 1, stock())

	// over-booking leaves stock untouched
	w = h.json(http.MethodPost, "/bookings", booking(it.ID, 2), student)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, decode[detailBody](t, w).Detail, "Insufficient stock")
	require.Equal(t, 1, stock())

	w = h.json(http.MethodPatch, "/bookings/"+b.ID+"/status", map[string]string{"status": "Approved"}, student)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = h.json(http.MethodPatch, "/bookings/"+b.ID+"/status", map[string]string{"status": "Approved"}, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "Approved", decode[bookingBody](t, w).Status)

	w = h.json(http.MethodPatch, "/bookings/"+b.ID+"/status", map[string]string{"status": "Pending"}, admin)
	require.Equal(t, http.StatusConflict, w.Code)
	require.NotEmpty(t, decode[detailBody](t, w).Detail)

	w = h.json(http.MethodPatch, "/bookings/"+b.ID+"/status", map[string]string{"status": "Returned", "note": "all good"}, admin)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 3, stock())

	w = h.json(http.MethodGet, "/admin/bookings/"+b.ID+"/history", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode[[]map[string]any](t, w), 3)

	w = h.json(http.MethodGet, "/my-bookings?status=Returned", nil, student)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode[[]bookingBody](t, w), 1)

	w = h.json(http.MethodGet, "/my-bookings?email=other@student.fibo.edu", nil, student)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = h.json(http.MethodGet, "/admin/bookings?status=Pending", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, decode[[]bookingBody](t, w))

	w = h.json(http.MethodGet, "/bookings/"+b.ID, nil, h.token("other@student.fibo.edu", auth.RoleStudent))
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestBookings_ValidationDetailListsFields(t *testing.T) {
	h := newHarness(t)
	w := h.json(http.MethodPost, "/bookings", map[string]any{
		"pickup_date": "2026-11-02", "due_date": "2026-11-09", "items": []any{},
	}, h.token(studentEmail, auth.RoleStudent))
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decode[struct {
		Detail []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"detail"`
	}](t, w)
	require.NotEmpty(t, body.Detail)
	require.Equal(t, "items", body.Detail[0].Field)

	w = h.json(http.MethodPatch, "/bookings/nope/status", map[string]string{"status": "Approved"}, h.token(adminEmail, auth.RoleAdmin))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminStatsAndInventory(t *testing.T) {
	h := newHarness(t)
	admin := h.token(adminEmail, auth.RoleAdmin)
	it := h.createItem("Soldering Iron", "4")
	h.createItem("Breadboard", "40")

	w := h.json(http.MethodPost, "/bookings", booking(it.ID, 1), h.token(studentEmail, auth.RoleStudent))
	require.Equal(t, http.StatusCreated, w.Code)

	w = h.json(http.MethodGet, "/admin/stats", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[map[string]any](t, w)
	require.EqualValues(t, 2, stats["total_items"])
	require.EqualValues(t, 1, stats["low_stock_items"])
	require.EqualValues(t, 1, stats["pending_count"])

	w = h.json(http.MethodGet, "/admin/items?low_stock=true", nil, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page := decode[struct {
		Total int64 `json:"total"`
		Items []struct {
			Name             string `json:"name"`
			ReservedQuantity int    `json:"reserved_quantity"`
		} `json:"items"`
	}](t, w)
	require.EqualValues(t, 1, page.Total)
	require.Equal(t, "Soldering Iron", page.Items[0].Name)
	require.Equal(t, 1, page.Items[0].ReservedQuantity)

	require.Equal(t, http.StatusForbidden, h.json(http.MethodGet, "/admin/stats", nil, h.token(studentEmail, auth.RoleStudent)).Code)
}

func TestAuth_CallbackRefreshAndAllowlistReload(t *testing.T) {
	h := newHarness(t)

	w := h.signIn("Kid@Student.FIBO.edu", "Kid")
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "http://web.test/dashboard", w.Header().Get("Location"))
	ck := refreshCookie(t, w)

	w = h.refresh(ck)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	tok := decode[tokenBody](t, w)
	require.Equal(t, "Bearer", tok.TokenType)
	require.Equal(t, studentEmail, tok.User.Email)
	require.Equal(t, auth.RoleStudent, tok.User.Role)

	// promoted without signing in again
	h.app.Gate.Replace([]string{adminEmail, strings.ToUpper(studentEmail)})
	w = h.refresh(ck)
	require.Equal(t, http.StatusOK, w.Code)
	tok = decode[tokenBody](t, w)
	require.Equal(t, auth.RoleAdmin, tok.User.Role)

	w = h.json(http.MethodGet, "/auth/me", nil, tok.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[map[string]any](t, w)
	require.Equal(t, "admin", me["role"])
	require.Equal(t, "Kid", me["name"])

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(ck)
	require.Equal(t, http.StatusOK, h.do(req, "").Code)
	require.Equal(t, http.StatusUnauthorized, h.refresh(ck).Code)
}

func TestAuth_CallbackRejections(t *testing.T) {
	h := newHarness(t)

	w := h.signIn("someone@gmail.com", "Someone")
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "http://web.test/login?error=domain_not_allowed", w.Header().Get("Location"))
	for _, c := range w.Result().Cookies() {
		require.NotEqual(t, app.RefreshCookie, c.Name)
	}

	w = h.do(httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=c&state=forged", nil), "")
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "http://web.test/login?error=invalid_state", w.Header().Get("Location"))

	w = h.do(httptest.NewRequest(http.MethodPost, "/auth/refresh", nil), "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminUsers_DeleteRevokesSessions(t *testing.T) {
	h := newHarness(t)
	admin := h.token(adminEmail, auth.RoleAdmin)

	ck := refreshCookie(t, h.signIn(studentEmail, "Kid"))
	refreshCookie(t, h.signIn(adminEmail, "Boss"))

	w := h.json(http.MethodGet, "/admin/users?q=kid", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	users := decode[struct {
		Total int64 `json:"total"`
		Users []struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"users"`
	}](t, w)
	require.EqualValues(t, 1, users.Total)
	kidID := users.Users[0].ID

	w = h.json(http.MethodGet, "/admin/users?q=boss", nil, admin)
	bossID := decode[struct {
		Users []struct {
			ID string `json:"id"`
		} `json:"users"`
	}](t, w).Users[0].ID

	require.Equal(t, http.StatusBadRequest, h.json(http.MethodDelete, "/admin/users/"+bossID, nil, admin).Code)
	require.Equal(t, http.StatusForbidden,
		h.json(http.MethodDelete, "/admin/users/"+bossID, nil, h.token("ops@student.fibo.edu", auth.RoleAdmin)).Code)

	w = h.json(http.MethodDelete, "/admin/users/"+kidID, nil, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, http.StatusUnauthorized, h.refresh(ck).Code)
	require.Equal(t, http.StatusNotFound, h.json(http.MethodGet, "/admin/users/"+kidID, nil, admin).Code)
}
