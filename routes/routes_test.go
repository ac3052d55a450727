package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"timetable_go/controllers"
	"timetable_go/middleware"
	"timetable_go/models"
	"timetable_go/services"
	"timetable_go/utils"

	"github.com/gofiber/fiber/v2"
)

type testApp struct {
	app      *fiber.App
	store    *services.MemoryStore
	audit    *services.AuditService
	exporter *services.ExportService
}

type memoryUploader struct {
	keys []string
}

func (u *memoryUploader) Upload(ctx context.Context, key, contentType string, body []byte) (string, error) {
	u.keys = append(u.keys, key)
	return "https://archive.example/" + key, nil
}

func newTestApp(t *testing.T, authEnabled bool) *testApp {
	t.Helper()
	store := services.NewMemoryStore()
	ctx := context.Background()
	for _, teacher := range []models.Teacher{
		{BaseModel: models.BaseModel{ID: "a"}, Name: "أحمد", Subject: "رياضيات"},
		{BaseModel: models.BaseModel{ID: "b"}, Name: "خالد", Subject: "فيزياء"},
	} {
		teacher := teacher
		if err := store.CreateTeacher(ctx, &teacher); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	normalizer := services.NewSubjectNormalizer()
	audit := services.NewAuditService(nil, nil)
	reconciler := services.NewSlotReconciler(store)
	reconciler.SetAuditRecorder(audit)

	const secret = "test-secret"
	login := controllers.AuthConfig{Username: "admin", Secret: secret, ExpiresIn: time.Hour}
	if authEnabled {
		hash, err := utils.HashPassword("s3cret")
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		login.PasswordHash = hash
	}

	exporter := services.NewExportService(store)
	app := fiber.New()
	SetupRoutes(app, Dependencies{
		Reconciler: reconciler,
		Timetable:  services.NewTimetableService(reconciler, normalizer),
		Importer:   services.NewImportService(reconciler, normalizer),
		Exporter:   exporter,
		Audit:      audit,
		Health:     services.NewHealthService("test", "0.0.1", services.HealthOptions{Driver: "memory", Store: store}),
		Auth:       middleware.AuthOptions{Enabled: authEnabled, Secret: secret},
		Login:      login,
	})
	return &testApp{app: app, store: store, audit: audit, exporter: exporter}
}

func (ta *testApp) do(t *testing.T, method, path string, body interface{}, headers ...string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return ta.send(t, req)
}

func (ta *testApp) send(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]interface{}{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s: %v", string(raw), err)
		}
	}
	return resp.StatusCode, out
}

func cell(day string, period, grade, section int) map[string]interface{} {
	return map[string]interface{}{"day": day, "period": period, "grade": grade, "section": section}
}

func TestTeacherBatchConflictFlow(t *testing.T) {
	ta := newTestApp(t, false)
	body := map[string]interface{}{"slots": []interface{}{cell("الأحد", 1, 10, 1)}}

	status, resp := ta.do(t, http.MethodPost, "/api/teachers/a/schedule-slots/batch", body)
	if status != fiber.StatusOK || resp["success"] != true {
		t.Fatalf("expected 200, got %d %v", status, resp)
	}

	status, resp = ta.do(t, http.MethodPost, "/api/teachers/b/schedule-slots/batch", body)
	if status != fiber.StatusConflict {
		t.Fatalf("expected 409, got %d %v", status, resp)
	}
	if resp["error"] != "conflict" {
		t.Fatalf("unexpected error code %v", resp["error"])
	}
	conflicts, _ := resp["conflicts"].([]interface{})
	if len(conflicts) != 1 {
		t.Fatalf("expected one conflict, got %v", resp["conflicts"])
	}
	first := conflicts[0].(map[string]interface{})
	if first["type"] != "existing" || len(first["teachers"].([]interface{})) != 2 {
		t.Fatalf("unexpected conflict %v", first)
	}

	slots, _ := ta.store.ListSlots(context.Background())
	if len(slots) != 1 {
		t.Fatalf("refused write must leave the store unchanged, got %d slots", len(slots))
	}

	status, resp = ta.do(t, http.MethodPost, "/api/teachers/b/schedule-slots/batch?force=true", body)
	if status != fiber.StatusOK || resp["forced"] != true {
		t.Fatalf("expected forced 200, got %d %v", status, resp)
	}

	status, resp = ta.do(t, http.MethodGet, "/api/conflicts", nil)
	if status != fiber.StatusOK || resp["count"].(float64) != 1 {
		t.Fatalf("expected persisted conflict, got %d %v", status, resp)
	}
}

func TestErrorMapping(t *testing.T) {
	ta := newTestApp(t, false)

	tests := []struct {
		name      string
		method    string
		path      string
		body      interface{}
		expStatus int
		expError  string
	}{
		{
			name:      "validation",
			method:    http.MethodPost,
			path:      "/api/schedule-slots/batch",
			body:      map[string]interface{}{"slots": []interface{}{map[string]interface{}{"teacher_id": "a", "day": "السبت", "period": 9, "grade": 10, "section": 1}}},
			expStatus: fiber.StatusBadRequest,
			expError:  "validation_failed",
		},
		{
			name:      "unknown teacher",
			method:    http.MethodGet,
			path:      "/api/teachers/nobody",
			expStatus: fiber.StatusNotFound,
			expError:  "teacher not found",
		},
		{
			name:      "unknown slot",
			method:    http.MethodDelete,
			path:      "/api/schedule-slots/nothing",
			expStatus: fiber.StatusNotFound,
			expError:  "schedule slot not found",
		},
		{
			name:      "invalid class",
			method:    http.MethodGet,
			path:      "/api/class-schedules/9/1",
			expStatus: fiber.StatusBadRequest,
		},
		{
			name:      "unknown export",
			method:    http.MethodGet,
			path:      "/api/export/pdf",
			expStatus: fiber.StatusBadRequest,
		},
		{
			name:      "malformed body",
			method:    http.MethodPost,
			path:      "/api/teachers/",
			body:      "not an object",
			expStatus: fiber.StatusBadRequest,
			expError:  "Invalid request body",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			status, resp := ta.do(t, tc.method, tc.path, tc.body)
			if status != tc.expStatus {
				t.Fatalf("expected %d, got %d %v", tc.expStatus, status, resp)
			}
			if tc.expError != "" && resp["error"] != tc.expError {
				t.Fatalf("expected error %q, got %v", tc.expError, resp["error"])
			}
		})
	}
}

func TestSlotEndpoints(t *testing.T) {
	ta := newTestApp(t, false)

	status, resp := ta.do(t, http.MethodPost, "/api/schedule-slots/", map[string]interface{}{
		"teacher_id": "a", "day": "الأحد", "period": 1, "grade": 10, "section": 1,
	})
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d %v", status, resp)
	}
	id := resp["slots"].([]interface{})[0].(map[string]interface{})["id"].(string)

	status, resp = ta.do(t, http.MethodPatch, "/api/schedule-slots/"+id, map[string]interface{}{"period": 3})
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d %v", status, resp)
	}

	status, resp = ta.do(t, http.MethodPost, "/api/schedule-slots/check", map[string]interface{}{
		"scope": map[string]interface{}{"kind": "teacher", "teacher_id": "b"},
		"slots": []interface{}{cell("الأحد", 3, 10, 1)},
	})
	if status != fiber.StatusOK || resp["valid"] != false {
		t.Fatalf("check should report the clash, got %d %v", status, resp)
	}

	status, resp = ta.do(t, http.MethodGet, "/api/class-schedules/10/1", nil)
	schedule, _ := resp["schedule"].([]interface{})
	if status != fiber.StatusOK || len(schedule) != 1 {
		t.Fatalf("expected one class entry, got %d %v", status, resp)
	}

	status, _ = ta.do(t, http.MethodDelete, "/api/schedule-slots/", nil)
	if status != fiber.StatusOK {
		t.Fatalf("clear failed with %d", status)
	}
	slots, _ := ta.store.ListSlots(context.Background())
	if len(slots) != 0 {
		t.Fatalf("expected empty timetable, got %d", len(slots))
	}
}

func TestGradeSectionAndReports(t *testing.T) {
	ta := newTestApp(t, false)

	status, resp := ta.do(t, http.MethodPut, "/api/grade-sections/12", map[string]interface{}{"sections": []int{1, 2}})
	if status != fiber.StatusOK || resp["orphaned_slots"].(float64) != 0 {
		t.Fatalf("expected 200, got %d %v", status, resp)
	}

	status, resp = ta.do(t, http.MethodGet, "/api/schedule/gaps", nil)
	// 7 + 7 fallback sections plus 2 configured, all empty
	if status != fiber.StatusOK || resp["count"].(float64) != 16 {
		t.Fatalf("unexpected gaps %d %v", status, resp["count"])
	}

	status, resp = ta.do(t, http.MethodGet, "/api/schedule/load", nil)
	if status != fiber.StatusOK || len(resp["teachers"].([]interface{})) != 2 {
		t.Fatalf("unexpected load %d %v", status, resp)
	}

	status, resp = ta.do(t, http.MethodGet, "/api/health", nil)
	if status != fiber.StatusOK || resp["status"] != "ok" {
		t.Fatalf("unexpected health %d %v", status, resp)
	}
}

func (ta *testApp) importGrid(t *testing.T, csv string) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "grid.csv")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	fw.Write([]byte(csv))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/import-excel", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return ta.send(t, req)
}

func gridCSV(rows ...[]string) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("header\n", services.GridFirstRow-1))
	for _, row := range rows {
		b.WriteString(strings.Join(row, ",") + "\n")
	}
	return b.String()
}

func gridLine(name, subject string, cells map[int]string) []string {
	row := make([]string, services.GridTeacherCol)
	row[services.GridSubjectCol-1] = subject
	row[services.GridTeacherCol-1] = name
	for period, text := range cells {
		row[services.GridColumn("الأحد", period)-1] = text
	}
	return row
}

func TestImportAndExport(t *testing.T) {
	ta := newTestApp(t, false)

	csv := gridCSV(gridLine("سعيد", "عربي", map[int]string{1: "10/1"}))

	status, resp := ta.importGrid(t, csv)
	if status != fiber.StatusOK {
		t.Fatalf("import failed: %d %v", status, resp)
	}
	teachers, _ := ta.store.ListTeachers(context.Background())
	if len(teachers) != 1 || teachers[0].Name != "سعيد" {
		t.Fatalf("roster should be replaced, got %+v", teachers)
	}

	exportReq := httptest.NewRequest(http.MethodGet, "/api/export/master", nil)
	res, err := ta.app.Test(exportReq, -1)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != fiber.StatusOK || !strings.Contains(res.Header.Get("Content-Disposition"), "master_schedule.xlsx") {
		t.Fatalf("unexpected export response %d %v", res.StatusCode, res.Header)
	}

	status, resp = ta.do(t, http.MethodGet, "/api/audit", nil)
	entries, _ := resp["entries"].([]interface{})
	if status != fiber.StatusOK || len(entries) == 0 {
		t.Fatalf("expected the import in the audit trail, got %d %v", status, resp)
	}
	for _, e := range entries {
		if action, _ := e.(map[string]interface{})["action"].(string); strings.HasPrefix(action, "export") {
			t.Fatalf("a plain download must not be audited, got %v", e)
		}
	}
}

func TestImportValidationKeepsParseReport(t *testing.T) {
	ta := newTestApp(t, false)
	csv := gridCSV(gridLine("سعيد", "علم الفلك", map[int]string{1: "10/9", 2: "غير مفهوم"}))

	status, resp := ta.importGrid(t, csv)
	if status != fiber.StatusBadRequest || resp["error"] != "validation_failed" {
		t.Fatalf("expected validation failure, got %d %v", status, resp)
	}
	for _, field := range []string{"unknown_sections", "warnings", "unparsed"} {
		if list, _ := resp[field].([]interface{}); len(list) == 0 {
			t.Fatalf("expected %s in the response, got %v", field, resp)
		}
	}
	teachers, _ := ta.store.ListTeachers(context.Background())
	if len(teachers) != 2 {
		t.Fatalf("a refused import must keep the roster, got %+v", teachers)
	}
}

func TestAuthGuardsWrites(t *testing.T) {
	ta := newTestApp(t, true)
	body := map[string]interface{}{"slots": []interface{}{cell("الأحد", 1, 10, 1)}}

	status, _ := ta.do(t, http.MethodPost, "/api/teachers/a/schedule-slots/batch", body)
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}
	status, _ = ta.do(t, http.MethodGet, "/api/teachers/", nil)
	if status != fiber.StatusOK {
		t.Fatalf("reads stay public, got %d", status)
	}

	status, _ = ta.do(t, http.MethodPost, "/api/auth/login", map[string]string{"username": "admin", "password": "wrong"})
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", status)
	}
	status, resp := ta.do(t, http.MethodPost, "/api/auth/login", map[string]string{"username": "admin", "password": "s3cret"})
	if status != fiber.StatusOK {
		t.Fatalf("login failed: %d %v", status, resp)
	}
	token := resp["token"].(string)

	status, resp = ta.do(t, http.MethodPost, "/api/teachers/a/schedule-slots/batch", body, "Authorization", "Bearer "+token)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 with token, got %d %v", status, resp)
	}

	entries, _ := ta.audit.List(context.Background(), 10)
	if len(entries) == 0 || entries[0].Actor != "admin" {
		t.Fatalf("write should be attributed to admin, got %+v", entries)
	}
}

func TestExportArchiveRequiresAdmin(t *testing.T) {
	ta := newTestApp(t, true)
	uploader := &memoryUploader{}
	ta.exporter.SetArchiver(uploader, ta.audit)

	// Downloads stay public and never write, whatever the query says.
	req := httptest.NewRequest(http.MethodGet, "/api/export/master?archive=true", nil)
	res, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != fiber.StatusOK {
		t.Fatalf("expected public download, got %d", res.StatusCode)
	}
	if res.Header.Get("X-Archive-URL") != "" || res.Header.Get("X-Archive-Error") != "" {
		t.Fatalf("download must not archive, got headers %v", res.Header)
	}

	status, _ := ta.do(t, http.MethodPost, "/api/export/master/archive", nil)
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous archive, got %d", status)
	}
	if len(uploader.keys) != 0 {
		t.Fatalf("anonymous requests uploaded %v", uploader.keys)
	}
	if entries, _ := ta.audit.List(context.Background(), 10); len(entries) != 0 {
		t.Fatalf("anonymous requests wrote audit entries: %+v", entries)
	}

	status, resp := ta.do(t, http.MethodPost, "/api/auth/login", map[string]string{"username": "admin", "password": "s3cret"})
	if status != fiber.StatusOK {
		t.Fatalf("login failed: %d %v", status, resp)
	}
	token := resp["token"].(string)

	status, resp = ta.do(t, http.MethodPost, "/api/export/master/archive", nil, "Authorization", "Bearer "+token)
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d %v", status, resp)
	}
	if len(uploader.keys) != 1 {
		t.Fatalf("expected one upload, got %v", uploader.keys)
	}
	entries, _ := ta.audit.List(context.Background(), 10)
	if len(entries) == 0 || entries[0].Actor != "admin" || entries[0].Action != "export.master.archive" {
		t.Fatalf("archive should be audited as admin, got %+v", entries)
	}
}

func TestExportArchiveWithoutStorage(t *testing.T) {
	ta := newTestApp(t, false)
	status, resp := ta.do(t, http.MethodPost, "/api/export/teachers/archive", nil)
	if status != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503 without archive storage, got %d %v", status, resp)
	}
}
