package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lemur-data/lemur-engine/pkg/database"
	"github.com/lemur-data/lemur-engine/pkg/llm"
	"github.com/lemur-data/lemur-engine/pkg/repositories"
	"github.com/lemur-data/lemur-engine/pkg/services"
	"github.com/lemur-data/lemur-engine/pkg/storage"
)

const (
	customersCSV = "customer_id,name\n1,Ada\n2,Bo\n3,Cy\n"
	paymentsCSV  = "payment_id,customer_id\n10,1\n11,2\n12,2\n"
	citiesCSV    = "city,population\nOslo,700000\nRome,2800000\n"
)

// testAPI wires every REST handler over in-memory services.
type testAPI struct {
	mux      *http.ServeMux
	projects services.ProjectService
	datasets services.DatasetService
	llm      *llm.MockChatClient
}

// newTestAPI builds the API. Pass withLLM=false to leave chat without a provider.
func newTestAPI(t *testing.T, withLLM bool) *testAPI {
	t.Helper()
	logger := zap.NewNop()

	store := repositories.NewMemoryStore()
	cache := repositories.NewMemoryProfileCache()
	locks := services.NewProjectLocks()
	projects := services.NewProjectService(store, cache, locks, logger)
	datasets := services.NewDatasetService(store, cache, storage.NewNoopArchive(), locks, services.DefaultAnalysisPolicy(), logger)

	api := &testAPI{mux: http.NewServeMux(), projects: projects, datasets: datasets}

	var client llm.ChatClient
	if withLLM {
		api.llm = llm.NewMockChatClient()
		client = api.llm
	}
	chat := services.NewChatService(projects, datasets, store.Conversations, client, logger)

	NewProjectsHandler(projects, logger).RegisterRoutes(api.mux, database.PassThrough)
	NewDatasetsHandler(datasets, logger).RegisterRoutes(api.mux, database.PassThrough)
	NewRelationshipsHandler(datasets, logger).RegisterRoutes(api.mux, database.PassThrough)
	NewJoinsHandler(datasets, logger).RegisterRoutes(api.mux, database.PassThrough)
	NewChatHandler(chat, logger).RegisterRoutes(api.mux, database.PassThrough)
	return api
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) upload(t *testing.T, method, path, fileName, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	return rec
}

// createProject creates a project through the API and returns its id.
func (a *testAPI) createProject(t *testing.T, name string) uuid.UUID {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/projects", map[string]string{"name": name})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create project: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var project ProjectResponse
	decodeData(t, rec, &project)
	return uuid.MustParse(project.ID)
}

// uploadCSV uploads content and returns the new dataset id.
func (a *testAPI) uploadCSV(t *testing.T, projectID uuid.UUID, fileName, content string) string {
	t.Helper()
	rec := a.upload(t, http.MethodPost, "/api/projects/"+projectID.String()+"/datasets", fileName, content)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload %s: expected 201, got %d: %s", fileName, rec.Code, rec.Body.String())
	}
	var result services.IngestResult
	decodeData(t, rec, &result)
	return result.Dataset.ID
}

// decodeData unwraps the ApiResponse envelope into dest.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode response: %v (%s)", err, rec.Body.String())
	}
	if !envelope.Success {
		t.Fatalf("expected success response, got %s", rec.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
}

type errorBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error response: %v (%s)", err, rec.Body.String())
	}
	return body
}
