package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/lemur-data/lemur-engine/pkg/models"
	"github.com/lemur-data/lemur-engine/pkg/services"
)

func TestDatasetsHandler_Upload(t *testing.T) {
	api := newTestAPI(t, false)
	projectID := api.createProject(t, "Sales")

	rec := api.upload(t, http.MethodPost, "/api/projects/"+projectID.String()+"/datasets", "customers.csv", customersCSV)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var result services.IngestResult
	decodeData(t, rec, &result)
	if result.Dataset.RowCount != 3 {
		t.Errorf("expected 3 rows, got %d", result.Dataset.RowCount)
	}
	if strings.Join(result.Dataset.Columns, ",") != "customer_id,name" {
		t.Errorf("unexpected columns %v", result.Dataset.Columns)
	}
	if result.Profile == nil || result.Profile.RowCount != 3 {
		t.Error("expected the upload to return a profile")
	}
}

func TestDatasetsHandler_UploadDetectsRelationships(t *testing.T) {
	api := newTestAPI(t, false)
	projectID := api.createProject(t, "Sales")
	customers := api.uploadCSV(t, projectID, "customers.csv", customersCSV)

	rec := api.upload(t, http.MethodPost, "/api/projects/"+projectID.String()+"/datasets", "payments.csv", paymentsCSV)
	var result services.IngestResult
	decodeData(t, rec, &result)

	if len(result.Relationships) == 0 {
		t.Fatal("expected detection to run against the existing dataset")
	}
	top := result.Relationships[0]
	if top.SourceDatasetID != customers || top.SourceColumn != "customer_id" || top.TargetColumn != "customer_id" {
		t.Errorf("unexpected top candidate %+v", top)
	}
}

func TestDatasetsHandler_UploadMalformed(t *testing.T) {
	api := newTestAPI(t, false)
	projectID := api.createProject(t, "Sales")

	rec := api.upload(t, http.MethodPost, "/api/projects/"+projectID.String()+"/datasets", "bad.csv", "a,b\n1,2\n3\n")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
	body := decodeError(t, rec)
	if body.Error != "malformed_table" {
		t.Errorf("expected malformed_table, got %q", body.Error)
	}
	if row, _ := body.Details["row"].(float64); row != 1 {
		t.Errorf("expected row 1 in details, got %v", body.Details["row"])
	}
}

func TestDatasetsHandler_UploadRequiresCSV(t *testing.T) {
	api := newTestAPI(t, false)
	projectID := api.createProject(t, "Sales")

	rec := api.upload(t, http.MethodPost, "/api/projects/"+projectID.String()+"/datasets", "data.xlsx", "whatever")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "unsupported_file_type" {
		t.Errorf("expected unsupported_file_type, got %q", body.Error)
	}
}

func TestDatasetsHandler_UploadMissingFile(t *testing.T) {
	api := newTestAPI(t, false)
	projectID := api.createProject(t, "Sales")

	rec := api.do(t, http.MethodPost, "/api/projects/"+projectID.String()+"/datasets", `{"name":"x"}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestDatasetsHandler_IngestRecords(t *testing.T) {
	api := newTestAPI(t, false)
	projectID := api.createProject(t, "Sales")

	body := `{"name":"orders","rows":[{"order_id":1,"total":9.5},{"order_id":2,"total":null}]}`
	rec := api.do(t, http.MethodPost, "/api/projects/"+projectID.String()+"/datasets/records", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var result services.IngestResult
	decodeData(t, rec, &result)
	if result.Dataset.DisplayName != "orders" || result.Dataset.RowCount != 2 {
		t.Errorf("unexpected dataset %+v", result.Dataset)
	}
}

func TestDatasetsHandler_IngestRecordsRequiresName(t *testing.T) {
	api := newTestAPI(t, false)
	projectID := api.createProject(t, "Sales")

	rec := api.do(t, http.MethodPost, "/api/projects/"+projectID.String()+"/datasets/records", `{"rows":[]}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestDatasetsHandler_ListAndGet(t *testing.T) {
	api := newTestAPI(t, false)
	projectID := api.createProject(t, "Sales")
	id := api.uploadCSV(t, projectID, "customers.csv", customersCSV)
	base := "/api/projects/" + projectID.String() + "/datasets"

	var list []models.DatasetSummary
	decodeData(t, api.do(t, http.MethodGet, base, nil), &list)
	if len(list) != 1 || list[0].ID != id {
		t.Fatalf("unexpected list %+v", list)
	}

	var summary models.DatasetSummary
	decodeData(t, api.do(t, http.MethodGet, base+"/"+id, nil), &summary)
	if summary.DisplayName != "customers.csv" {
		t.Errorf("expected display name customers.csv, got %q", summary.DisplayName)
	}
	if len(summary.Roles) != 2 || summary.Roles[0] != models.RoleIdentifier {
		t.Errorf("expected customer_id to be an identifier, got %v", summary.Roles)
	}
}

func TestDatasetsHandler_GetUnknown(t *testing.T) {
	api := newTestAPI(t, false)
	projectID := api.createProject(t, "Sales")

	rec := api.do(t, http.MethodGet, "/api/projects/"+projectID.String()+"/datasets/missing", nil)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "dataset_not_found" {
		t.Errorf("expected dataset_not_found, got %q", body.Error)
	}
}

func TestDatasetsHandler_Preview(t *testing.T) {
	api := newTestAPI(t, false)
	projectID := api.createProject(t, "Sales")
	id := api.uploadCSV(t, projectID, "customers.csv", customersCSV)

	rec := api.do(t, http.MethodGet, "/api/projects/"+projectID.String()+"/datasets/"+id+"/preview?rows=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var preview services.DatasetPreview
	decodeData(t, rec, &preview)
	if len(preview.Rows) != 2 {
		t.Errorf("expected 2 rows, got %d", len(preview.Rows))
	}
	if preview.TotalRows != 3 {
		t.Errorf("expected total 3, got %d", preview.TotalRows)
	}
	if name, _ := preview.Rows[0].Get("name"); name.String() != "Ada" {
		t.Errorf("expected first name Ada, got %v", name)
	}
}

func TestDatasetsHandler_PreviewBadRows(t *testing.T) {
	api := newTestAPI(t, false)
	projectID := api.createProject(t, "Sales")
	id := api.uploadCSV(t, projectID, "customers.csv", customersCSV)

	rec := api.do(t, http.MethodGet, "/api/projects/"+projectID.String()+"/datasets/"+id+"/preview?rows=lots", nil)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestDatasetsHandler_Profile(t *testing.T) {
	api := newTestAPI(t, false)
	projectID := api.createProject(t, "Sales")
	id := api.uploadCSV(t, projectID, "customers.csv", customersCSV)

	rec := api.do(t, http.MethodGet, "/api/projects/"+projectID.String()+"/datasets/"+id+"/profile", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var profile models.DatasetProfile
	decodeData(t, rec, &profile)
	if profile.DatasetID != id || len(profile.Columns) != 2 {
		t.Errorf("unexpected profile %+v", profile)
	}
}

func TestDatasetsHandler_Replace(t *testing.T) {
	api := newTestAPI(t, false)
	projectID := api.createProject(t, "Sales")
	oldID := api.uploadCSV(t, projectID, "customers.csv", customersCSV)
	base := "/api/projects/" + projectID.String() + "/datasets/"

	rec := api.upload(t, http.MethodPut, base+oldID, "customers.csv", customersCSV+"4,Di\n")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var result services.IngestResult
	decodeData(t, rec, &result)
	if result.ReplacedID != oldID {
		t.Errorf("expected replaced id %s, got %s", oldID, result.ReplacedID)
	}
	if result.Dataset.ID == oldID || result.Dataset.RowCount != 4 {
		t.Errorf("expected a fresh dataset with 4 rows, got %+v", result.Dataset)
	}

	if rec := api.do(t, http.MethodGet, base+oldID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected old id to 404, got %d", rec.Code)
	}
}

func TestDatasetsHandler_Remove(t *testing.T) {
	api := newTestAPI(t, false)
	projectID := api.createProject(t, "Sales")
	id := api.uploadCSV(t, projectID, "customers.csv", customersCSV)
	path := "/api/projects/" + projectID.String() + "/datasets/" + id

	if rec := api.do(t, http.MethodDelete, path, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if rec := api.do(t, http.MethodDelete, path, nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected second delete to 404, got %d", rec.Code)
	}
}

func TestDatasetsHandler_UnknownProject(t *testing.T) {
	api := newTestAPI(t, false)

	rec := api.upload(t, http.MethodPost, "/api/projects/"+uuid.New().String()+"/datasets", "customers.csv", customersCSV)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}
