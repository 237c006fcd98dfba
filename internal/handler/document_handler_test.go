package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"ragchat-go/internal/apperr"
	"ragchat-go/internal/model"
	"ragchat-go/pkg/tasks"
)

type fakeIngestService struct {
	ingested   []model.Document
	ingestErr  error
	batchID    string
	asyncErr   error
	deleted    []string
	deleteErr  error
	records    []*model.DocumentRecord
	processErr error
}

func (f *fakeIngestService) Ingest(ctx context.Context, docs []model.Document) (int, error) {
	if f.ingestErr != nil {
		return 0, f.ingestErr
	}
	f.ingested = append(f.ingested, docs...)
	return len(docs), nil
}

func (f *fakeIngestService) IngestAsync(docs []model.Document) (string, error) {
	if f.asyncErr != nil {
		return "", f.asyncErr
	}
	return f.batchID, nil
}

func (f *fakeIngestService) Delete(ctx context.Context, documentID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, documentID)
	return nil
}

func (f *fakeIngestService) List() ([]*model.DocumentRecord, error) {
	return f.records, nil
}

func (f *fakeIngestService) Process(ctx context.Context, task tasks.DocumentIngestTask) error {
	return f.processErr
}

func newDocumentRouter(svc *fakeIngestService) *gin.Engine {
	r := gin.New()
	h := NewDocumentHandler(svc)
	r.POST("/api/v1/documents", h.Ingest)
	r.POST("/api/v1/documents/async", h.IngestAsync)
	r.GET("/api/v1/documents", h.List)
	r.DELETE("/api/v1/documents/:id", h.Delete)
	return r
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestIngest_Success(t *testing.T) {
	svc := &fakeIngestService{}
	router := newDocumentRouter(svc)

	w := doJSON(router, http.MethodPost, "/api/v1/documents",
		`{"documents":[{"id":"doc_1","content":"hello"}]}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(svc.ingested) != 1 || svc.ingested[0].ID != "doc_1" {
		t.Errorf("ingested = %+v", svc.ingested)
	}
	if !strings.Contains(w.Body.String(), `"ingested":1`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestIngest_EmptyBatchRejected(t *testing.T) {
	router := newDocumentRouter(&fakeIngestService{})
	w := doJSON(router, http.MethodPost, "/api/v1/documents", `{"documents":[]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestIngest_ServiceErrorMapped(t *testing.T) {
	svc := &fakeIngestService{ingestErr: fmt.Errorf("%w: document content is empty", apperr.ErrInvalidInput)}
	router := newDocumentRouter(svc)
	w := doJSON(router, http.MethodPost, "/api/v1/documents",
		`{"documents":[{"id":"doc_1","content":""}]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestIngestAsync_Accepted(t *testing.T) {
	svc := &fakeIngestService{batchID: "batch-42"}
	router := newDocumentRouter(svc)

	w := doJSON(router, http.MethodPost, "/api/v1/documents/async",
		`{"documents":[{"id":"doc_1","content":"hello"}]}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"batch_id":"batch-42"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestDelete_Success(t *testing.T) {
	svc := &fakeIngestService{}
	router := newDocumentRouter(svc)

	w := doJSON(router, http.MethodDelete, "/api/v1/documents/doc_9", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(svc.deleted) != 1 || svc.deleted[0] != "doc_9" {
		t.Errorf("deleted = %v", svc.deleted)
	}
}

func TestList_ReturnsRecords(t *testing.T) {
	svc := &fakeIngestService{records: []*model.DocumentRecord{
		{DocumentID: "doc_1", ContentChars: 12},
	}}
	router := newDocumentRouter(svc)

	w := doJSON(router, http.MethodGet, "/api/v1/documents", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "doc_1") {
		t.Errorf("body = %s", w.Body.String())
	}
}
