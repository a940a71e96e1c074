package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second, zap.NewNop())
}

func TestHistory(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/messages/u1/sup-100" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode([]MessageRecord{
			{ID: "m1", Sender: "sup-100", Receiver: "u1", Content: "bom dia", Status: "read"},
			{ID: "m2", Sender: "u1", Receiver: "sup-100", Content: "tudo bem?", Status: "delivered"},
		})
	})

	records, err := c.History(context.Background(), "u1", "sup-100")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].ID != "m1" || records[1].Sender != "u1" {
		t.Errorf("records = %+v", records)
	}
}

func TestHistoryServerError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	})

	_, err := c.History(context.Background(), "u1", "sup-100")
	if err == nil {
		t.Fatal("History() expected error on 500")
	}
}

func TestSendMultipart(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("content"); got != "segue o relatório" {
			t.Errorf("content = %q", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer func() { _ = f.Close() }()
		if hdr.Filename != "report.pdf" {
			t.Errorf("filename = %q", hdr.Filename)
		}
		data, _ := io.ReadAll(f)
		if string(data) != "pdf-bytes" {
			t.Errorf("file data = %q", data)
		}

		_ = json.NewEncoder(w).Encode(MessageRecord{
			ID: "srv-42", Sender: "u1", Receiver: "sup-100",
			Content: "segue o relatório", AttachmentURL: "https://files/report.pdf",
		})
	})

	record, err := c.Send(context.Background(), "u1", "sup-100", "segue o relatório", &Upload{
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		Data:        []byte("pdf-bytes"),
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if record.ID != "srv-42" {
		t.Errorf("server id = %q, want srv-42", record.ID)
	}
	if record.AttachmentURL == "" {
		t.Error("attachment URL missing from response")
	}
}

func TestSendTextOnlyOmitsFilePart(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if _, _, err := r.FormFile("file"); err == nil {
			t.Error("file part present on text-only send")
		}
		_ = json.NewEncoder(w).Encode(MessageRecord{ID: "srv-1", Content: r.FormValue("content")})
	})

	record, err := c.Send(context.Background(), "u1", "sup-100", "oi", nil)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if record.Content != "oi" {
		t.Errorf("content = %q, want oi", record.Content)
	}
}

func TestDeleteAddressing(t *testing.T) {
	var gotPath, gotMethod string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.Delete(context.Background(), "m9", "sup-100"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/chat/messages/m9/sup-100" {
		t.Errorf("got %s %s, want DELETE /chat/messages/m9/sup-100", gotMethod, gotPath)
	}
}

func TestUpdateBody(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["content"] != "corrigido" {
			t.Errorf("content = %q", body["content"])
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	})

	if err := c.Update(context.Background(), "m9", "sup-100", "corrigido"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
}

func TestDirectory(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/supervisors" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode([]Supervisor{
			{EmployeeID: "sup-100", Name: "Ana Costa", CompanyID: "cli-7", Online: true},
		})
	})

	sups, err := c.Directory(context.Background())
	if err != nil {
		t.Fatalf("Directory() error = %v", err)
	}
	if len(sups) != 1 || sups[0].EmployeeID != "sup-100" || !sups[0].Online {
		t.Errorf("sups = %+v", sups)
	}
}

func TestContextCancellation(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := c.History(ctx, "u1", "sup-100"); err == nil {
		t.Fatal("History() expected error on canceled context")
	}
}
