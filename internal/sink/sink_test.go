package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pasteup/report"
)

func sample(id string, ts int64) report.Upload {
	return report.Upload{
		ID:        id,
		SessionID: "ses_1",
		Source:    report.SourcePaste,
		Name:      "shot.png",
		Type:      "image/png",
		Size:      42,
		Success:   true,
		Strategy:  "accept-image",
		Attempts:  1,
		Timestamp: ts,
	}
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestStdout_Envelope(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	if err := s.Send(context.Background(), sample("upl_1", 1)); err != nil {
		t.Fatal(err)
	}

	var env struct {
		Type string        `json:"type"`
		Data report.Upload `json:"data"`
	}
	if err := json.Unmarshal(buf.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if env.Type != "upload_complete" || env.Data.ID != "upl_1" || !env.Data.Success {
		t.Errorf("envelope = %+v", env)
	}
}

type failing struct{ err error }

func (f failing) Send(context.Context, report.Upload) error { return f.err }
func (f failing) Close() error                              { return nil }

func TestRouter_FanOut(t *testing.T) {
	var got []string
	cb := NewCallback(func(_ context.Context, u report.Upload) error {
		got = append(got, u.ID)
		return nil
	})
	boom := errors.New("boom")
	r := NewRouter(quiet(), failing{boom}, cb)

	err := r.Send(context.Background(), sample("upl_1", 1))
	if !errors.Is(err, boom) {
		t.Errorf("error: got %v, want boom", err)
	}
	if len(got) != 1 {
		t.Error("a failing sink stopped the others")
	}
	if r.Len() != 2 {
		t.Errorf("Len: got %d", r.Len())
	}
}

func TestCallback_Nil(t *testing.T) {
	if err := NewCallback(nil).Send(context.Background(), sample("x", 1)); err != nil {
		t.Error(err)
	}
}

func TestWebhook_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	var got report.Upload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var env struct {
			Data report.Upload `json:"data"`
		}
		json.NewDecoder(r.Body).Decode(&env)
		got = env.Data
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond), WithWebhookLogger(quiet()))
	if err := w.Send(context.Background(), sample("upl_9", 1)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls: got %d, want 3", calls.Load())
	}
	if got.ID != "upl_9" {
		t.Errorf("payload id: got %q", got.ID)
	}
}

func TestWebhook_Exhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL,
		WithWebhookRetries(2),
		WithWebhookBackoff(time.Millisecond),
		WithWebhookLogger(quiet()))
	if err := w.Send(context.Background(), sample("upl_1", 1)); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 3 {
		t.Errorf("calls: got %d, want 3 (1 + 2 retries)", calls.Load())
	}
}

func TestJournal_SendRecent(t *testing.T) {
	j, err := OpenJournal(":memory:")
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	defer j.Close()
	ctx := context.Background()

	failed := sample("upl_2", 2)
	failed.Success = false
	failed.Reason = report.ReasonNotAcquired
	failed.Error = "upload target not acquired"

	for _, u := range []report.Upload{sample("upl_1", 1), failed, sample("upl_3", 3)} {
		if err := j.Send(ctx, u); err != nil {
			t.Fatalf("Send %s: %v", u.ID, err)
		}
	}

	recent, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].ID != "upl_3" || recent[1].ID != "upl_2" {
		t.Fatalf("recent = %+v", recent)
	}
	if recent[1].Success || recent[1].Reason != report.ReasonNotAcquired || recent[1].Source != report.SourcePaste {
		t.Errorf("round trip lost fields: %+v", recent[1])
	}

	if err := j.Send(ctx, sample("upl_1", 4)); err == nil {
		t.Error("duplicate id accepted")
	}
}

func TestJournal_File(t *testing.T) {
	path := t.TempDir() + "/nested/journal.db"
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	if err := j.Send(context.Background(), sample("upl_1", 1)); err != nil {
		t.Fatal(err)
	}
	j.Close()

	j, err = OpenJournal(path)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	recent, err := j.Recent(context.Background(), 10)
	if err != nil || len(recent) != 1 {
		t.Errorf("reopened journal: %v %v", recent, err)
	}
}
