package devstate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alphaq-labs/helixr/internal/domain"
)

type fakeStore struct {
	doc         *domain.StateDocument
	latestErr   error
	setErr      error
	modified    int64
	setDocID    string
	setDevice   int
	setValue    int
	setCalled   bool
	latestCalls int
}

func (f *fakeStore) Latest(context.Context) (*domain.StateDocument, error) {
	f.latestCalls++
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	return f.doc, nil
}

func (f *fakeStore) SetActuator(_ context.Context, docID string, device, value int) (int64, error) {
	f.setCalled = true
	f.setDocID = docID
	f.setDevice = device
	f.setValue = value
	return f.modified, f.setErr
}

func (f *fakeStore) Insert(context.Context, *domain.StateDocument) error { return nil }
func (f *fakeStore) Ping(context.Context) error                          { return nil }
func (f *fakeStore) Close() error                                        { return nil }

func snapshot() *domain.StateDocument {
	return &domain.StateDocument{
		ID:        "doc-1",
		Timestamp: time.Now(),
		Actuators: map[int]int{1: 180, 2: 180, 3: 180, 4: 180, 5: 180},
	}
}

func TestApplySuccess(t *testing.T) {
	store := &fakeStore{doc: snapshot(), modified: 1}
	u := NewUpdater(store, nil)

	ok, msg := u.Apply(context.Background(), 3, domain.ActionOpen)
	if !ok {
		t.Fatalf("expected success, got %q", msg)
	}
	if !strings.Contains(msg, "Valve 3") || !strings.Contains(msg, "opened") {
		t.Errorf("unexpected message: %q", msg)
	}
	if store.setDocID != "doc-1" {
		t.Errorf("update targeted %q, want doc-1", store.setDocID)
	}
	if store.setValue != domain.ValveOpenDegrees {
		t.Errorf("set value %d, want %d", store.setValue, domain.ValveOpenDegrees)
	}
}

func TestApplyDeviceOutOfRange(t *testing.T) {
	store := &fakeStore{doc: snapshot(), modified: 1}
	u := NewUpdater(store, nil)

	ok, msg := u.Apply(context.Background(), 6, domain.ActionOpen)
	if ok {
		t.Fatal("expected soft failure for device 6")
	}
	if !strings.Contains(msg, "Valve 6") {
		t.Errorf("message should name the device: %q", msg)
	}
	if store.latestCalls != 0 {
		t.Error("out-of-range device should not touch the store")
	}
}

func TestApplyNoDocument(t *testing.T) {
	store := &fakeStore{latestErr: ErrNoDocument}
	u := NewUpdater(store, nil)

	ok, msg := u.Apply(context.Background(), 1, domain.ActionClose)
	if ok {
		t.Fatal("expected soft failure when store is empty")
	}
	if !strings.Contains(msg, "No recent data document") {
		t.Errorf("unexpected message: %q", msg)
	}
	if store.setCalled {
		t.Error("no update should run without a document")
	}
}

func TestApplyZeroModified(t *testing.T) {
	store := &fakeStore{doc: snapshot(), modified: 0}
	u := NewUpdater(store, nil)

	ok, msg := u.Apply(context.Background(), 2, domain.ActionClose)
	if ok {
		t.Fatal("zero modified documents should be a soft failure")
	}
	if !strings.Contains(msg, "unchanged") {
		t.Errorf("unexpected message: %q", msg)
	}
}

func TestApplyStoreErrors(t *testing.T) {
	t.Run("read failure", func(t *testing.T) {
		store := &fakeStore{latestErr: errors.New("disk gone")}
		u := NewUpdater(store, nil)
		ok, _ := u.Apply(context.Background(), 1, domain.ActionOpen)
		if ok {
			t.Fatal("expected soft failure on read error")
		}
	})

	t.Run("write failure", func(t *testing.T) {
		store := &fakeStore{doc: snapshot(), setErr: errors.New("write denied")}
		u := NewUpdater(store, nil)
		ok, _ := u.Apply(context.Background(), 1, domain.ActionOpen)
		if ok {
			t.Fatal("expected soft failure on write error")
		}
	})
}
