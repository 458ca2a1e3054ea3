package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"webpsync/internal/adapter"
	"webpsync/internal/apperr"
	"webpsync/internal/codec"
	"webpsync/internal/model"
	"webpsync/internal/source"
)

type fakeFetcher struct {
	blobs   map[string][]byte
	onFetch func(url string)
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	if hook := f.onFetch; hook != nil {
		f.onFetch = nil
		hook(url)
	}
	data, ok := f.blobs[url]
	if !ok {
		return nil, apperr.New(apperr.KindStorage, "fake.Fetch", fmt.Sprintf("404 untuk %s", url))
	}
	return data, nil
}

type fakeStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	failPrefix string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (s *fakeStore) Upload(_ context.Context, path string, data []byte, opts adapter.UploadOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPrefix != "" && strings.HasPrefix(path, s.failPrefix) {
		return "", apperr.New(apperr.KindStorage, "fake.Upload", "bucket menolak unggahan")
	}
	if _, exists := s.objects[path]; exists && !opts.Upsert {
		return "", adapter.ErrObjectExists
	}
	s.objects[path] = append([]byte(nil), data...)
	return path, nil
}

func (s *fakeStore) PublicURL(path string) string {
	return "https://cdn.example.com/" + path
}

type fakeCodec struct {
	err error
}

func (c fakeCodec) Encode(data []byte, _ codec.Options) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	return data[:len(data)/4], nil
}

type fakeContent struct {
	mu   sync.Mutex
	rows map[string]string
	err  error
}

func newFakeContent() *fakeContent {
	return &fakeContent{rows: make(map[string]string)}
}

func (c *fakeContent) UpdateImageURL(_ context.Context, kind source.Kind, sourceID, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.rows[kind.Table()+"/"+sourceID+"/"+kind.Field()] = url
	return nil
}

func (c *fakeContent) get(kind source.Kind, sourceID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows[kind.Table()+"/"+sourceID+"/"+kind.Field()]
}

type fakeRecords struct {
	mu      sync.Mutex
	records map[string]model.ConversionRecord
	reject  model.ConversionStatus
}

func newFakeRecords(seed ...model.ConversionRecord) *fakeRecords {
	r := &fakeRecords{records: make(map[string]model.ConversionRecord)}
	for _, rec := range seed {
		r.records[rec.ID] = rec
	}
	return r
}

func (r *fakeRecords) Create(_ context.Context, rec *model.ConversionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reject != "" && rec.Status == r.reject {
		return errors.New("deadlock detected")
	}
	r.records[rec.ID] = *rec
	return nil
}

func (r *fakeRecords) Get(_ context.Context, id string) (*model.ConversionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "fake.Get", "catatan konversi tidak ditemukan")
	}
	return &rec, nil
}

func (r *fakeRecords) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	return nil
}

func (r *fakeRecords) UpdateStatus(_ context.Context, id string, status model.ConversionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return errors.New("record not found")
	}
	rec.Status = status
	r.records[id] = rec
	return nil
}

func (r *fakeRecords) List(_ context.Context, filter model.ConversionFilter) ([]model.ConversionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ConversionRecord
	for _, rec := range r.records {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.SourceTable != "" && rec.SourceTable != filter.SourceTable {
			continue
		}
		if filter.SourceID != "" && rec.SourceID != filter.SourceID {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type recordedConversion struct {
	saved   int64
	percent int
}

type fakeMetrics struct {
	calls []recordedConversion
	err   error
}

func (m *fakeMetrics) RecordConversion(_ context.Context, _ time.Time, saved int64, pct int) error {
	m.calls = append(m.calls, recordedConversion{saved: saved, percent: pct})
	return m.err
}

type fakeOrphans struct {
	paths []string
}

func (o *fakeOrphans) Enqueue(_ context.Context, path, _ string) error {
	o.paths = append(o.paths, path)
	return nil
}

type env struct {
	fetcher *fakeFetcher
	store   *fakeStore
	content *fakeContent
	records *fakeRecords
	metrics *fakeMetrics
	orphans *fakeOrphans
	deps    Deps
}

func newEnv(seed ...model.ConversionRecord) *env {
	e := &env{
		fetcher: &fakeFetcher{blobs: make(map[string][]byte)},
		store:   newFakeStore(),
		content: newFakeContent(),
		records: newFakeRecords(seed...),
		metrics: &fakeMetrics{},
		orphans: &fakeOrphans{},
	}

	clock := time.Date(2026, 3, 16, 2, 0, 0, 0, time.UTC)
	seq := 0
	e.deps = Deps{
		Fetcher: e.fetcher,
		Storage: e.store,
		Codec:   fakeCodec{},
		Content: e.content,
		Records: e.records,
		Metrics: e.metrics,
		Orphans: e.orphans,
		Now: func() time.Time {
			clock = clock.Add(time.Millisecond)
			return clock
		},
		NewID: func() string {
			seq++
			return fmt.Sprintf("conv-%03d", seq)
		},
	}
	return e
}

func (e *env) manager() *Manager {
	return NewManager(e.deps)
}
