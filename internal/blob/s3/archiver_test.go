package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/alanyoungcy/signalrelay/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
	err     error
}

func (m *memWriter) Put(_ context.Context, p string, data io.Reader, _ string) error {
	if m.err != nil {
		return m.err
	}
	b, _ := io.ReadAll(data)
	m.objects[p] = b
	return nil
}

func (m *memWriter) PutMultipart(ctx context.Context, p string, data io.Reader, _ int64) error {
	return m.Put(ctx, p, data, jsonlContentType)
}

// Size makes memWriter its own verifier.
func (m *memWriter) Size(_ context.Context, p string) (int64, bool, error) {
	b, ok := m.objects[p]
	return int64(len(b)), ok, nil
}

type memStore struct {
	events  []domain.SignalEvent
	deleted int
}

func (s *memStore) Insert(_ context.Context, ev domain.SignalEvent) error {
	s.events = append(s.events, ev)
	return nil
}

func (s *memStore) ListRecent(context.Context, domain.ListOpts) ([]domain.SignalEvent, error) {
	return s.events, nil
}

func (s *memStore) ListBefore(_ context.Context, before time.Time) ([]domain.SignalEvent, error) {
	var out []domain.SignalEvent
	for _, ev := range s.events {
		if ev.ReceivedAt.Before(before) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *memStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	kept := s.events[:0]
	var n int64
	for _, ev := range s.events {
		if ev.ReceivedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, ev)
	}
	s.events = kept
	s.deleted += int(n)
	return n, nil
}

type memAudit struct{ events []string }

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type ArchiverTestSuite struct {
	suite.Suite
	writer *memWriter
	store  *memStore
	audit  *memAudit
	cutoff time.Time
}

func TestArchiverTestSuite(t *testing.T) {
	suite.Run(t, new(ArchiverTestSuite))
}

func (s *ArchiverTestSuite) SetupTest() {
	s.writer = &memWriter{objects: map[string][]byte{}}
	s.audit = &memAudit{}
	s.cutoff = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	s.store = &memStore{events: []domain.SignalEvent{
		{ID: "old-1", Symbol: "BTCUSDT", Kind: domain.SignalEntryLong, ReceivedAt: s.cutoff.Add(-48 * time.Hour)},
		{ID: "old-2", Symbol: "ETHUSDT", Kind: domain.SignalTP1Hit, ReceivedAt: s.cutoff.Add(-time.Hour)},
		{ID: "new-1", Symbol: "BTCUSDT", Kind: domain.SignalTP1Hit, ReceivedAt: s.cutoff.Add(time.Hour)},
	}}
}

func (s *ArchiverTestSuite) archiver(verify bool) *SignalArchiver {
	var v SizeChecker
	if verify {
		v = s.writer
	}
	return NewSignalArchiver(s.writer, s.store, v, s.audit, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (s *ArchiverTestSuite) TestMovesOldSignals() {
	n, err := s.archiver(true).ArchiveSignals(context.Background(), s.cutoff)
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	s.Require().Len(s.writer.objects, 1)
	for key, body := range s.writer.objects {
		s.True(strings.HasPrefix(key, "archive/signals/2024/01/15/"), key)
		s.True(strings.HasSuffix(key, ".jsonl"), key)

		lines := 0
		sc := bufio.NewScanner(bytes.NewReader(body))
		for sc.Scan() {
			lines++
			s.Contains(sc.Text(), `"id":"old-`)
		}
		s.Equal(2, lines)
	}

	s.Len(s.store.events, 1)
	s.Equal("new-1", s.store.events[0].ID)
	s.Equal([]string{"archive.signals"}, s.audit.events)
}

func (s *ArchiverTestSuite) TestNothingToArchive() {
	n, err := s.archiver(true).ArchiveSignals(context.Background(), s.cutoff.Add(-72*time.Hour))
	s.Require().NoError(err)
	s.Zero(n)
	s.Empty(s.writer.objects)
	s.Empty(s.audit.events)
}

func (s *ArchiverTestSuite) TestUploadFailureKeepsRows() {
	s.writer.err = errors.New("bucket gone")
	_, err := s.archiver(true).ArchiveSignals(context.Background(), s.cutoff)
	s.Error(err)
	s.Len(s.store.events, 3)
	s.Zero(s.store.deleted)
}

type lyingVerifier struct{}

func (lyingVerifier) Size(context.Context, string) (int64, bool, error) { return 0, false, nil }

func (s *ArchiverTestSuite) TestVerificationFailureKeepsRows() {
	a := NewSignalArchiver(s.writer, s.store, lyingVerifier{}, nil, "cold", slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := a.ArchiveSignals(context.Background(), s.cutoff)
	s.Error(err)
	s.Len(s.store.events, 3)
}

func TestArchivePath(t *testing.T) {
	cutoff := time.Date(2024, 3, 5, 23, 0, 0, 0, time.FixedZone("X", -3*3600))
	assert.Equal(t, "cold/signals/2024/03/06/abc.jsonl", archivePath("cold", cutoff, "abc"))
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://e2.example.com", normaliseEndpoint("https://e2.example.com", false))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
}

func TestMarshalJSONL(t *testing.T) {
	b, err := marshalJSONL([]map[string]string{{"a": "<b>"}, {"c": "d"}})
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":\"<b>\"}\n{\"c\":\"d\"}\n", string(b))
}
