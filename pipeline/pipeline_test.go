package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cyberinferno/camingest/armed"
	"github.com/cyberinferno/camingest/logger"
	"github.com/cyberinferno/camingest/queue"
	"github.com/cyberinferno/camingest/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDetector struct {
	detections []Detection
	err        error
	calls      int
}

func (d *stubDetector) Detect(context.Context, string, tenant.Detection) ([]Detection, error) {
	d.calls++
	return d.detections, d.err
}

type sentPhoto struct {
	chatID, path, caption string
}

type recordingNotifier struct {
	mu     sync.Mutex
	photos []sentPhoto
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, chatID, path, caption string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.photos = append(n.photos, sentPhoto{chatID: chatID, path: path, caption: caption})
	return n.err
}

func (n *recordingNotifier) SendMessage(context.Context, string, string) error { return nil }

var noon = time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)

func cam1() tenant.Config {
	return tenant.Config{
		ID:           "cam1",
		ChatID:       "-100",
		WorkingStart: "00:00",
		WorkingEnd:   "23:59",
		Armed:        true,
		Detection:    tenant.Detection{Person: true, PersonMinConf: 0.5, Vehicle: true, VehicleMinConf: 0.3},
	}
}

// writeImage creates root/cam1/day1/snap.jpg.
func writeImage(t *testing.T, root string) string {
	t.Helper()
	path := filepath.Join(root, "cam1", "day1", "snap.jpg")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0644))
	return path
}

func TestProcessor_Process(t *testing.T) {
	ctx := context.Background()
	clock := func() time.Time { return noon }

	t.Run("detections are notified and file kept", func(t *testing.T) {
		root := t.TempDir()
		path := writeImage(t, root)
		det := &stubDetector{detections: []Detection{{Label: "car", Confidence: 0.9}, {Label: "person", Confidence: 0.8}}}
		n := &recordingNotifier{}
		p := NewProcessor(root, armed.NewStaticStore(), det, n, clock, logger.NewNop())

		require.NoError(t, p.Process(ctx, queue.Job{Path: path, Tenant: cam1()}))

		require.Len(t, n.photos, 1)
		assert.Equal(t, sentPhoto{chatID: "-100", path: path, caption: "Detected: person, vehicle"}, n.photos[0])
		assert.FileExists(t, path)
	})

	t.Run("positive images are archived per ftp user", func(t *testing.T) {
		root := t.TempDir()
		archiveDir := filepath.Join(t.TempDir(), "positive")
		path := writeImage(t, root)
		tc := cam1()
		tc.User = "willie"
		det := &stubDetector{detections: []Detection{{Label: "person", Confidence: 0.9}}}
		p := NewProcessor(root, armed.NewStaticStore(), det, &recordingNotifier{}, clock, logger.NewNop()).
			WithArchive(archiveDir)

		require.NoError(t, p.Process(ctx, queue.Job{Path: path, Tenant: tc, DeleteAfter: true}))

		data, err := os.ReadFile(filepath.Join(archiveDir, "willie", "20240501_120000_snap.jpg"))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", string(data))
		assert.NoFileExists(t, path)
	})

	t.Run("images without detections are not archived", func(t *testing.T) {
		root := t.TempDir()
		archiveDir := filepath.Join(t.TempDir(), "positive")
		path := writeImage(t, root)
		det := &stubDetector{detections: []Detection{{Label: "person", Confidence: 0.1}}}
		p := NewProcessor(root, armed.NewStaticStore(), det, &recordingNotifier{}, clock, logger.NewNop()).
			WithArchive(archiveDir)

		require.NoError(t, p.Process(ctx, queue.Job{Path: path, Tenant: cam1()}))

		assert.NoDirExists(t, archiveDir)
		assert.FileExists(t, path)
	})

	t.Run("delete after processing removes empty parents", func(t *testing.T) {
		root := t.TempDir()
		path := writeImage(t, root)
		p := NewProcessor(root, armed.NewStaticStore(), &stubDetector{}, &recordingNotifier{}, clock, logger.NewNop())

		require.NoError(t, p.Process(ctx, queue.Job{Path: path, Tenant: cam1(), DeleteAfter: true}))

		assert.NoFileExists(t, path)
		assert.NoDirExists(t, filepath.Join(root, "cam1", "day1"))
		assert.DirExists(t, filepath.Join(root, "cam1"))
	})

	t.Run("disarmed tenant", func(t *testing.T) {
		root := t.TempDir()
		path := writeImage(t, root)
		store := armed.NewStaticStore()
		require.NoError(t, store.SetArmed(ctx, cam1(), false))
		det := &stubDetector{}
		p := NewProcessor(root, store, det, &recordingNotifier{}, clock, logger.NewNop())

		require.NoError(t, p.Process(ctx, queue.Job{Path: path, Tenant: cam1()}))

		assert.Zero(t, det.calls)
		assert.NoFileExists(t, path)
	})

	t.Run("outside working hours at processing time", func(t *testing.T) {
		root := t.TempDir()
		path := writeImage(t, root)
		tc := cam1()
		tc.WorkingStart, tc.WorkingEnd = "19:00", "05:00"
		det := &stubDetector{}
		p := NewProcessor(root, armed.NewStaticStore(), det, &recordingNotifier{}, clock, logger.NewNop())

		require.NoError(t, p.Process(ctx, queue.Job{Path: path, Tenant: tc}))

		assert.Zero(t, det.calls)
		assert.NoFileExists(t, path)
	})

	t.Run("detector failure deletes and reports", func(t *testing.T) {
		root := t.TempDir()
		path := writeImage(t, root)
		boom := errors.New("model unavailable")
		n := &recordingNotifier{}
		p := NewProcessor(root, armed.NewStaticStore(), &stubDetector{err: boom}, n, clock, logger.NewNop())

		err := p.Process(ctx, queue.Job{Path: path, Tenant: cam1()})

		assert.ErrorIs(t, err, boom)
		assert.NoFileExists(t, path)
		assert.Empty(t, n.photos)
	})

	t.Run("notification failure is not fatal", func(t *testing.T) {
		root := t.TempDir()
		path := writeImage(t, root)
		det := &stubDetector{detections: []Detection{{Label: "person", Confidence: 0.9}}}
		n := &recordingNotifier{err: errors.New("telegram down")}
		p := NewProcessor(root, armed.NewStaticStore(), det, n, clock, logger.NewNop())

		require.NoError(t, p.Process(ctx, queue.Job{Path: path, Tenant: cam1(), DeleteAfter: true}))
		assert.NoFileExists(t, path)
	})
}

func TestClassify(t *testing.T) {
	settings := tenant.Detection{Person: true, PersonMinConf: 0.5, Animal: true, AnimalMinConf: 0.2}

	tests := []struct {
		name       string
		detections []Detection
		want       []string
	}{
		{name: "none", want: nil},
		{name: "below threshold", detections: []Detection{{Label: "person", Confidence: 0.5}}, want: nil},
		{name: "disabled class", detections: []Detection{{Label: "truck", Confidence: 0.99}}, want: nil},
		{name: "animal alias", detections: []Detection{{Label: "dog", Confidence: 0.3}}, want: []string{"animal"}},
		{
			name:       "caption order and dedup",
			detections: []Detection{{Label: "cat", Confidence: 0.9}, {Label: "person", Confidence: 0.6}, {Label: "person", Confidence: 0.7}},
			want:       []string{"person", "animal"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.detections, settings))
		})
	}
}

func TestHTTPDetector(t *testing.T) {
	image := filepath.Join(t.TempDir(), "snap.jpg")
	require.NoError(t, os.WriteFile(image, []byte("jpeg-bytes"), 0644))

	t.Run("decodes detections", func(t *testing.T) {
		var gotSettings tenant.Detection
		var gotImage []byte
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseMultipartForm(1<<20))
			require.NoError(t, json.Unmarshal([]byte(r.FormValue("settings")), &gotSettings))
			f, _, err := r.FormFile("image")
			require.NoError(t, err)
			defer f.Close()
			gotImage, _ = io.ReadAll(f)
			_, _ = w.Write([]byte(`[{"label":"person","confidence":0.91}]`))
		}))
		defer srv.Close()

		d := NewHTTPDetector(srv.URL, time.Second)
		dets, err := d.Detect(context.Background(), image, tenant.Detection{Person: true, PersonMinConf: 0.4})
		require.NoError(t, err)

		assert.Equal(t, []Detection{{Label: "person", Confidence: 0.91}}, dets)
		assert.Equal(t, tenant.Detection{Person: true, PersonMinConf: 0.4}, gotSettings)
		assert.Equal(t, []byte("jpeg-bytes"), gotImage)
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewHTTPDetector(srv.URL, time.Second).Detect(context.Background(), image, tenant.Detection{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model not loaded")
	})

	t.Run("nop", func(t *testing.T) {
		dets, err := NopDetector{}.Detect(context.Background(), image, tenant.Detection{})
		assert.NoError(t, err)
		assert.Empty(t, dets)
	})
}

type recordingQueue struct {
	jobs []queue.Job
}

func (q *recordingQueue) Push(_ context.Context, job queue.Job) {
	q.jobs = append(q.jobs, job)
}

func TestSweepLeftovers(t *testing.T) {
	root := t.TempDir()
	files := map[string]bool{
		"cam1/a.jpg":             true,
		"cam1/day1/b.JPEG":       true,
		"cam1/day1/b_marked.jpg": false,
		"cam1/notes.txt":         false,
		"cam2/c.png":             true,
		"other/d.jpg":            false,
	}
	for name := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	}

	tenants := []tenant.Config{{ID: "cam1"}, {ID: "cam2"}, {ID: "cam3"}}
	q := &recordingQueue{}

	n, err := SweepLeftovers(context.Background(), root, tenants, []string{".jpg", ".jpeg", "png"}, q, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var got []string
	for _, job := range q.jobs {
		assert.True(t, job.DeleteAfter)
		rel, err := filepath.Rel(root, job.Path)
		require.NoError(t, err)
		got = append(got, filepath.ToSlash(rel))
		owner, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
		assert.Equal(t, owner, job.Tenant.ID)
	}
	sort.Strings(got)
	assert.Equal(t, []string{"cam1/a.jpg", "cam1/day1/b.JPEG", "cam2/c.png"}, got)

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := SweepLeftovers(ctx, root, tenants, []string{".jpg"}, &recordingQueue{}, logger.NewNop())
		assert.ErrorIs(t, err, context.Canceled)
	})
}
