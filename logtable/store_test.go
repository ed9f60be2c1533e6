package logtable

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/justapithecus/mk0link/log"
	"github.com/justapithecus/mk0link/metrics"
)

func writeTable(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write table: %v", err)
	}
}

func TestStore_LoadMissingFileIsEmpty(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewLoggerWithOptions(nil, &buf, log.Options{})
	path := filepath.Join(t.TempDir(), "log_table.json")

	store := NewStore(FileSource{Path: path}, logger, nil)
	if err := store.Load(t.Context()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if store.Table().Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Table().Len())
	}
	if !strings.Contains(buf.String(), "Log table file not found") {
		t.Errorf("expected warning, got %q", buf.String())
	}
}

func TestStore_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log_table.json")
	writeTable(t, path, sampleTable)

	store := NewStore(FileSource{Path: path}, nil, nil)
	if err := store.Load(t.Context()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if store.Table().Len() != 2 {
		t.Errorf("Len() = %d, want 2", store.Table().Len())
	}
}

func TestStore_ReloadFailureKeepsTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log_table.json")
	writeTable(t, path, sampleTable)

	collector := metrics.NewCollector("", "", "", "")
	store := NewStore(FileSource{Path: path}, nil, collector)
	if err := store.Reload(t.Context()); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	before := store.Table()

	writeTable(t, path, "{broken")
	if err := store.Reload(t.Context()); err == nil {
		t.Fatal("expected reload error")
	}
	if store.Table() != before {
		t.Error("failed reload replaced the table")
	}

	s := collector.Snapshot()
	if s.TableReloads != 1 || s.TableReloadFailures != 1 {
		t.Errorf("reloads = %d, failures = %d, want 1 and 1", s.TableReloads, s.TableReloadFailures)
	}
}

func TestStore_ReloadReplacesWholeTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log_table.json")
	writeTable(t, path, sampleTable)

	store := NewStore(FileSource{Path: path}, nil, nil)
	if err := store.Load(t.Context()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	writeTable(t, path, `{"5": {"msg": "only", "latest_version": "2.0.0"}}`)
	if err := store.Reload(t.Context()); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if store.Table().Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Table().Len())
	}
	if _, ok := store.Table().Lookup(12); ok {
		t.Error("old entry survived reload")
	}
}

func TestStore_ConcurrentReadersDuringSwap(t *testing.T) {
	small, _ := Parse([]byte(`{"1": {"msg": "a", "latest_version": "1"}}`))
	large, _ := Parse([]byte(sampleTable))
	store := NewStaticStore(small)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				if n := store.Table().Len(); n != 1 && n != 2 {
					t.Errorf("observed table of size %d", n)
					return
				}
			}
		}()
	}
	for i := range 1000 {
		if i%2 == 0 {
			store.Swap(large)
		} else {
			store.Swap(small)
		}
	}
	wg.Wait()
}

type fakeS3 struct {
	body  string
	err   error
	input *s3.GetObjectInput
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestS3Source_Fetch(t *testing.T) {
	client := &fakeS3{body: sampleTable}
	source := NewS3Source(client, "firmware", "mk0/log_table.json")

	store := NewStore(source, nil, nil)
	if err := store.Load(t.Context()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if store.Table().Len() != 2 {
		t.Errorf("Len() = %d, want 2", store.Table().Len())
	}
	if *client.input.Bucket != "firmware" || *client.input.Key != "mk0/log_table.json" {
		t.Errorf("request = %s/%s", *client.input.Bucket, *client.input.Key)
	}
	if source.String() != "s3://firmware/mk0/log_table.json" {
		t.Errorf("String() = %q", source.String())
	}
}

func TestS3Source_NoSuchKey(t *testing.T) {
	source := NewS3Source(&fakeS3{err: &s3types.NoSuchKey{}}, "b", "k")

	_, err := source.Fetch(t.Context())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestS3Config_Validate(t *testing.T) {
	if err := (&S3Config{Bucket: "b"}).Validate(); err == nil {
		t.Error("expected error for missing key")
	}
	if err := (&S3Config{Key: "k"}).Validate(); err == nil {
		t.Error("expected error for missing bucket")
	}
	if err := (&S3Config{Bucket: "b", Key: "k"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
