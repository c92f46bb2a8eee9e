package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/recordsql/recordsql/internal/storage"
)

func TestPutPlacesArtifactUnderPrefix(t *testing.T) {
	api := &fakeAPI{objects: map[string]string{}}
	store := newStore("recordsql", "/vector_db/v2/", api)

	info, err := store.Put(context.Background(), "cricket_player_index.parquet", bytes.NewBufferString("abc"), 3, storage.PutOptions{ContentType: "application/vnd.apache.parquet"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if info.Key != "cricket_player_index.parquet" || info.Size != 3 {
		t.Fatalf("Put() info = %+v", info)
	}
	if api.objects["recordsql/vector_db/v2/cricket_player_index.parquet"] != "abc" {
		t.Fatalf("objects = %v", api.objects)
	}
}

func TestRejectsNestedKeys(t *testing.T) {
	store := newStore("recordsql", "", &fakeAPI{objects: map[string]string{}})
	for _, key := range []string{"../secrets.txt", "a/b.parquet", "", ".."} {
		if _, err := store.Put(context.Background(), key, bytes.NewBufferString("x"), 1, storage.PutOptions{}); err == nil {
			t.Fatalf("Put(%q) expected key validation error", key)
		}
	}
}

func TestGetRoundTripAndMissingArtifact(t *testing.T) {
	api := &fakeAPI{objects: map[string]string{"recordsql/vector_db/soccer_team_ids.parquet": "ids"}}
	store := newStore("recordsql", "vector_db", api)

	data, err := storage.ReadObject(context.Background(), store, "soccer_team_ids.parquet")
	if err != nil {
		t.Fatalf("ReadObject() error = %v", err)
	}
	if string(data) != "ids" {
		t.Fatalf("ReadObject() = %q", data)
	}

	_, err = store.Get(context.Background(), "soccer_team_index.parquet")
	if !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() error = %v, want ErrObjectNotFound", err)
	}
	if !strings.Contains(err.Error(), "s3://recordsql/vector_db/soccer_team_index.parquet") {
		t.Fatalf("Get() error = %v, want artifact URI", err)
	}
}

func TestStatKeepsArtifactKey(t *testing.T) {
	api := &fakeAPI{objects: map[string]string{"recordsql/baseball_player_ids.parquet": "12345"}}
	info, err := newStore("recordsql", "", api).Stat(context.Background(), "baseball_player_ids.parquet")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Key != "baseball_player_ids.parquet" || info.Size != 5 {
		t.Fatalf("Stat() = %+v", info)
	}
}

func TestCheckBucket(t *testing.T) {
	api := &fakeAPI{}
	store := newStore("recordsql", "", api)
	if err := store.checkBucket(context.Background(), "us-east-1", false); err == nil {
		t.Fatal("checkBucket() expected error for missing bucket")
	}
	if err := store.checkBucket(context.Background(), "us-east-1", true); err != nil {
		t.Fatalf("checkBucket() error = %v", err)
	}
	if !api.bucketMade {
		t.Fatal("expected MakeBucket to be called")
	}
}

func TestURI(t *testing.T) {
	store := newStore("recordsql", "/vector_db/", &fakeAPI{})
	if got := store.URI("baseball_team_index.parquet"); got != "s3://recordsql/vector_db/baseball_team_index.parquet" {
		t.Fatalf("URI() = %q", got)
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		raw    string
		useSSL bool
		host   string
		secure bool
	}{
		{raw: "https://minio.example.com", host: "minio.example.com", secure: true},
		{raw: "http://minio:9000", useSSL: true, host: "minio:9000", secure: true},
		{raw: "localhost:9000", host: "localhost:9000"},
	}
	for _, tt := range tests {
		host, secure, err := parseEndpoint(tt.raw, tt.useSSL)
		if err != nil {
			t.Fatalf("parseEndpoint(%q) error = %v", tt.raw, err)
		}
		if host != tt.host || secure != tt.secure {
			t.Fatalf("parseEndpoint(%q) = %q/%v", tt.raw, host, secure)
		}
	}
	if _, _, err := parseEndpoint(" ", false); err == nil {
		t.Fatal("parseEndpoint() expected error for empty endpoint")
	}
}

// fakeAPI keeps objects in memory keyed by bucket/object.
type fakeAPI struct {
	objects    map[string]string
	bucketMade bool
}

func (f *fakeAPI) PutObject(_ context.Context, bucket, object string, body io.Reader, _ int64, _ string) (int64, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return 0, err
	}
	f.objects[bucket+"/"+object] = string(data)
	return int64(len(data)), nil
}

func (f *fakeAPI) GetObject(_ context.Context, bucket, object string) (io.ReadCloser, error) {
	data, ok := f.objects[bucket+"/"+object]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func (f *fakeAPI) StatObject(_ context.Context, bucket, object string) (storage.ObjectInfo, error) {
	data, ok := f.objects[bucket+"/"+object]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Size: int64(len(data))}, nil
}

func (f *fakeAPI) BucketExists(context.Context, string) (bool, error) {
	return f.bucketMade, nil
}

func (f *fakeAPI) MakeBucket(context.Context, string, string) error {
	f.bucketMade = true
	return nil
}
