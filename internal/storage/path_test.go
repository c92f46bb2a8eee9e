package storage

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestBuildArtifactKey(t *testing.T) {
	key, err := BuildArtifactKey("cricket", "player", ArtifactIndex)
	if err != nil {
		t.Fatalf("BuildArtifactKey() error = %v", err)
	}
	if key != "cricket_player_index.parquet" {
		t.Fatalf("BuildArtifactKey() = %q", key)
	}
	key, err = BuildArtifactKey("soccer", "team", ArtifactIDs)
	if err != nil {
		t.Fatalf("BuildArtifactKey() error = %v", err)
	}
	if key != "soccer_team_ids.parquet" {
		t.Fatalf("BuildArtifactKey() = %q", key)
	}
}

func TestBuildArtifactKeyRejectsInvalidComponent(t *testing.T) {
	if _, err := BuildArtifactKey("../oops", "player", ArtifactIndex); err == nil {
		t.Fatal("expected invalid sport error")
	}
	if _, err := BuildArtifactKey("cricket", "Player", ArtifactIndex); err == nil {
		t.Fatal("expected invalid entity kind error")
	}
	if _, err := BuildArtifactKey("cricket", "player", ArtifactKind("npy")); err == nil {
		t.Fatal("expected invalid artifact kind error")
	}
}

func TestReadObject(t *testing.T) {
	store := stubStore{body: "payload"}
	data, err := ReadObject(context.Background(), store, "k")
	if err != nil {
		t.Fatalf("ReadObject() error = %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("ReadObject() = %q", string(data))
	}
}

type stubStore struct {
	body string
}

func (s stubStore) Put(context.Context, string, io.Reader, int64, PutOptions) (ObjectInfo, error) {
	return ObjectInfo{}, nil
}

func (s stubStore) Get(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(s.body)), nil
}

func (s stubStore) Stat(_ context.Context, key string) (ObjectInfo, error) {
	return ObjectInfo{Key: key, Size: int64(len(s.body))}, nil
}
