package vectorindex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/parquet-go/parquet-go"

	"github.com/recordsql/recordsql/internal/storage"
)

type vectorRow struct {
	Position  int64     `parquet:"position"`
	Embedding []float32 `parquet:"embedding"`
}

type idRow struct {
	Position int64 `parquet:"position"`
	EntityID int64 `parquet:"entity_id"`
}

const parquetContentType = "application/vnd.apache.parquet"

func EncodeVectors(vectors [][]float32) ([]byte, error) {
	rows := make([]vectorRow, len(vectors))
	for i, vec := range vectors {
		rows[i] = vectorRow{Position: int64(i), Embedding: vec}
	}
	return encodeRows(rows)
}

func EncodeIDs(ids []int64) ([]byte, error) {
	rows := make([]idRow, len(ids))
	for i, id := range ids {
		rows[i] = idRow{Position: int64(i), EntityID: id}
	}
	return encodeRows(rows)
}

func DecodeVectors(data []byte) ([][]float32, error) {
	rows, err := decodeRows[vectorRow](data)
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Position < rows[j].Position })
	out := make([][]float32, len(rows))
	for i, row := range rows {
		if row.Position != int64(i) {
			return nil, fmt.Errorf("vector artifact has gap at position %d", i)
		}
		out[i] = row.Embedding
	}
	return out, nil
}

func DecodeIDs(data []byte) ([]int64, error) {
	rows, err := decodeRows[idRow](data)
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Position < rows[j].Position })
	out := make([]int64, len(rows))
	for i, row := range rows {
		if row.Position != int64(i) {
			return nil, fmt.Errorf("id artifact has gap at position %d", i)
		}
		out[i] = row.EntityID
	}
	return out, nil
}

// Load reads the index and id artifacts of one sport and entity kind.
func Load(ctx context.Context, store storage.ObjectStore, sport string, kind EntityKind) (*FlatIndex, error) {
	indexKey, err := storage.BuildArtifactKey(sport, string(kind), storage.ArtifactIndex)
	if err != nil {
		return nil, err
	}
	idsKey, err := storage.BuildArtifactKey(sport, string(kind), storage.ArtifactIDs)
	if err != nil {
		return nil, err
	}

	indexData, err := storage.ReadObject(ctx, store, indexKey)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", indexKey, err)
	}
	idsData, err := storage.ReadObject(ctx, store, idsKey)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", idsKey, err)
	}
	vectors, err := DecodeVectors(indexData)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", indexKey, err)
	}
	ids, err := DecodeIDs(idsData)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", idsKey, err)
	}
	return NewFlatIndex(vectors, ids)
}

// Save writes the index and id artifacts of one sport and entity kind.
func Save(ctx context.Context, store storage.ObjectStore, sport string, kind EntityKind, vectors [][]float32, ids []int64) error {
	if len(vectors) != len(ids) {
		return fmt.Errorf("index has %d vectors but %d ids", len(vectors), len(ids))
	}
	indexKey, err := storage.BuildArtifactKey(sport, string(kind), storage.ArtifactIndex)
	if err != nil {
		return err
	}
	idsKey, err := storage.BuildArtifactKey(sport, string(kind), storage.ArtifactIDs)
	if err != nil {
		return err
	}
	indexData, err := EncodeVectors(vectors)
	if err != nil {
		return err
	}
	idsData, err := EncodeIDs(ids)
	if err != nil {
		return err
	}
	if _, err := store.Put(ctx, indexKey, bytes.NewReader(indexData), int64(len(indexData)), storage.PutOptions{ContentType: parquetContentType}); err != nil {
		return fmt.Errorf("store %s: %w", indexKey, err)
	}
	if _, err := store.Put(ctx, idsKey, bytes.NewReader(idsData), int64(len(idsData)), storage.PutOptions{ContentType: parquetContentType}); err != nil {
		return fmt.Errorf("store %s: %w", idsKey, err)
	}
	return nil
}

func encodeRows[T any](rows []T) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[T](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeRows[T any](data []byte) ([]T, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("parquet artifact is empty")
	}
	reader := parquet.NewGenericReader[T](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()

	rows := make([]T, reader.NumRows())
	if len(rows) == 0 {
		return rows, nil
	}
	count, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}
	return rows[:count], nil
}
