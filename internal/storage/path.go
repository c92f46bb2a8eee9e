package storage

import (
	"fmt"
	"regexp"
)

type ArtifactKind string

const (
	ArtifactIndex ArtifactKind = "index"
	ArtifactIDs   ArtifactKind = "ids"
)

var pathComponentPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

// BuildArtifactKey names a vector artifact, e.g. cricket_player_index.parquet.
func BuildArtifactKey(sport, entityKind string, artifact ArtifactKind) (string, error) {
	if err := validatePathComponent(sport, "sport"); err != nil {
		return "", err
	}
	if err := validatePathComponent(entityKind, "entity kind"); err != nil {
		return "", err
	}
	switch artifact {
	case ArtifactIndex, ArtifactIDs:
	default:
		return "", fmt.Errorf("invalid artifact kind: %q", artifact)
	}
	return fmt.Sprintf("%s_%s_%s.parquet", sport, entityKind, artifact), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
