package store

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Collection names served by the application.
const (
	CollectionExercise     = "Exercise"
	CollectionExpert       = "Expert"
	CollectionConsultation = "Consultation"
	CollectionPlaylist     = "Playlist"
	CollectionUser         = "User"
)

//go:embed seeds.yaml
var seedCatalog []byte

type catalog struct {
	Exercises []Exercise `yaml:"exercises"`
	Experts   []Expert   `yaml:"experts"`
}

// DefaultPolicies returns the policy of every application collection, with the
// embedded seed catalog attached to Exercise and Expert.
func DefaultPolicies() (map[string]CollectionPolicy, error) {
	return ParseSeedCatalog(seedCatalog)
}

// ParseSeedCatalog builds the collection policies from a YAML catalog.
func ParseSeedCatalog(data []byte) (map[string]CollectionPolicy, error) {
	var cat catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse seed catalog: %w", err)
	}

	exercises, err := encodeAll(cat.Exercises)
	if err != nil {
		return nil, err
	}
	experts, err := encodeAll(cat.Experts)
	if err != nil {
		return nil, err
	}

	return map[string]CollectionPolicy{
		CollectionExercise:     {Seed: exercises},
		CollectionExpert:       {Seed: experts, UniqueKey: "email"},
		CollectionConsultation: {},
		CollectionPlaylist:     {},
		CollectionUser:         {UniqueKey: "email"},
	}, nil
}

func encodeAll[T any, PT interface {
	*T
	Extensible
}](records []T) ([]Document, error) {
	docs := make([]Document, 0, len(records))
	for _, r := range records {
		d, err := Encode[T, PT](r)
		if err != nil {
			return nil, err
		}
		if d.ID() == "" {
			return nil, fmt.Errorf("seed record without id: %v", d)
		}
		docs = append(docs, d)
	}
	return docs, nil
}
