package output

import (
	"encoding/json"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/minisuite/minisuite/internal/core"
)

// JSONFormatter renders listings as JSON.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) FormatUsers(users []core.User) (string, error) {
	return f.marshal(nonNil(users))
}

func (f *JSONFormatter) FormatBuckets(buckets []core.RateBucket, _ time.Time) (string, error) {
	return f.marshal(nonNil(buckets))
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// YAMLFormatter renders listings as YAML documents.
type YAMLFormatter struct{}

func (f *YAMLFormatter) FormatUsers(users []core.User) (string, error) {
	return marshalYAML(nonNil(users))
}

func (f *YAMLFormatter) FormatBuckets(buckets []core.RateBucket, _ time.Time) (string, error) {
	return marshalYAML(nonNil(buckets))
}

func marshalYAML(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// nonNil keeps empty listings rendered as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
