// Package coursepolicy resolves per-course pass thresholds from the policy
// table, an optional YAML file and the configured default, in that order.
package coursepolicy

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/certiva/certiva-engine/internal/domain/course"
)

// File is the on-disk policy document:
//
//	default_pass_threshold: 70
//	courses:
//	  - course_id: go-101
//	    pass_threshold: 80
type File struct {
	DefaultPassThreshold *int            `yaml:"default_pass_threshold"`
	Courses              []course.Policy `yaml:"courses"`
}

// LoadFile reads and validates a policy file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("coursepolicy: read %s: %w", path, err)
	}
	return ParseFile(data)
}

// ParseFile decodes a policy document. Unknown keys are rejected.
func ParseFile(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("coursepolicy: decode: %w", err)
	}

	if f.DefaultPassThreshold != nil {
		if err := course.ValidateThreshold(*f.DefaultPassThreshold); err != nil {
			return nil, fmt.Errorf("coursepolicy: default_pass_threshold: %w", err)
		}
	}

	seen := make(map[string]struct{}, len(f.Courses))
	for i, p := range f.Courses {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("coursepolicy: courses[%d]: %w", i, err)
		}
		if _, dup := seen[p.CourseID]; dup {
			return nil, fmt.Errorf("coursepolicy: courses[%d]: duplicate course_id %q", i, p.CourseID)
		}
		seen[p.CourseID] = struct{}{}
	}
	return &f, nil
}

// Thresholds returns the per-course thresholds as a map.
func (f *File) Thresholds() map[string]int {
	out := make(map[string]int, len(f.Courses))
	for _, p := range f.Courses {
		out[p.CourseID] = p.PassThreshold
	}
	return out
}
