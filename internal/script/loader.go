package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"pagepilot/internal/entity"
	"pagepilot/pkg/apperr"
)

type Kind string

const (
	KindRun     Kind = "run"
	KindMap     Kind = "map"
	KindExtract Kind = "extract"
)

// Script is one request read from a file. Exactly one of Run, Map and
// Extract is set, matching Kind.
type Script struct {
	Kind    Kind
	Run     *entity.RunRequest
	Map     *entity.MapRequest
	Extract *entity.ExtractRequest
}

type header struct {
	Kind Kind `json:"kind"`
}

// Load reads a .json, .yaml or .yml script. Environment variables in the
// file content are expanded before decoding.
func Load(path string) (*Script, error) {
	const op = "script.Load"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.InvalidReqError(op, "file", fmt.Errorf("read script: %w", err))
	}

	expanded := []byte(os.ExpandEnv(string(data)))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		expanded, err = yamlToJSON(expanded)
		if err != nil {
			return nil, apperr.InvalidReqError(op, "file", fmt.Errorf("parse YAML: %w", err))
		}
	case ".json":
	default:
		return nil, apperr.InvalidReqError(op, "file", fmt.Errorf("unsupported script extension %q", filepath.Ext(path)))
	}

	return Parse(expanded)
}

// Parse decodes a JSON script. A missing kind means run.
func Parse(data []byte) (*Script, error) {
	const op = "script.Parse"

	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, apperr.InvalidReqError(op, "file", fmt.Errorf("parse script: %w", err))
	}

	s := &Script{Kind: h.Kind}
	if s.Kind == "" {
		s.Kind = KindRun
	}

	var target any

	switch s.Kind {
	case KindRun:
		s.Run = &entity.RunRequest{}
		target = s.Run
	case KindMap:
		s.Map = &entity.MapRequest{}
		target = s.Map
	case KindExtract:
		s.Extract = &entity.ExtractRequest{}
		target = s.Extract
	default:
		return nil, apperr.InvalidReqError(op, "kind", fmt.Errorf("unknown script kind %q", s.Kind))
	}

	if err := json.Unmarshal(data, target); err != nil {
		return nil, apperr.InvalidReqError(op, "file", fmt.Errorf("decode %s script: %w", s.Kind, err))
	}

	return s, nil
}

// yamlToJSON re-encodes a YAML document so the JSON decoders of the request
// types, including the action list, apply unchanged.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	if doc == nil {
		return nil, errors.New("script is empty")
	}

	return json.Marshal(doc)
}
