// Package artifact stores screenshots and result documents on local disk
// under a root that is also served over HTTP.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"pagepilot/internal/config"
	"pagepilot/internal/entity"
	"pagepilot/pkg/apperr"
	"pagepilot/pkg/logg"
)

const (
	storeName = "ArtifactStore"

	defaultScreenshotName = "screenshot"
	defaultResultName     = "result"

	screenshotExt = ".png"
	resultExt     = ".json"

	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]`)

type Store struct {
	root   string
	logger *zap.Logger
	now    func() time.Time
}

type Option func(*Store)

// WithClock replaces the time source used for file names and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

type Params struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
}

func NewStore(params Params) (*Store, error) {
	return New(params.Config.ArtifactConfig.Root, params.Logger)
}

// New creates the store and its screenshots, results and videos directories.
func New(root string, logger *zap.Logger, opts ...Option) (*Store, error) {
	const op = "artifact.New"

	s := &Store{
		root:   root,
		logger: logger.With(zap.String(logg.Layer, storeName)),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	for _, kind := range []entity.ArtifactKind{entity.ArtifactScreenshots, entity.ArtifactResults, entity.ArtifactVideos} {
		if err := os.MkdirAll(s.Dir(kind), 0o755); err != nil {
			return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
				apperr.MetaReason: "mkdir_failed",
				apperr.MetaStage:  apperr.StageArtifact,
			})
		}
	}

	return s, nil
}

func (s *Store) Dir(kind entity.ArtifactKind) string {
	return filepath.Join(s.root, string(kind))
}

// NewScreenshot reserves a file name for a screenshot and returns the path to
// write it to and the public URL it will be served under.
func (s *Store) NewScreenshot(name string) (string, string, error) {
	file := s.fileName(name, defaultScreenshotName, screenshotExt)

	s.logger.Debug("Screenshot reserved", zap.String(logg.Artifact, file))

	return filepath.Join(s.Dir(entity.ArtifactScreenshots), file), publicURL(entity.ArtifactScreenshots, file), nil
}

// SaveResult writes a JSON document holding the page URL, the current time
// and every payload entry in order.
func (s *Store) SaveResult(name, pageURL string, payload *entity.OrderedMap[any]) (string, error) {
	const op = "SaveResult"
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.URL, pageURL))

	doc := entity.NewOrderedMap[any]()
	doc.Set("url", pageURL)
	doc.Set("timestamp", s.now().UTC().Format(timestampLayout))

	if payload != nil {
		for _, key := range payload.Keys() {
			value, _ := payload.Get(key)
			doc.Set(key, value)
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "marshal_failed",
			apperr.MetaStage:  apperr.StageArtifact,
		})
	}

	file := s.fileName(name, defaultResultName, resultExt)

	if err := os.WriteFile(filepath.Join(s.Dir(entity.ArtifactResults), file), data, 0o644); err != nil {
		return "", apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "write_failed",
			apperr.MetaStage:  apperr.StageArtifact,
		})
	}

	logger.Info("Result saved", zap.String(logg.Artifact, file))

	return publicURL(entity.ArtifactResults, file), nil
}

// List returns the artifacts of one kind, newest first.
func (s *Store) List(kind entity.ArtifactKind) ([]entity.Artifact, error) {
	const op = "List"

	var ext string

	switch kind {
	case entity.ArtifactScreenshots:
		ext = screenshotExt
	case entity.ArtifactResults:
		ext = resultExt
	default:
		return nil, apperr.InvalidReqError(op, "kind", fmt.Errorf("unknown artifact kind %q", kind))
	}

	entries, err := os.ReadDir(s.Dir(kind))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []entity.Artifact{}, nil
		}

		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "read_dir_failed",
			apperr.MetaStage:  apperr.StageArtifact,
		})
	}

	artifacts := make([]entity.Artifact, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}

		artifacts = append(artifacts, entity.Artifact{
			Name:    entry.Name(),
			URL:     publicURL(kind, entry.Name()),
			Size:    info.Size(),
			Created: info.ModTime(),
		})
	}

	sort.SliceStable(artifacts, func(i, j int) bool {
		if artifacts[i].Created.Equal(artifacts[j].Created) {
			return artifacts[i].Name > artifacts[j].Name
		}

		return artifacts[i].Created.After(artifacts[j].Created)
	})

	return artifacts, nil
}

func (s *Store) fileName(name, fallback, ext string) string {
	base := SanitizeName(name)
	if base == "" {
		base = fallback
	}

	return fmt.Sprintf("%s_%d%s", base, s.now().UnixMilli(), ext)
}

// SanitizeName replaces every character outside [A-Za-z0-9._-] with an
// underscore.
func SanitizeName(name string) string {
	return unsafeName.ReplaceAllString(strings.TrimSpace(name), "_")
}

func publicURL(kind entity.ArtifactKind, file string) string {
	return "/" + string(kind) + "/" + file
}
