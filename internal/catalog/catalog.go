package catalog

/*
Файл catalog.go — YAML-каталог эндпоинтов (Config Store).

Каталог авторитетен для декларативных полей. priority и quality_score в нем необязательны:
они нужны только эндпоинтам, которых еще нет в хранилище статистики.
Путь — файл или каталог; из каталога читаются все *.yaml / *.yml в лексикографическом порядке.
*/

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xela07ax/mdrouter/internal/domain"
	"gopkg.in/yaml.v3"
)

type document struct {
	Endpoints []record `yaml:"endpoints"`
}

// record — YAML-форма эндпоинта
type record struct {
	ID                  string              `yaml:"id"`
	SourceName          string              `yaml:"source_name"`
	SourceType          string              `yaml:"source_type"`
	DataCategory        string              `yaml:"data_category"`
	ClassificationLevel int                 `yaml:"classification_level"`
	TargetStore         string              `yaml:"target_store"`
	TableName           string              `yaml:"table_name"`
	ParameterSchema     map[string]any      `yaml:"parameter_schema"`
	TestParameters      map[string]any      `yaml:"test_parameters"`
	QualityRules        domain.QualityRules `yaml:"quality_rules"`
	UpdateSchedule      string              `yaml:"update_schedule"`
	Tags                []string            `yaml:"tags"`
	Version             string              `yaml:"version"`
	Description         string              `yaml:"description"`
	Status              string              `yaml:"status"`
	Connection          map[string]string   `yaml:"connection"`

	Priority     *int     `yaml:"priority"`
	QualityScore *float64 `yaml:"quality_score"`
}

// Значения по умолчанию для новых эндпоинтов без явных priority/quality_score
const (
	DefaultPriority     = 100
	DefaultQualityScore = 5.0
)

func (r record) endpoint() domain.Endpoint {
	ep := domain.Endpoint{
		ID:                  r.ID,
		SourceName:          r.SourceName,
		SourceType:          r.SourceType,
		DataCategory:        r.DataCategory,
		ClassificationLevel: r.ClassificationLevel,
		TargetStore:         r.TargetStore,
		TableName:           r.TableName,
		ParameterSchema:     r.ParameterSchema,
		TestParameters:      r.TestParameters,
		QualityRules:        r.QualityRules,
		UpdateSchedule:      r.UpdateSchedule,
		Tags:                r.Tags,
		Version:             r.Version,
		Description:         r.Description,
		Status:              domain.EndpointStatus(r.Status),
		Connection:          r.Connection,
		Priority:            DefaultPriority,
		QualityScore:        DefaultQualityScore,
		HealthStatus:        domain.HealthUnknown,
	}
	if ep.Status == "" {
		ep.Status = domain.StatusActive
	}
	if r.Priority != nil {
		ep.Priority = *r.Priority
	}
	if r.QualityScore != nil {
		ep.QualityScore = *r.QualityScore
	}
	return ep
}

// FileStore читает каталог с диска на каждый LoadEndpoints: перезагрузка реестра видит свежий файл
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

// LoadEndpoints читает и валидирует каталог
func (s *FileStore) LoadEndpoints(ctx context.Context) ([]domain.Endpoint, error) {
	files, err := s.files()
	if err != nil {
		return nil, err
	}

	var out []domain.Endpoint
	seen := make(map[string]string)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			if prev, dup := seen[r.ID]; dup {
				return nil, fmt.Errorf("catalog: duplicate endpoint id %q in %s (first seen in %s)", r.ID, f, prev)
			}
			seen[r.ID] = f
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *FileStore) files() ([]string, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if !info.IsDir() {
		return []string{s.path}, nil
	}

	entries, err := os.ReadDir(s.path)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %s: %w", s.path, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(s.path, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// LoadFile разбирает один YAML-файл каталога
func LoadFile(path string) ([]domain.Endpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %s: %w", path, err)
	}
	eps, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog: parsing %s: %w", path, err)
	}
	return eps, nil
}

// Parse разбирает содержимое каталога и проверяет обязательные поля
func Parse(data []byte) ([]domain.Endpoint, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	out := make([]domain.Endpoint, 0, len(doc.Endpoints))
	for i, r := range doc.Endpoints {
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("endpoint #%d: %w", i+1, err)
		}
		out = append(out, r.endpoint())
	}
	return out, nil
}

func (r record) validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if r.SourceType == "" {
		return fmt.Errorf("%s: source_type is required", r.ID)
	}
	if r.DataCategory == "" {
		return fmt.Errorf("%s: data_category is required", r.ID)
	}
	switch domain.EndpointStatus(r.Status) {
	case "", domain.StatusActive, domain.StatusInactive:
	default:
		return fmt.Errorf("%s: unknown status %q", r.ID, r.Status)
	}
	if r.QualityScore != nil && (*r.QualityScore < 0 || *r.QualityScore > 10) {
		return fmt.Errorf("%s: quality_score must be within 0..10", r.ID)
	}
	if r.QualityRules.MinRecords < 0 {
		return fmt.Errorf("%s: quality_rules.min_records must be >= 0", r.ID)
	}
	return nil
}
