// Package config loads study configurations from YAML files.
//
// A minimal project file:
//
//	id: campus_climate
//	name: Campus climate pilot
//	mode: discrete
//	scale_points: 7
//	counterbalance: true
//	items:
//	  - id: warm_cold
//	    pole_low: Cold
//	    pole_high: Warm
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dipolehq/dipole/internal/models"
	"github.com/dipolehq/dipole/internal/services"
)

// ProjectFile is the on-disk shape of a study configuration. Pointer fields
// distinguish "absent, use the default" from an explicit zero value.
type ProjectFile struct {
	ID             string     `yaml:"id" validate:"required"`
	Name           string     `yaml:"name"`
	Mode           string     `yaml:"mode" validate:"required,oneof=discrete continuous"`
	ScalePoints    *int       `yaml:"scale_points" validate:"omitempty,min=1"`
	Counterbalance *bool      `yaml:"counterbalance"`
	Items          []ItemFile `yaml:"items" validate:"required,min=1,dive"`
}

// ItemFile is one paired-pole item as configured.
type ItemFile struct {
	ID       string `yaml:"id" validate:"required"`
	PoleLow  string `yaml:"pole_low" validate:"required"`
	PoleHigh string `yaml:"pole_high" validate:"required"`
	Category string `yaml:"category"`
}

const (
	defaultScalePoints = 7
)

var validate = validator.New()

// LoadProject reads and validates a YAML project file from disk.
func LoadProject(path string) (*models.Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project config: %w", err)
	}
	return ParseProject(data)
}

// ParseProject decodes YAML bytes into a validated project. Configuration
// faults come back as invalid_configuration service errors so callers can
// tell them apart from storage failures.
func ParseProject(data []byte) (*models.Project, error) {
	var file ProjectFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, services.NewInvalidConfigurationError(fmt.Sprintf("parse project config: %v", err))
	}
	applyDefaults(&file)
	if err := validate.Struct(&file); err != nil {
		return nil, services.NewInvalidConfigurationError(fmt.Sprintf("invalid project config: %v", err))
	}

	mode := models.ScaleMode(file.Mode)
	points := 0
	if file.ScalePoints != nil {
		points = *file.ScalePoints
	}
	if mode == models.ModeDiscrete && points < 2 {
		return nil, services.NewInvalidConfigurationError("discrete mode requires at least 2 scale points")
	}

	seen := make(map[string]bool, len(file.Items))
	items := make([]models.ScaleItem, 0, len(file.Items))
	for _, item := range file.Items {
		if seen[item.ID] {
			return nil, services.NewInvalidConfigurationError(fmt.Sprintf("duplicate item id %q", item.ID))
		}
		seen[item.ID] = true
		items = append(items, models.ScaleItem{
			ID:       item.ID,
			PoleLow:  item.PoleLow,
			PoleHigh: item.PoleHigh,
			Category: item.Category,
		})
	}

	return &models.Project{
		ID:             file.ID,
		Name:           file.Name,
		Mode:           mode,
		ScalePoints:    points,
		Counterbalance: file.Counterbalance == nil || *file.Counterbalance,
		Items:          items,
	}, nil
}

func applyDefaults(file *ProjectFile) {
	if file.Mode == "" {
		file.Mode = string(models.ModeDiscrete)
	}
	if file.Mode == string(models.ModeDiscrete) && file.ScalePoints == nil {
		points := defaultScalePoints
		file.ScalePoints = &points
	}
	if file.Name == "" {
		file.Name = file.ID
	}
}
