package domain

import (
	"encoding/json"
	"strings"

	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

const (
	MinEstimatedMinutes = 1
	MaxEstimatedMinutes = 1440
)

// Service is a catalog item customers queue for.
type Service struct {
	ID               string
	TenantID         string
	UnitID           string
	Name             string
	EstimatedMinutes int
	Color            string
	Settings         json.RawMessage
	Audit
}

func (s *Service) AuditInfo() *Audit { return &s.Audit }

// ServiceSettings is the typed view of the optional per-service settings document.
type ServiceSettings struct {
	RequiresResource   bool   `json:"requiresResource"`
	Color              string `json:"color"`
	NoShowGraceMinutes int    `json:"noShowGraceMinutes"`
}

// DefaultServiceSettings is used whenever the document is missing or unreadable.
func DefaultServiceSettings() ServiceSettings {
	return ServiceSettings{NoShowGraceMinutes: 5}
}

// ParseSettings reads the settings document. A missing or malformed document yields
// the defaults together with the decode error, which callers only log.
func (s *Service) ParseSettings() (ServiceSettings, error) {
	settings := DefaultServiceSettings()
	if len(s.Settings) == 0 || strings.TrimSpace(string(s.Settings)) == "null" {
		return settings, nil
	}
	var decoded ServiceSettings
	if err := json.Unmarshal(s.Settings, &decoded); err != nil {
		return DefaultServiceSettings(), err
	}
	if decoded.NoShowGraceMinutes <= 0 {
		decoded.NoShowGraceMinutes = settings.NoShowGraceMinutes
	}
	if decoded.Color == "" {
		decoded.Color = s.Color
	}
	return decoded, nil
}

// ValidateService checks the attributes supplied on creation.
func ValidateService(s *Service) error {
	details := map[string]any{}
	if strings.TrimSpace(s.Name) == "" {
		details["name"] = "required"
	}
	if s.EstimatedMinutes < MinEstimatedMinutes || s.EstimatedMinutes > MaxEstimatedMinutes {
		details["estimated_minutes"] = "must be between 1 and 1440"
	}
	if s.UnitID == "" {
		details["unit_id"] = "required"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid service", details)
	}
	return nil
}
