package service

import (
	"context"
	"encoding/json"
	"errors"
	"histomicsui/hui-server/internal/domain"
	"histomicsui/hui-server/internal/repository"
	"regexp"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// --- Error Definitions ---
var (
	ErrUnknownSetting = errors.New("unknown setting key")
	ErrInvalidSetting = errors.New("invalid setting value")
)

// SettingError describes why a value was refused for a key.
type SettingError struct {
	Key     string
	Message string
}

func (e *SettingError) Error() string {
	return e.Key + ": " + e.Message
}

// Unwrap lets callers match ErrInvalidSetting with errors.Is.
func (e *SettingError) Unwrap() error {
	return ErrInvalidSetting
}

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// settingDefaults holds the values returned for keys that were never set.
var settingDefaults = map[string]interface{}{
	domain.SettingDeleteAnnotationsAfterIngest: false,
	domain.SettingQuarantineFolder:             nil,
	domain.SettingDefaultDrawStyles:            nil,
	domain.SettingPanelLayout:                  nil,
	domain.SettingWebrootPath:                  "histomics",
	domain.SettingAlternateWebrootPath:         "",
	domain.SettingBrandName:                    "HistomicsUI",
	domain.SettingBrandColor:                   "#777777",
	domain.SettingBannerColor:                  "#f8f8f8",
}

// SettingsService validates and stores the server settings.
type SettingsService interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}) (interface{}, error)
	GetBool(ctx context.Context, key string) (bool, error)
	Keys() []string
}

type settingsService struct {
	log        *zap.Logger
	settings   repository.SettingRepository
	folderRepo repository.FolderRepository
}

// NewSettingsService creates a new instance of settingsService.
func NewSettingsService(log *zap.Logger, settings repository.SettingRepository, folderRepo repository.FolderRepository) SettingsService {
	return &settingsService{log: log, settings: settings, folderRepo: folderRepo}
}

// Keys lists every setting this service accepts.
func (s *settingsService) Keys() []string {
	keys := make([]string, 0, len(settingDefaults))
	for key := range settingDefaults {
		keys = append(keys, key)
	}
	return keys
}

// Get returns the stored value of key, or its default.
func (s *settingsService) Get(ctx context.Context, key string) (interface{}, error) {
	fallback, known := settingDefaults[key]
	if !known {
		return nil, ErrUnknownSetting
	}
	setting, err := s.settings.Get(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return fallback, nil
	}
	if err != nil {
		return nil, err
	}
	return setting.Value, nil
}

// GetBool returns a boolean setting.
func (s *settingsService) GetBool(ctx context.Context, key string) (bool, error) {
	value, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	switch v := value.(type) {
	case bool:
		return v, nil
	case nil:
		return false, nil
	default:
		return false, &SettingError{Key: key, Message: "stored value is not a boolean"}
	}
}

// Set validates value for key, normalizes it, and stores it. It returns the
// value as stored.
func (s *settingsService) Set(ctx context.Context, key string, value interface{}) (interface{}, error) {
	if _, known := settingDefaults[key]; !known {
		return nil, ErrUnknownSetting
	}
	normalized, err := s.validate(ctx, key, value)
	if err != nil {
		return nil, err
	}
	if err := s.settings.Set(ctx, &domain.Setting{Key: key, Value: normalized}); err != nil {
		return nil, err
	}
	s.log.Info("setting changed", zap.String("key", key))
	return normalized, nil
}

func (s *settingsService) validate(ctx context.Context, key string, value interface{}) (interface{}, error) {
	switch key {
	case domain.SettingDeleteAnnotationsAfterIngest:
		return validateBool(key, value)
	case domain.SettingDefaultDrawStyles, domain.SettingPanelLayout:
		return validateListOrJSON(key, value)
	case domain.SettingBrandColor, domain.SettingBannerColor:
		color, _ := value.(string)
		if color == "" {
			return nil, &SettingError{Key: key, Message: "the color may not be empty"}
		}
		if !hexColor.MatchString(color) {
			return nil, &SettingError{Key: key, Message: "the color must be a hex color triplet"}
		}
		return color, nil
	case domain.SettingBrandName:
		name, _ := value.(string)
		if name == "" {
			return nil, &SettingError{Key: key, Message: "the brand name may not be empty"}
		}
		return name, nil
	case domain.SettingWebrootPath:
		webroot, _ := value.(string)
		if webroot == "" {
			return nil, &SettingError{Key: key, Message: "the webroot path may not be empty"}
		}
		if webroot == "girder" {
			return nil, &SettingError{Key: key, Message: `the webroot path may not be "girder"`}
		}
		return webroot, nil
	case domain.SettingAlternateWebrootPath:
		paths, ok := value.(string)
		if !ok && value != nil {
			return nil, &SettingError{Key: key, Message: "the alternate webroot path must be a string"}
		}
		for _, path := range strings.Split(paths, ",") {
			if strings.TrimSpace(path) == "girder" {
				return nil, &SettingError{Key: key, Message: `the alternate webroot path may not contain "girder"`}
			}
		}
		return paths, nil
	case domain.SettingQuarantineFolder:
		return s.validateFolder(ctx, key, value)
	}
	return nil, ErrUnknownSetting
}

func validateBool(key string, value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, &SettingError{Key: key, Message: "must be a boolean"}
		}
		return parsed, nil
	default:
		return nil, &SettingError{Key: key, Message: "must be a boolean"}
	}
}

// validateListOrJSON accepts a list, or a string holding a JSON list. Lists
// are stored as their JSON encoding; an empty value clears the setting.
func validateListOrJSON(key string, value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, &SettingError{Key: key, Message: "must be a JSON list"}
		}
		return string(encoded), nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil, nil
		}
		var parsed []interface{}
		if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil || parsed == nil {
			return nil, &SettingError{Key: key, Message: "must be a JSON list"}
		}
		return trimmed, nil
	default:
		return nil, &SettingError{Key: key, Message: "must be a JSON list"}
	}
}

func (s *settingsService) validateFolder(ctx context.Context, key string, value interface{}) (interface{}, error) {
	id, _ := value.(string)
	if id == "" {
		return nil, nil
	}
	folderID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, &SettingError{Key: key, Message: "invalid folder id"}
	}
	if _, err := s.folderRepo.GetByID(ctx, folderID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &SettingError{Key: key, Message: "folder does not exist"}
		}
		return nil, err
	}
	return id, nil
}
