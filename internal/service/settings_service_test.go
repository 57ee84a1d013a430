package service

import (
	"context"
	"histomicsui/hui-server/internal/domain"
	"histomicsui/hui-server/internal/repository/memory"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zaptest"
)

func newSettings(t *testing.T) (SettingsService, *memory.DB) {
	db := memory.New()
	return NewSettingsService(zaptest.NewLogger(t), db.Settings(), db.Folders()), db
}

func TestSettings_Defaults(t *testing.T) {
	ctx := context.Background()
	settings, _ := newSettings(t)

	value, err := settings.Get(ctx, domain.SettingBrandName)
	require.NoError(t, err)
	assert.Equal(t, "HistomicsUI", value)

	value, err = settings.Get(ctx, domain.SettingQuarantineFolder)
	require.NoError(t, err)
	assert.Nil(t, value)

	enabled, err := settings.GetBool(ctx, domain.SettingDeleteAnnotationsAfterIngest)
	require.NoError(t, err)
	assert.False(t, enabled)

	_, err = settings.Get(ctx, "core.smtp_host")
	assert.ErrorIs(t, err, ErrUnknownSetting)
	assert.Len(t, settings.Keys(), 9)
}

func TestSettings_DeleteAfterIngest(t *testing.T) {
	ctx := context.Background()
	settings, _ := newSettings(t)

	stored, err := settings.Set(ctx, domain.SettingDeleteAnnotationsAfterIngest, "true")
	require.NoError(t, err)
	assert.Equal(t, true, stored)

	enabled, err := settings.GetBool(ctx, domain.SettingDeleteAnnotationsAfterIngest)
	require.NoError(t, err)
	assert.True(t, enabled)

	_, err = settings.Set(ctx, domain.SettingDeleteAnnotationsAfterIngest, 3.0)
	assert.ErrorIs(t, err, ErrInvalidSetting)
}

func TestSettings_Validation(t *testing.T) {
	ctx := context.Background()
	settings, _ := newSettings(t)

	tests := []struct {
		key   string
		value interface{}
		ok    bool
		want  interface{}
	}{
		{domain.SettingBrandName, "Slides", true, "Slides"},
		{domain.SettingBrandName, "", false, nil},
		{domain.SettingBrandColor, "#aBc123", true, "#aBc123"},
		{domain.SettingBannerColor, "#abc", false, nil},
		{domain.SettingBannerColor, "", false, nil},
		{domain.SettingWebrootPath, "slides", true, "slides"},
		{domain.SettingWebrootPath, "girder", false, nil},
		{domain.SettingWebrootPath, "", false, nil},
		{domain.SettingAlternateWebrootPath, "hui,histomicstk", true, "hui,histomicstk"},
		{domain.SettingAlternateWebrootPath, "hui,girder", false, nil},
		{domain.SettingAlternateWebrootPath, "girder", false, nil},
		{domain.SettingDefaultDrawStyles, []interface{}{map[string]interface{}{"id": "tumor"}}, true, `[{"id":"tumor"}]`},
		{domain.SettingDefaultDrawStyles, "  [1, 2] ", true, "[1, 2]"},
		{domain.SettingPanelLayout, "", true, nil},
		{domain.SettingPanelLayout, `{"a": 1}`, false, nil},
		{domain.SettingPanelLayout, "not json", false, nil},
		{domain.SettingQuarantineFolder, "", true, nil},
		{domain.SettingQuarantineFolder, primitive.NewObjectID().Hex(), false, nil},
		{domain.SettingQuarantineFolder, "bogus", false, nil},
	}
	for _, tt := range tests {
		stored, err := settings.Set(ctx, tt.key, tt.value)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrInvalidSetting, "%s=%v", tt.key, tt.value)
			continue
		}
		require.NoError(t, err, "%s=%v", tt.key, tt.value)
		assert.Equal(t, tt.want, stored, tt.key)

		value, err := settings.Get(ctx, tt.key)
		require.NoError(t, err)
		assert.Equal(t, tt.want, value, tt.key)
	}
}

func TestSettings_QuarantineFolder(t *testing.T) {
	ctx := context.Background()
	settings, db := newSettings(t)

	folder := &domain.Folder{Name: "Quarantine", CreatorID: primitive.NewObjectID()}
	_, err := db.Folders().Create(ctx, folder)
	require.NoError(t, err)

	stored, err := settings.Set(ctx, domain.SettingQuarantineFolder, folder.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, folder.ID.Hex(), stored)

	_, err = settings.Set(ctx, "unknown", "x")
	assert.ErrorIs(t, err, ErrUnknownSetting)
}
