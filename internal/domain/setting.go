package domain

// Setting is a single key/value pair of the server-wide settings collection.
type Setting struct {
	Key   string      `bson:"key" json:"key"`
	Value interface{} `bson:"value" json:"value"`
}

// Setting keys owned by this server.
const (
	SettingDeleteAnnotationsAfterIngest = "histomicsui.delete_annotations_after_ingest"
	SettingQuarantineFolder             = "histomicsui.quarantine_folder"
	SettingDefaultDrawStyles            = "histomicsui.default_draw_styles"
	SettingPanelLayout                  = "histomicsui.panel_layout"
	SettingWebrootPath                  = "histomicsui.webroot_path"
	SettingAlternateWebrootPath         = "histomicsui.alternate_webroot_path"
	SettingBrandName                    = "histomicsui.brand_name"
	SettingBrandColor                   = "histomicsui.brand_color"
	SettingBannerColor                  = "histomicsui.banner_color"
)
