package api

import "sort"

// SensorModel defines capabilities and gate layout for a presence radar sensor
type SensorModel struct {
	Slug               string `json:"slug"`
	DisplayName        string `json:"display_name"`
	GateCount          int    `json:"gate_count"`
	HasLightSensor     bool   `json:"has_light_sensor"`
	HasEngineeringMode bool   `json:"has_engineering_mode"`
	DefaultBaudRate    int    `json:"default_baud_rate"`
	Description        string `json:"description"`
}

// SupportedSensorModels is the application-level registry of sensor models
var SupportedSensorModels = map[string]SensorModel{
	"ld2410": {
		Slug:               "ld2410",
		DisplayName:        "HLK-LD2410",
		GateCount:          9,
		HasLightSensor:     false,
		HasEngineeringMode: true,
		DefaultBaudRate:    256000,
		Description:        "24GHz presence sensor with nine fixed 75cm gates",
	},
	"ld2412": {
		Slug:               "ld2412",
		DisplayName:        "HLK-LD2412",
		GateCount:          14,
		HasLightSensor:     true,
		HasEngineeringMode: true,
		DefaultBaudRate:    115200,
		Description:        "24GHz presence sensor with configurable gate resolution and light sensing",
	},
}

// GetSensorModel looks up a sensor model by slug
func GetSensorModel(slug string) (SensorModel, bool) {
	model, ok := SupportedSensorModels[slug]
	return model, ok
}

// GetAllSensorModels returns all supported sensor models sorted by slug
func GetAllSensorModels() []SensorModel {
	models := make([]SensorModel, 0, len(SupportedSensorModels))
	for _, model := range SupportedSensorModels {
		models = append(models, model)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Slug < models[j].Slug })
	return models
}
