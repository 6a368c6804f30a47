package models

// Requests accepted by the gateway, the alert evaluator and the HTTP layer.
// The custom tags (indicator, region, timerange) are registered by the
// validation gate.

type ForecastRequest struct {
	Indicator string `query:"indicator" json:"indicator" validate:"required,indicator"`
	Region    string `query:"region" json:"region" validate:"required,region"`
	TimeRange string `query:"range" json:"timeRange" default:"1y" validate:"required,timerange"`
}

// TopicRequest addresses an indicator × region pair.
type TopicRequest struct {
	Indicator string `query:"indicator" json:"indicator" validate:"required,indicator"`
	Region    string `query:"region" json:"region" validate:"required,region"`
}

type TableRequest struct {
	Prompt  string   `json:"prompt" validate:"required,max=2000"`
	Columns []string `json:"columns" validate:"required,min=1,max=16,dive,required,max=64"`
}

type AlertRequest struct {
	Indicator string  `json:"indicator" validate:"required,indicator"`
	Region    string  `json:"region" validate:"required,region"`
	Threshold float64 `json:"threshold" validate:"gt=0"`
	Kind      string  `json:"kind" default:"percentage" validate:"required,oneof=absolute percentage"`
	Direction string  `json:"direction" default:"both" validate:"required,oneof=increase decrease both"`
}

type HistoryRequest struct {
	Indicator string `query:"indicator" json:"indicator" validate:"required,indicator"`
	Region    string `query:"region" json:"region" validate:"required,region"`
	Limit     int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}
