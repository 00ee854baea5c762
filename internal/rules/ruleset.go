package rules

import "github.com/vbonduro/segnalazioni/internal/domain"

type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type GuidedMinimums struct {
	Issue     int `json:"issue"`
	Timeframe int `json:"timeframe"`
	Impact    int `json:"impact"`
}

// RuleSet is the published form of the creation rules.
type RuleSet struct {
	Categories           []Option       `json:"categories"`
	Statuses             []Option       `json:"statuses"`
	DescriptionMinLength int            `json:"description_min_length"`
	GuidedMinLength      GuidedMinimums `json:"guided_min_length"`
	MaxUploadBytes       int64          `json:"max_upload_bytes"`
	AcceptedImageTypes   []string       `json:"accepted_image_types"`
}

func Publish(maxUploadBytes int64, imageTypes []string) RuleSet {
	rs := RuleSet{
		Categories:           make([]Option, 0, len(domain.Categories)),
		Statuses:             make([]Option, 0, len(domain.Statuses)),
		DescriptionMinLength: MinDescriptionLen,
		GuidedMinLength: GuidedMinimums{
			Issue:     MinIssueLen,
			Timeframe: MinTimeframeLen,
			Impact:    MinImpactLen,
		},
		MaxUploadBytes:     maxUploadBytes,
		AcceptedImageTypes: imageTypes,
	}
	for _, c := range domain.Categories {
		rs.Categories = append(rs.Categories, Option{Value: string(c), Label: c.Label()})
	}
	for _, s := range domain.Statuses {
		rs.Statuses = append(rs.Statuses, Option{Value: string(s), Label: s.Label()})
	}
	return rs
}
