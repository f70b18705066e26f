package core

// GeneratedPipeline is the output of the pipeline code generator.
type GeneratedPipeline struct {
	Code   string         `json:"code"`
	Config PipelineConfig `json:"config"`
}

// PipelineConfig is the JSON sidecar describing a generated pipeline.
type PipelineConfig struct {
	ExtractionAssets     []string            `json:"extraction_assets"`
	TransformationAssets []string            `json:"transformation_assets"`
	LoadAssets           []string            `json:"load_assets"`
	Dependencies         map[string][]string `json:"dependencies"`
	EntityModel          EntityModel         `json:"entity_model"`
	TransformSQL         string              `json:"transform_sql,omitempty"`
}

// EntityModel is the slice of the entity model a pipeline was generated from.
type EntityModel struct {
	Entity        Entity         `json:"entity"`
	Fields        []EntityField  `json:"fields"`
	Relationships []Relationship `json:"relationships,omitempty"`
	SourceIDs     []string       `json:"source_ids,omitempty"`
	Strategy      string         `json:"extraction_strategy,omitempty"`
	StageKind     string         `json:"stage_kind"`
}
