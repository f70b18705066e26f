package core

import (
	"sort"
	"strings"
)

// EntityType classifies an entity in the target star schema.
type EntityType string

// Entity type constants.
const (
	// EntityInterim is a staging table loaded straight from extraction output.
	EntityInterim EntityType = "INTERIM"
	// EntityReference is a dimension table.
	EntityReference EntityType = "REFERENCE"
	// EntityMaster is a fact table.
	EntityMaster EntityType = "MASTER"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityInterim, EntityReference, EntityMaster:
		return true
	}
	return false
}

// DataType is the column type of an entity field.
type DataType string

// Data type constants.
const (
	DataTypeText      DataType = "TEXT"
	DataTypeInteger   DataType = "INTEGER"
	DataTypeNumeric   DataType = "NUMERIC"
	DataTypeBoolean   DataType = "BOOLEAN"
	DataTypeDate      DataType = "DATE"
	DataTypeTimestamp DataType = "TIMESTAMP"
	DataTypeUUID      DataType = "UUID"
	DataTypeJSON      DataType = "JSON"
)

// Valid reports whether d is one of the supported data types.
func (d DataType) Valid() bool {
	switch d {
	case DataTypeText, DataTypeInteger, DataTypeNumeric, DataTypeBoolean,
		DataTypeDate, DataTypeTimestamp, DataTypeUUID, DataTypeJSON:
		return true
	}
	return false
}

// Entity is a logical table in the target warehouse.
type Entity struct {
	ID          string        `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	TableName   string        `json:"table_name,omitempty" yaml:"table_name"`
	Type        EntityType    `json:"entity_type" yaml:"type"`
	DisplayName string        `json:"display_name,omitempty" yaml:"display_name"`
	Description string        `json:"description,omitempty" yaml:"description"`
	Fields      []EntityField `json:"fields,omitempty" yaml:"fields"`
}

// Table returns the physical table name, defaulting to the entity name.
func (e Entity) Table() string {
	if e.TableName != "" {
		return e.TableName
	}
	return e.Name
}

// Matches reports whether ref names this entity by id, name or table name.
func (e Entity) Matches(ref string) bool {
	if ref == "" {
		return false
	}
	return ref == e.ID || strings.EqualFold(ref, e.Name) || strings.EqualFold(ref, e.Table())
}

// ForeignKeyRef points at the entity and field a foreign key resolves to.
type ForeignKeyRef struct {
	Entity string `json:"entity" yaml:"entity"`
	Field  string `json:"field,omitempty" yaml:"field"`
}

// FieldMetadata is the typed form of the free-form metadata attached to a field.
type FieldMetadata struct {
	// Source is the "entity.field" mapping into staging data.
	Source string `json:"source,omitempty" yaml:"source"`
	// NaturalKey overrides the inferred join key; comma separated for multi-column keys.
	NaturalKey string `json:"natural_key,omitempty" yaml:"natural_key"`
	// NabcaSection names the report section the field is read from.
	NabcaSection string `json:"nabca_section,omitempty" yaml:"nabca_section"`
	DisplayName  string `json:"display_name,omitempty" yaml:"display_name"`
}

// EntityField is a column of an Entity.
type EntityField struct {
	Name         string         `json:"name" yaml:"name"`
	DataType     DataType       `json:"data_type" yaml:"data_type"`
	Required     bool           `json:"is_required,omitempty" yaml:"required"`
	PrimaryKey   bool           `json:"is_primary_key,omitempty" yaml:"primary_key"`
	IsForeignKey bool           `json:"is_foreign_key,omitempty" yaml:"is_foreign_key"`
	ForeignKey   *ForeignKeyRef `json:"foreign_key,omitempty" yaml:"foreign_key"`
	Metadata     FieldMetadata  `json:"metadata,omitempty" yaml:"metadata"`
}

// IsFK reports whether the field is a foreign key, either flagged or with a target.
func (f EntityField) IsFK() bool {
	return f.IsForeignKey || f.ForeignKey != nil
}

// Cardinality of a relationship.
type Cardinality string

// Cardinality constants.
const (
	OneToOne   Cardinality = "1:1"
	OneToMany  Cardinality = "1:N"
	ManyToMany Cardinality = "N:M"
)

// Relationship is a directed edge between two entities.
// It only orders load dependencies; join semantics come from field sources.
type Relationship struct {
	ID             string      `json:"id,omitempty" yaml:"id"`
	SourceEntityID string      `json:"source_entity_id" yaml:"source"`
	TargetEntityID string      `json:"target_entity_id" yaml:"target"`
	Cardinality    Cardinality `json:"cardinality,omitempty" yaml:"cardinality"`
}

// FindEntity looks up an entity by id, name or table name.
func FindEntity(entities []Entity, ref string) (*Entity, bool) {
	for i := range entities {
		if entities[i].Matches(ref) {
			return &entities[i], true
		}
	}
	return nil, false
}

// SortedEntityNames returns entity names in lexical order.
func SortedEntityNames(entities []Entity) []string {
	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}
