// Package core defines the shared language of the inspector system.
//
// This package contains:
//   - Entity model types (Entity, EntityField, Relationship)
//   - The extraction contract (Template, FieldSelector, TablePattern)
//   - Extraction and code generation outputs (ExtractionResult, GeneratedPipeline)
//   - Service interfaces (Adapter)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
