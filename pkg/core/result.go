package core

// Method names the extraction layer that produced a value.
type Method string

// Extraction layers, in cascade order.
const (
	MethodXPath         Method = "xpath"
	MethodCSS           Method = "css"
	MethodTable         Method = "table"
	MethodRegex         Method = "regex"
	MethodRegexFallback Method = "regex_fallback"
	MethodFailed        Method = "failed"
)

// ExtractionResult is the outcome of one cascade run over one document.
type ExtractionResult struct {
	Data         map[string]*string `json:"data"`
	Methods      map[string]Method  `json:"methods"`
	Method       Method             `json:"method"`
	Success      bool               `json:"success"`
	FailedFields []string           `json:"failedFields,omitempty"`
	Warnings     []string           `json:"warnings,omitempty"`
}

// Value returns the extracted value of a field, or "" when it failed.
func (r *ExtractionResult) Value(field string) string {
	if r == nil {
		return ""
	}
	if v := r.Data[field]; v != nil {
		return *v
	}
	return ""
}

// Record converts the result into a record, with failed fields as nil.
func (r *ExtractionResult) Record() Record {
	rec := make(Record, len(r.Data))
	for k, v := range r.Data {
		if v == nil {
			rec[k] = nil
			continue
		}
		rec[k] = *v
	}
	return rec
}
