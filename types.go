package main

import "strconv"

// Dataset column names
const (
	ColumnURL             = "url"
	ColumnRawURL          = "raw_url"
	ColumnApplicationName = "application_name"

	ColumnDecisionProcess = "decision_process"
	ColumnDecisionHuman   = "decision_human"
	ColumnReasonProcess   = "reason_process"
	ColumnReasonHuman     = "reason_human"
)

// resultColumns are appended to the dataset columns in the result log
var resultColumns = []string{
	ColumnDecisionProcess,
	ColumnDecisionHuman,
	ColumnReasonProcess,
	ColumnReasonHuman,
}

// Reasons recorded for decisions that do not come from the model
const (
	ReasonExclude        = "precedence/exclude"
	ReasonInclude        = "precedence/include"
	ReasonRandomFallback = "random fallback"
	reasonModelDefault   = "model"
)

// Binary labels
const (
	NotWorkRelated = 0
	WorkRelated    = 1
)

// URLRecord is one dataset row. Fields holds every column, including url,
// raw_url and application_name, so passthrough columns survive into the log.
type URLRecord struct {
	URL             string
	RawURL          string
	ApplicationName string
	Fields          map[string]string
}

// Get returns the value of a dataset column
func (r URLRecord) Get(column string) string {
	switch column {
	case ColumnURL:
		return r.URL
	case ColumnRawURL:
		return r.RawURL
	case ColumnApplicationName:
		return r.ApplicationName
	}
	return r.Fields[column]
}

// DecisionSource identifies which tier of the engine produced a decision
type DecisionSource string

const (
	SourceExclude DecisionSource = "exclude"
	SourceInclude DecisionSource = "include"
	SourceModel   DecisionSource = "model"
	SourceRandom  DecisionSource = "random"
)

// FallbackCause explains a random decision. It is logged, never persisted.
type FallbackCause string

const (
	CauseNone FallbackCause = ""
	// CauseNoPayload covers model errors, missing fences, bad JSON and a
	// missing confidence field.
	CauseNoPayload FallbackCause = "no usable model response"
	// CauseUndetermined means the confidence fell between the thresholds.
	CauseUndetermined FallbackCause = "confidence undetermined"
)

// Decision is the engine's proposal for a single record
type Decision struct {
	Value  int
	Reason string
	Source DecisionSource
	Cause  FallbackCause
}

// Label renders the decision for the operator
func (d Decision) Label() string {
	if d.Value == WorkRelated {
		return "Work-related"
	}
	return "Not work-related"
}

// ResultRecord is one appended row of the result log
type ResultRecord struct {
	Record          URLRecord
	DecisionProcess int
	DecisionHuman   int
	ReasonProcess   string
	ReasonHuman     string
}

// Row renders the record in the given column order
func (r ResultRecord) Row(columns []string) []string {
	row := make([]string, len(columns))
	for i, column := range columns {
		switch column {
		case ColumnDecisionProcess:
			row[i] = strconv.Itoa(r.DecisionProcess)
		case ColumnDecisionHuman:
			row[i] = strconv.Itoa(r.DecisionHuman)
		case ColumnReasonProcess:
			row[i] = r.ReasonProcess
		case ColumnReasonHuman:
			row[i] = r.ReasonHuman
		default:
			row[i] = r.Record.Get(column)
		}
	}
	return row
}
