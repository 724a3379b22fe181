// Package pipeline defines the ordered processor step configuration that
// campaigns declare and jobs snapshot.
package pipeline

import "encoding/json"

// Step is a single processor entry in a pipeline. Slug references a processor
// catalog entry; an empty slug marks the step as skipped. Category is used to
// select retry/timeout policies.
type Step struct {
	Slug     string         `json:"id"`
	Category string         `json:"type,omitempty"`
	Config   map[string]any `json:"config,omitempty"`
}

// Pipeline is an ordered list of processor steps. Order is significant; the
// exact array becomes the job snapshot at job creation time.
type Pipeline struct {
	Processors []Step `json:"processors"`
}

// Len returns the number of steps in the pipeline.
func (p Pipeline) Len() int { return len(p.Processors) }

// IsEmpty reports whether the pipeline has no steps.
func (p Pipeline) IsEmpty() bool { return len(p.Processors) == 0 }

// Clone returns a deep copy of the pipeline. Jobs snapshot the campaign
// pipeline with Clone so later campaign edits never affect in-flight jobs.
func (p Pipeline) Clone() Pipeline {
	out := Pipeline{Processors: make([]Step, len(p.Processors))}
	for i, s := range p.Processors {
		out.Processors[i] = Step{
			Slug:     s.Slug,
			Category: s.Category,
			Config:   cloneMap(s.Config),
		}
	}
	return out
}

// Parse decodes the campaign pipeline JSON document.
func Parse(data []byte) (Pipeline, error) {
	var p Pipeline
	if err := json.Unmarshal(data, &p); err != nil {
		return Pipeline{}, err
	}
	return p, nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
