package domain

import (
	"errors"
	"strings"
)

// TaskType names the kind of generation a request performs.
type TaskType string

const (
	TaskAdjust     TaskType = "adjust"
	TaskFilters    TaskType = "filters"
	TaskFlux       TaskType = "flux"
	TaskTypography TaskType = "typography"
	TaskInpaint    TaskType = "inpaint"
)

// TaskTypes lists every supported task type.
var TaskTypes = []TaskType{TaskAdjust, TaskFilters, TaskFlux, TaskTypography, TaskInpaint}

// ParseTaskType normalizes raw into a known task type.
func ParseTaskType(raw string) (TaskType, bool) {
	t := TaskType(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range TaskTypes {
		if t == known {
			return t, true
		}
	}
	return "", false
}

// RequiresImage reports whether the task cannot run without a source image.
func (t TaskType) RequiresImage() bool {
	switch t {
	case TaskAdjust, TaskFilters, TaskInpaint:
		return true
	default:
		return false
	}
}

const (
	DefaultAspectRatio = "1:1"
	MinBatchSize       = 1
	MaxBatchSize       = 4
)

// GenerationRequest is one outbound unit of work for the generation client.
type GenerationRequest struct {
	Type                      TaskType `json:"type" validate:"required,oneof=adjust filters flux typography inpaint"`
	Prompt                    string   `json:"prompt" validate:"required,max=16000"`
	UseOriginal               bool     `json:"useOriginal"`
	ForceNew                  bool     `json:"forceNew"`
	AspectRatio               string   `json:"aspectRatio,omitempty" validate:"omitempty,oneof=1:1 16:9 9:16 4:3 3:4"`
	NegativePrompt            string   `json:"negativePrompt,omitempty"`
	DenoisingInstruction      string   `json:"denoisingInstruction,omitempty"`
	SystemInstructionOverride string   `json:"systemInstructionOverride,omitempty"`
	BatchSize                 int      `json:"batchSize,omitempty" validate:"omitempty,min=1,max=4"`
	IsChaos                   bool     `json:"isChaos,omitempty"`
}

// Validate enforces the dispatch preconditions.
func (r *GenerationRequest) Validate() error {
	if r == nil {
		return errors.New("generation request is nil")
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return ErrEmptyPrompt
	}
	return ValidateStruct(r)
}

// EffectiveBatchSize clamps the batch size into the supported range.
func (r *GenerationRequest) EffectiveBatchSize() int {
	switch {
	case r.BatchSize < MinBatchSize:
		return MinBatchSize
	case r.BatchSize > MaxBatchSize:
		return MaxBatchSize
	default:
		return r.BatchSize
	}
}

// EffectiveAspectRatio returns the aspect ratio or the default.
func (r *GenerationRequest) EffectiveAspectRatio() string {
	if r.AspectRatio == "" {
		return DefaultAspectRatio
	}
	return r.AspectRatio
}
