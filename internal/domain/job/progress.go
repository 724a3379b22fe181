package job

import (
	"time"

	"github.com/google/uuid"
)

// Progress tracks per-job pipeline completion for observers. Exactly one row
// exists per job; it is updated after each step.
type Progress struct {
	ID              string
	JobID           string
	TotalStages     int
	CompletedStages int
	// Percentage is derived from completed/total; stored for cheap reads.
	Percentage   float64
	CurrentStage string
	Status       string
	UpdatedAt    time.Time
}

// NewProgress creates the progress row for a job with the given stage count.
func NewProgress(jobID string, totalStages int) *Progress {
	p := &Progress{
		ID:          uuid.Must(uuid.NewV7()).String(),
		JobID:       jobID,
		TotalStages: totalStages,
		Status:      string(StatePending),
		UpdatedAt:   time.Now().UTC(),
	}
	p.derive()
	return p
}

// StageDone records one completed stage and recomputes the percentage.
// Invariant: CompletedStages never exceeds TotalStages.
func (p *Progress) StageDone(stage string) {
	if p.CompletedStages < p.TotalStages {
		p.CompletedStages++
	}
	p.CurrentStage = stage
	p.Status = string(StateRunning)
	p.UpdatedAt = time.Now().UTC()
	p.derive()
}

// Finish marks the progress row with the job's terminal status. Completed
// jobs report 100 percent regardless of skipped stages.
func (p *Progress) Finish(status State) {
	p.Status = string(status)
	if status == StateCompleted {
		p.CompletedStages = p.TotalStages
	}
	p.UpdatedAt = time.Now().UTC()
	p.derive()
}

func (p *Progress) derive() {
	if p.TotalStages == 0 {
		p.Percentage = 100
		return
	}
	p.Percentage = float64(p.CompletedStages) / float64(p.TotalStages) * 100
}
