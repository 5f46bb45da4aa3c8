package tui

import (
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// ProgressState tracks the registration progress bar.
type ProgressState struct {
	progress    progress.Model
	percent     float64
	description string
	isActive    bool
}

// NewProgressState creates a new progress tracking state.
func NewProgressState() ProgressState {
	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(40),
	)
	return ProgressState{
		progress: p,
	}
}

// Start begins tracking a new operation.
func (p *ProgressState) Start(description string) {
	p.isActive = true
	p.percent = 0
	p.description = description
}

// Update updates the progress percentage (0.0 to 1.0).
func (p *ProgressState) Update(percent float64, description string) {
	p.percent = percent
	if description != "" {
		p.description = description
	}
}

// Complete marks the operation as complete. The full bar stays visible.
func (p *ProgressState) Complete(description string) {
	p.percent = 1.0
	p.isActive = false
	p.description = description
}

// Cancel stops the progress without completing.
func (p *ProgressState) Cancel(description string) {
	p.isActive = false
	p.description = description
}

// IsActive returns whether an operation is in progress.
func (p *ProgressState) IsActive() bool {
	return p.isActive
}

// Percent returns the last reported fraction.
func (p *ProgressState) Percent() float64 {
	return p.percent
}

// SetWidth resizes the bar.
func (p *ProgressState) SetWidth(w int) {
	if w < 10 {
		w = 10
	}
	p.progress.Width = w
}

// View renders the progress bar.
func (p ProgressState) View() string {
	descStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	return descStyle.Render(p.description) + "\n" + p.progress.ViewAs(p.percent)
}
