package output

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

type Task struct {
	ID          int
	Label       string
	Status      string
	Message     string
	StreamLines []string
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
}

type ErrorReport struct {
	Label string
	Error error
	Time  time.Time
}

// Manager redraws the state of registered tasks in place on a terminal.
type Manager struct {
	out         io.Writer
	tasks       map[int]*Task
	mutex       sync.RWMutex
	numLines    int
	errors      []ErrorReport
	doneCh      chan struct{}
	displayTick time.Duration
	taskCount   int
	displayWg   sync.WaitGroup
	stopOnce    sync.Once
}

func NewManager(out io.Writer) *Manager {
	return &Manager{
		out:         out,
		tasks:       make(map[int]*Task),
		doneCh:      make(chan struct{}),
		displayTick: 200 * time.Millisecond,
	}
}

func (m *Manager) Register(label string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.taskCount++
	now := time.Now()
	m.tasks[m.taskCount] = &Task{
		ID:          m.taskCount,
		Label:       label,
		Status:      "pending",
		StartTime:   now,
		LastUpdated: now,
	}
	return m.taskCount
}

func (m *Manager) update(id int, fn func(t *Task)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if t, exists := m.tasks[id]; exists {
		fn(t)
		t.LastUpdated = time.Now()
	}
}

func (m *Manager) SetMessage(id int, message string) {
	m.update(id, func(t *Task) { t.Message = message })
}

// SetStatus changes the task indicator: pending, active, warning, success
// or error.
func (m *Manager) SetStatus(id int, status string) {
	m.update(id, func(t *Task) { t.Status = status })
}

func (m *Manager) Complete(id int, message string) {
	m.update(id, func(t *Task) {
		t.StreamLines = nil
		if message == "" {
			message = fmt.Sprintf("Completed %s", t.Label)
		}
		t.Message = message
		t.Complete = true
		t.Status = "success"
	})
}

func (m *Manager) ReportError(id int, err error) {
	m.update(id, func(t *Task) {
		t.Complete = true
		t.Status = "error"
		t.Error = err
		m.errors = append(m.errors, ErrorReport{Label: t.Label, Error: err, Time: time.Now()})
	})
}

// ReportProgress replaces the task's stream output with a progress bar.
func (m *Manager) ReportProgress(id int, done, total int64) {
	m.update(id, func(t *Task) {
		t.StreamLines = []string{ProgressLine(done, total, time.Since(t.StartTime))}
	})
}

func (m *Manager) statusIndicator(status string) string {
	switch status {
	case "success":
		return successStyle.Render(StyleSymbols["pass"])
	case "error":
		return errorStyle.Render(StyleSymbols["fail"])
	case "warning":
		return warningStyle.Render(StyleSymbols["warning"])
	case "pending":
		return pendingStyle.Render(StyleSymbols["pending"])
	case "active":
		return infoStyle.Render(StyleSymbols["active"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func styleMessage(status, message string) string {
	switch status {
	case "success":
		return successStyle.Render(message)
	case "error":
		return errorStyle.Render(message)
	case "warning":
		return warningStyle.Render(message)
	default:
		return pendingStyle.Render(message)
	}
}

func (m *Manager) sortedTasks() []*Task {
	tasks := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks
}

func (m *Manager) updateDisplay() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	availableLines := terminalHeight(m.out) - 3
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}

	lineCount := 0
	for _, t := range m.sortedTasks() {
		if lineCount >= availableLines {
			break
		}
		elapsed := time.Since(t.StartTime)
		if t.Complete {
			elapsed = t.LastUpdated.Sub(t.StartTime)
		}
		message := t.Message
		if message == "" && t.Status == "pending" {
			message = "Waiting..."
		}
		fmt.Fprintf(m.out, "  %s %s %s\n", m.statusIndicator(t.Status),
			debugStyle.Render(elapsed.Round(time.Second).String()), styleMessage(t.Status, message))
		lineCount++
		for _, line := range t.StreamLines {
			if lineCount >= availableLines {
				break
			}
			fmt.Fprintf(m.out, "      %s\n", streamStyle.Render(line))
			lineCount++
		}
	}
	m.numLines = lineCount
}

func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.updateDisplay()
				m.ShowSummary()
				return
			}
		}
	}()
}

// StopDisplay draws the final state and the summary. It is safe to call
// more than once.
func (m *Manager) StopDisplay() {
	m.stopOnce.Do(func() { close(m.doneCh) })
	m.displayWg.Wait()
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, "  "+errorStyle.Bold(true).Render("Errors:"))
	for i, e := range m.errors {
		fmt.Fprintf(m.out, "    %s %s %s\n",
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", e.Time.Format("15:04:05"))),
			errorStyle.Render(e.Label))
		fmt.Fprintf(m.out, "      %s\n", errorStyle.Render(fmt.Sprintf("Error: %v", e.Error)))
	}
}

func (m *Manager) ShowSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var success, failures int
	for _, t := range m.tasks {
		switch t.Status {
		case "success":
			success++
		case "error":
			failures++
		}
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, "  "+success2Style.Render(fmt.Sprintf("Completed %d of %d", success, len(m.tasks))))
	if failures > 0 {
		fmt.Fprintln(m.out, "  "+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failures, len(m.tasks))))
	}
	m.displayErrors()
	fmt.Fprintln(m.out)
}
