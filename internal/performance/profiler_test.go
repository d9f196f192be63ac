package performance

import (
	"testing"
	"time"
)

func findStage(report Report, name string) *StageReport {
	for i := range report.Stages {
		if report.Stages[i].Name == name {
			return &report.Stages[i]
		}
	}
	return nil
}

func TestProfilerRecordsOperation(t *testing.T) {
	profiler := NewProfiler(true)

	op := profiler.Start("chunk.sample")
	time.Sleep(10 * time.Millisecond)
	op.End()

	stage := findStage(profiler.Snapshot(), "chunk.sample")
	if stage == nil {
		t.Fatal("stage not found in snapshot")
	}
	if stage.Count != 1 {
		t.Errorf("count = %d, want 1", stage.Count)
	}
	if stage.MinMs < 10 || stage.MinMs > 50 {
		t.Errorf("min = %.1fms, want ~10ms", stage.MinMs)
	}
}

func TestProfilerDisabled(t *testing.T) {
	profiler := NewProfiler(false)

	op := profiler.Start("chunk.sample")
	if op != nil {
		t.Error("Start should return nil when disabled")
	}
	op.End() // nil receiver is safe

	profiler.Record("chunk.sample", 10*time.Millisecond)
	if stages := profiler.Snapshot().Stages; len(stages) != 0 {
		t.Errorf("recorded %d stages while disabled, want 0", len(stages))
	}
}

func TestProfilerAggregates(t *testing.T) {
	profiler := NewProfiler(true)

	durations := []time.Duration{
		5 * time.Millisecond,
		15 * time.Millisecond,
		10 * time.Millisecond,
	}
	for _, d := range durations {
		profiler.Record("chunk.upload", d)
	}

	stage := findStage(profiler.Snapshot(), "chunk.upload")
	if stage == nil {
		t.Fatal("stage not found in snapshot")
	}
	if stage.Count != 3 {
		t.Errorf("count = %d, want 3", stage.Count)
	}
	if stage.MinMs != 5 {
		t.Errorf("min = %.1fms, want 5ms", stage.MinMs)
	}
	if stage.MaxMs != 15 {
		t.Errorf("max = %.1fms, want 15ms", stage.MaxMs)
	}
	if stage.AvgMs != 10 {
		t.Errorf("avg = %.1fms, want 10ms", stage.AvgMs)
	}
	if stage.LastMs != 10 {
		t.Errorf("last = %.1fms, want 10ms", stage.LastMs)
	}
}

func TestProfilerSnapshotSorted(t *testing.T) {
	profiler := NewProfiler(true)

	profiler.Record("chunk.upload", time.Millisecond)
	profiler.Record("chunk.publish", time.Millisecond)
	profiler.Record("chunk.sample", time.Millisecond)

	report := profiler.Snapshot()
	if len(report.Stages) != 3 {
		t.Fatalf("got %d stages, want 3", len(report.Stages))
	}
	want := []string{"chunk.publish", "chunk.sample", "chunk.upload"}
	for i, name := range want {
		if report.Stages[i].Name != name {
			t.Errorf("stage[%d] = %q, want %q", i, report.Stages[i].Name, name)
		}
	}
}

func TestProfilerReset(t *testing.T) {
	profiler := NewProfiler(true)

	profiler.Record("chunk.sample", time.Millisecond)
	profiler.Reset()

	if stages := profiler.Snapshot().Stages; len(stages) != 0 {
		t.Errorf("got %d stages after reset, want 0", len(stages))
	}
}

func TestProfilerEnableDisable(t *testing.T) {
	profiler := NewProfiler(false)
	if profiler.IsEnabled() {
		t.Error("profiler should start disabled")
	}

	profiler.Enable()
	profiler.Record("chunk.sample", time.Millisecond)
	profiler.Disable()
	profiler.Record("chunk.sample", time.Millisecond)

	stage := findStage(profiler.Snapshot(), "chunk.sample")
	if stage == nil {
		t.Fatal("stage not found in snapshot")
	}
	if stage.Count != 1 {
		t.Errorf("count = %d, want 1 (disable should stop recording)", stage.Count)
	}
}
