package agent

import "testing"

func TestStuckRepeatedCall(t *testing.T) {
	var d stuckDetector
	d.record("read_file", "aaa")
	d.record("list_directory", "bbb")
	d.record("read_file", "aaa")
	if stuck, _ := d.detect(); stuck {
		t.Fatal("two occurrences must not trigger")
	}
	d.record("read_file", "aaa")
	stuck, reason := d.detect()
	if !stuck || reason != "tool_loop" {
		t.Fatalf("detect = (%v, %q), want (true, tool_loop)", stuck, reason)
	}
}

func TestStuckSameToolDifferentParamsOK(t *testing.T) {
	var d stuckDetector
	d.record("read_file", "a")
	d.record("read_file", "b")
	d.record("read_file", "c")
	if stuck, _ := d.detect(); stuck {
		t.Fatal("same tool with different params is progress, not a loop")
	}
}

func TestStuckCycle(t *testing.T) {
	var d stuckDetector
	// navigate→snapshot repeated three times, each with fresh params.
	pairs := []string{"1", "2", "3", "4", "5", "6"}
	for i := 0; i < 6; i += 2 {
		d.record("browser_navigate", pairs[i])
		d.record("browser_snapshot", pairs[i+1])
	}
	stuck, reason := d.detect()
	if !stuck || reason != "cycle" {
		t.Fatalf("detect = (%v, %q), want (true, cycle)", stuck, reason)
	}
}

func TestStuckCycleNeedsThreeRepeats(t *testing.T) {
	var d stuckDetector
	d.record("browser_navigate", "1")
	d.record("browser_snapshot", "2")
	d.record("browser_navigate", "3")
	d.record("browser_snapshot", "4")
	if stuck, _ := d.detect(); stuck {
		t.Fatal("two cycle repeats must not trigger")
	}
}

func TestStuckWindowSlides(t *testing.T) {
	var d stuckDetector
	d.record("read_file", "x")
	d.record("read_file", "x")
	// Push the pair out of the window with unrelated calls.
	for i := 0; i < stuckWindow; i++ {
		d.record("run_command", string(rune('a'+i)))
	}
	d.record("read_file", "x")
	if stuck, _ := d.detect(); stuck {
		t.Fatal("occurrences outside the sliding window must not count")
	}
}

func TestStuckReset(t *testing.T) {
	var d stuckDetector
	for i := 0; i < 3; i++ {
		d.record("glob", "same")
	}
	if stuck, _ := d.detect(); !stuck {
		t.Fatal("setup should be stuck")
	}
	d.reset()
	if stuck, _ := d.detect(); stuck {
		t.Fatal("reset must clear the window")
	}
}
