package anomaly

import (
	"strings"
	"testing"
	"time"

	"github.com/mbd888/warden/internal/behavior"
)

func keystrokeAt(key string, at time.Time) behavior.KeystrokeEvent {
	return behavior.KeystrokeEvent{Key: key, PressTime: at, ReleaseTime: at.Add(50 * time.Millisecond), Timestamp: at}
}

func pointerAt(kind behavior.PointerKind, at time.Time) behavior.PointerEvent {
	return behavior.PointerEvent{Kind: kind, X: 1, Y: 1, Timestamp: at}
}

func TestSignatureMergesByTimestamp(t *testing.T) {
	base := time.Unix(1700000000, 0)
	d := NewDetector(Config{})

	keystrokes := []behavior.KeystrokeEvent{
		keystrokeAt("a", base),
		keystrokeAt("b", base.Add(2*time.Second)),
	}
	pointers := []behavior.PointerEvent{
		pointerAt(behavior.PointerClick, base.Add(time.Second)),
	}

	got := d.Signature(keystrokes, pointers, base.Add(3*time.Second))
	if got != "k:a|m:click|k:b" {
		t.Errorf("signature = %q, want k:a|m:click|k:b", got)
	}
}

func TestSignatureTakesLastKPerModality(t *testing.T) {
	base := time.Unix(1700000000, 0)
	d := NewDetector(Config{SignatureEvents: 2})

	var keystrokes []behavior.KeystrokeEvent
	for i, key := range []string{"a", "b", "c", "d"} {
		keystrokes = append(keystrokes, keystrokeAt(key, base.Add(time.Duration(i)*time.Second)))
	}

	got := d.Signature(keystrokes, nil, base.Add(time.Minute))
	if got != "k:c|k:d" {
		t.Errorf("signature = %q, want k:c|k:d", got)
	}
}

func TestSignatureMaxAgeFiltersStaleEvents(t *testing.T) {
	base := time.Unix(1700000000, 0)
	d := NewDetector(Config{SignatureMaxAge: time.Minute})

	keystrokes := []behavior.KeystrokeEvent{
		keystrokeAt("old", base),
		keystrokeAt("new", base.Add(10*time.Minute)),
	}

	got := d.Signature(keystrokes, nil, base.Add(10*time.Minute))
	if got != "k:new" {
		t.Errorf("signature = %q, want k:new", got)
	}
}

func TestSignatureEmptyInput(t *testing.T) {
	d := NewDetector(Config{})
	if got := d.Signature(nil, nil, time.Now()); got != "" {
		t.Errorf("signature of no events = %q, want empty", got)
	}
}

func TestSignatureDeterministic(t *testing.T) {
	base := time.Unix(1700000000, 0)
	d := NewDetector(Config{})
	keystrokes := []behavior.KeystrokeEvent{keystrokeAt("a", base), keystrokeAt("b", base.Add(time.Second))}
	pointers := []behavior.PointerEvent{pointerAt(behavior.PointerMove, base.Add(500 * time.Millisecond))}

	first := d.Signature(keystrokes, pointers, base.Add(time.Minute))
	second := d.Signature(keystrokes, pointers, base.Add(time.Minute))
	if first != second {
		t.Errorf("signature not deterministic: %q vs %q", first, second)
	}
	if !strings.Contains(first, "m:move") {
		t.Errorf("signature %q missing pointer token", first)
	}
}

func TestEvaluatePatternCountsThenBlocks(t *testing.T) {
	base := time.Unix(1700000000, 0)
	d := NewDetector(Config{PatternBlockThreshold: 3})
	keystrokes := []behavior.KeystrokeEvent{keystrokeAt("x", base), keystrokeAt("x", base.Add(time.Second))}

	ev := d.EvaluatePattern(keystrokes, nil, base.Add(time.Minute))
	if ev.Outcome != PatternObserved || ev.Occurrences != 1 {
		t.Fatalf("first evaluation = %+v, want observed count 1", ev)
	}

	ev = d.EvaluatePattern(keystrokes, nil, base.Add(time.Minute))
	if ev.Outcome != PatternObserved || ev.Occurrences != 2 {
		t.Fatalf("second evaluation = %+v, want observed count 2", ev)
	}

	ev = d.EvaluatePattern(keystrokes, nil, base.Add(time.Minute))
	if ev.Outcome != PatternBlocked || ev.Occurrences != 3 {
		t.Fatalf("third evaluation = %+v, want pattern_blocked count 3", ev)
	}

	// Once blocked, evaluations short-circuit without growing the count.
	ev = d.EvaluatePattern(keystrokes, nil, base.Add(time.Minute))
	if ev.Outcome != PatternAlreadyBlocked {
		t.Fatalf("fourth evaluation = %+v, want blocked_pattern", ev)
	}
	if ev.Occurrences != 3 {
		t.Errorf("blocked signature count = %d, want unchanged 3", ev.Occurrences)
	}
}

func TestEvaluatePatternDistinctShapes(t *testing.T) {
	base := time.Unix(1700000000, 0)
	d := NewDetector(Config{PatternBlockThreshold: 2})

	shapeA := []behavior.KeystrokeEvent{keystrokeAt("a", base), keystrokeAt("a", base.Add(time.Second))}
	shapeB := []behavior.KeystrokeEvent{keystrokeAt("b", base), keystrokeAt("b", base.Add(time.Second))}

	d.EvaluatePattern(shapeA, nil, base.Add(time.Minute))
	ev := d.EvaluatePattern(shapeB, nil, base.Add(time.Minute))
	if ev.Occurrences != 1 {
		t.Errorf("distinct shape shares a count: %+v", ev)
	}
}
