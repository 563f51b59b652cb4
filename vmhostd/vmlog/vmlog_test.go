package vmlog

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-test/deep"
)

func fixedNow() time.Time {
	return time.Date(2024, time.March, 5, 14, 7, 9, 0, time.Local)
}

func newTestSink(t *testing.T) *Sink {
	t.Helper()

	sink := New(t.TempDir())
	sink.now = fixedNow

	return sink
}

func TestFormat(t *testing.T) {
	got := Format(fixedNow(), "hello")
	want := "[2024-03-05 14:07:09] hello"

	if got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestSinkEviction(t *testing.T) {
	sink := New("")
	total := MaxLines + 537

	for i := range total {
		sink.Append("vm1", strconv.Itoa(i))
	}

	got := sink.Read("vm1", 0)
	if len(got) != MaxLines {
		t.Fatalf("Read() returned %d lines, want %d", len(got), MaxLines)
	}

	for i, line := range got {
		want := strconv.Itoa(total - MaxLines + i)
		if !strings.HasSuffix(line, "] "+want) {
			t.Fatalf("line %d = %q, want suffix %q", i, line, want)
		}
	}
}

func TestSinkRead(t *testing.T) {
	sink := newTestSink(t)

	for _, msg := range []string{"a", "b", "c"} {
		sink.Append("vm1", msg)
	}

	all := []string{
		"[2024-03-05 14:07:09] a",
		"[2024-03-05 14:07:09] b",
		"[2024-03-05 14:07:09] c",
	}

	tests := []struct {
		name string
		vm   string
		from int
		want []string
	}{
		{name: "fromZero", vm: "vm1", from: 0, want: all},
		{name: "negative", vm: "vm1", from: -5, want: all},
		{name: "middle", vm: "vm1", from: 1, want: all[1:]},
		{name: "atEnd", vm: "vm1", from: 3, want: []string{}},
		{name: "pastEnd", vm: "vm1", from: 300, want: []string{}},
		{name: "unknownVM", vm: "nope", from: 0, want: []string{}},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			got := sink.Read(testCase.vm, testCase.from)

			diff := deep.Equal(got, testCase.want)
			if diff != nil {
				t.Errorf("compare failed: %v", diff)
			}
		})
	}
}

func TestSinkFile(t *testing.T) {
	sink := newTestSink(t)

	sink.Append("vm1", "VM启动")
	sink.Append("vm1", "second")
	sink.Append("vm2", "other")

	data, err := os.ReadFile(filepath.Join(sink.dir, "VM-vm1.log"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	want := "[2024-03-05 14:07:09] VM启动\n[2024-03-05 14:07:09] second\n"
	if string(data) != want {
		t.Errorf("log file = %q, want %q", data, want)
	}

	if sink.Len("vm2") != 1 {
		t.Errorf("Len(vm2) = %d, want 1", sink.Len("vm2"))
	}
}

func TestSinkFileErrorSwallowed(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")

	err := os.WriteFile(blocker, nil, 0o600)
	if err != nil {
		t.Fatal(err)
	}

	// log dir is a regular file, so every write fails
	sink := New(blocker)
	sink.Append("vm1", "still buffered")

	if got := sink.Read("vm1", 0); len(got) != 1 {
		t.Errorf("Read() = %v, want one line", got)
	}
}

func TestSinkClear(t *testing.T) {
	sink := newTestSink(t)

	sink.Append("vm1", "a")
	sink.Append("vm1", "b")

	err := sink.Clear("vm1")
	if err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	if sink.Len("vm1") != 0 {
		t.Errorf("Len() after Clear = %d", sink.Len("vm1"))
	}

	info, err := os.Stat(sink.Path("vm1"))
	if err != nil {
		t.Fatalf("stat log: %v", err)
	}

	if info.Size() != 0 {
		t.Errorf("log file size after Clear = %d", info.Size())
	}

	// clearing a VM that never logged is fine
	err = sink.Clear("never")
	if err != nil {
		t.Errorf("Clear(never) error = %v", err)
	}

	sink.Append("vm1", "c")
	diff := deep.Equal(sink.Read("vm1", 0), []string{"[2024-03-05 14:07:09] c"})
	if diff != nil {
		t.Errorf("compare failed: %v", diff)
	}
}

func TestSinkForget(t *testing.T) {
	sink := New("")
	sink.Append("vm1", "a")
	sink.Forget("vm1")

	if sink.Len("vm1") != 0 {
		t.Errorf("Len() after Forget = %d", sink.Len("vm1"))
	}
}

func TestSinkConcurrent(t *testing.T) {
	sink := New("")

	var wg sync.WaitGroup

	for w := range 8 {
		wg.Add(1)

		go func(w int) {
			defer wg.Done()

			for i := range 300 {
				sink.Append("vm"+strconv.Itoa(w%2), strconv.Itoa(i))
				_ = sink.Read("vm0", i)
			}
		}(w)
	}

	wg.Wait()

	if sink.Len("vm0") != MaxLines || sink.Len("vm1") != MaxLines {
		t.Errorf("Len() = %d/%d, want %d", sink.Len("vm0"), sink.Len("vm1"), MaxLines)
	}
}
