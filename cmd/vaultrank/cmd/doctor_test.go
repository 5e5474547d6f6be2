package cmd

import (
	"bytes"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// execDoctor executes the doctor command with the given args and returns
// its stdout. Failures from system checks are expected on some hosts,
// so the error is returned rather than asserted.
func execDoctor(t *testing.T, args ...string) (string, error) {
	t.Helper()
	doctor := newDoctorCmd()
	var out bytes.Buffer
	doctor.SetOut(&out)
	doctor.SetErr(&bytes.Buffer{})
	doctor.SetArgs(args)
	err := doctor.Execute()
	return out.String(), err
}

func TestDoctorCmd_GoroutineHygiene(t *testing.T) {
	settle := func(d time.Duration) int {
		runtime.GC()
		time.Sleep(d)
		return runtime.NumGoroutine()
	}
	before := settle(50 * time.Millisecond)

	for range 5 {
		_, _ = execDoctor(t, "--offline")
	}

	after := settle(100 * time.Millisecond)
	assert.LessOrEqual(t, after-before, 2, "goroutine leak: before=%d after=%d", before, after)
}

func TestDoctorCmd_PrintsReport(t *testing.T) {
	out, _ := execDoctor(t, "--offline")

	assert.NotEmpty(t, out)
}

func TestDoctorCmd_JSON(t *testing.T) {
	out, _ := execDoctor(t, "--json", "--offline")

	assert.Contains(t, out, `"status"`)
	assert.Contains(t, out, `"checks"`)
}

func TestDoctorCmd_RejectsArgs(t *testing.T) {
	_, err := execDoctor(t, "extra")

	assert.Error(t, err, "doctor takes no positional arguments")
}
