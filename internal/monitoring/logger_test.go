package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLoggerRedirects(t *testing.T) {
	orig := Logf
	defer SetLogger(orig)

	var got []string
	SetLogger(func(format string, v ...any) {
		got = append(got, fmt.Sprintf(format, v...))
	})

	Logf("processed %d steps", 7)
	assert.Equal(t, []string{"processed 7 steps"}, got)
}

func TestSetLoggerNilMutes(t *testing.T) {
	orig := Logf
	defer SetLogger(orig)

	SetLogger(nil)
	assert.NotPanics(t, func() { Logf("dropped %s", "line") })
}

func TestComponentPrefix(t *testing.T) {
	orig := Logf
	defer SetLogger(orig)

	var got string
	SetLogger(func(format string, v ...any) {
		got = fmt.Sprintf(format, v...)
	})

	logf := Component("Pipeline")
	logf("session %s done", "sess-1")
	assert.Equal(t, "[Pipeline] session sess-1 done", got)
}
