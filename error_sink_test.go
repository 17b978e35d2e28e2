package wesviz

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorSink(t *testing.T) {
	sink := NewErrorSink()
	assert.Equal(t, []string{}, sink.Messages())

	sink.Append("a", "b")
	sink.AppendError(errors.New("c"))
	sink.AppendError(nil)
	assert.Equal(t, []string{"a", "b", "c"}, sink.Messages())
	assert.Equal(t, 3, sink.Len())

	messages := sink.Messages()
	messages[0] = "changed"
	assert.Equal(t, "a", sink.Messages()[0])

	sink.Reset()
	assert.Equal(t, []string{}, sink.Messages())
	assert.Zero(t, sink.Len())
}
