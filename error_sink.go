package wesviz

import (
	"github.com/sirupsen/logrus"
)

// ErrorSink is the user visible log of non-fatal problems. It is append-only
// between resets; adding datasets and applying a config each start a fresh
// batch, while render passes only append.
//
// Not safe for concurrent use. It is owned by the Controller's event loop.
type ErrorSink struct {
	messages []string
	logger   logrus.FieldLogger
}

func NewErrorSink() *ErrorSink {
	return &ErrorSink{
		messages: []string{},
		logger:   logrus.WithField("tag", "ErrorSink"),
	}
}

func (s *ErrorSink) Reset() {
	s.messages = []string{}
}

func (s *ErrorSink) Append(messages ...string) {
	for _, msg := range messages {
		s.logger.Warn(msg)
		s.messages = append(s.messages, msg)
	}
}

func (s *ErrorSink) AppendError(err error) {
	if err == nil {
		return
	}
	s.Append(err.Error())
}

// Messages returns a copy of the current batch.
func (s *ErrorSink) Messages() []string {
	messages := make([]string, len(s.messages))
	copy(messages, s.messages)
	return messages
}

func (s *ErrorSink) Len() int {
	return len(s.messages)
}
