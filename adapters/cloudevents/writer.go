package cloudevents

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/cloudevents/sdk-go/v2/binding"
	"github.com/cloudevents/sdk-go/v2/protocol"
)

// WriterSender writes every event as one line of structured CloudEvents
// JSON to w.
type WriterSender struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSender(w io.Writer) *WriterSender { return &WriterSender{w: w} }

func (s *WriterSender) Send(ctx context.Context, m binding.Message, transformers ...binding.Transformer) error {
	defer m.Finish(nil)
	e, err := binding.ToEvent(ctx, m, transformers...)
	if err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(append(data, '\n'))
	return err
}

var _ protocol.Sender = (*WriterSender)(nil)
