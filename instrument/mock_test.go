package instrument_test

import (
	"fmt"
	"io"
	"sync"
	"time"

	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/scpictl/instrument"
)

// replyTransport wires a MockTransport so that Read blocks like a real
// port. Reads may happen at any time on the session's read loop, so they are
// not part of the expected sequence; scripted writes push the instrument's
// reply instead.
type replyTransport struct {
	*instrument.MockTransport
	replies   chan string
	closeOnce sync.Once
}

func newReplyTransport(ctrl *gomock.Controller) *replyTransport {
	rt := &replyTransport{
		MockTransport: instrument.NewMockTransport(ctrl),
		replies:       make(chan string, 16),
	}

	var pending []byte
	rt.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		if len(pending) == 0 {
			reply, ok := <-rt.replies
			if !ok {
				return 0, io.EOF
			}
			pending = []byte(reply)
		}
		n := copy(p, pending)
		pending = pending[n:]
		return n, nil
	}).AnyTimes()
	return rt
}

// ExpectClose accepts the Close call and ends the read loop.
func (rt *replyTransport) ExpectClose() {
	rt.EXPECT().Close().DoAndReturn(func() error {
		rt.closeOnce.Do(func() { close(rt.replies) })
		return nil
	})
}

// pollingTransport is a replyTransport with out-of-band serial poll and
// device clear, as on a GPIB bus.
type pollingTransport struct {
	*replyTransport
	*instrument.MockSerialPoller
	*instrument.MockDeviceClearer
}

func newPollingTransport(ctrl *gomock.Controller) *pollingTransport {
	return &pollingTransport{
		replyTransport:    newReplyTransport(ctrl),
		MockSerialPoller:  instrument.NewMockSerialPoller(ctrl),
		MockDeviceClearer: instrument.NewMockDeviceClearer(ctrl),
	}
}

type MockSequenceBuilder struct {
	transport *replyTransport
	calls     []any
}

func NewMockSequence(transport *replyTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		transport: transport,
		calls:     []any{},
	}
}

// Init is the *CLS and enable mask message sent by Open.
func (b *MockSequenceBuilder) Init() *MockSequenceBuilder {
	return b.Command("*CLS;*ESE 60;*SRE 0\n")
}

func (b *MockSequenceBuilder) Command(msg string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(msg)).Return(len(msg), nil),
	)
	return b
}

func (b *MockSequenceBuilder) Query(msg, reply string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(msg)).DoAndReturn(func(p []byte) (int, error) {
			b.transport.replies <- reply
			return len(p), nil
		}),
	)
	return b
}

// Unanswered is a query the instrument never responds to.
func (b *MockSequenceBuilder) Unanswered(msg string) *MockSequenceBuilder {
	return b.Command(msg)
}

func (b *MockSequenceBuilder) Status(stb byte) *MockSequenceBuilder {
	return b.Query("*STB?\n", fmt.Sprintf("%d\n", stb))
}

func (b *MockSequenceBuilder) EventStatus(esr byte) *MockSequenceBuilder {
	return b.Query("*ESR?\n", fmt.Sprintf("%d\n", esr))
}

func (b *MockSequenceBuilder) ErrorEntry(entry string) *MockSequenceBuilder {
	return b.Query(":SYSTem:ERRor?\n", entry+"\n")
}

func (b *MockSequenceBuilder) NoError() *MockSequenceBuilder {
	return b.ErrorEntry(`+0,"No error"`)
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}

// stalledClock never lets a poll interval elapse.
type stalledClock struct{}

func (stalledClock) Now() time.Time                       { return time.Time{} }
func (stalledClock) After(time.Duration) <-chan time.Time { return nil }

// fakeClock advances only when a poll loop waits on it.
type fakeClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
}

func newFakeClock() *fakeClock {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &fakeClock{start: t, now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Sub(c.start)
}
