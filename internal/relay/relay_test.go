package relay

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/cashoffer-funnel/internal/leads"
	"github.com/wolfman30/cashoffer-funnel/pkg/logging"
)

func sampleEvent() Event {
	lead := leads.Merge(nil, leads.Payload{Address: "1 A St", Phone: "(555) 123-4567"}, leads.DefaultIdentity(), time.Now())
	return NewEvent(lead, "")
}

// verifySignature is the receiver side of Sign.
func verifySignature(secret, signature string, timestamp int64, leadID string, body []byte, now time.Time, maxSkew time.Duration) bool {
	skew := now.Sub(time.Unix(timestamp, 0))
	if skew < -maxSkew || skew > maxSkew {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, timestamp, leadID, body)), []byte(signature))
}

func TestSignAndVerify(t *testing.T) {
	body := []byte(`{"a":1}`)
	now := time.Unix(1_700_000_000, 0)
	sig := Sign("secret", now.Unix(), "lead_1", body)
	assert.Regexp(t, `^sha256=[0-9a-f]{64}$`, sig)

	assert.True(t, verifySignature("secret", sig, now.Unix(), "lead_1", body, now, time.Minute))
	assert.False(t, verifySignature("other", sig, now.Unix(), "lead_1", body, now, time.Minute))
	assert.False(t, verifySignature("secret", sig, now.Unix(), "lead_2", body, now, time.Minute))
	assert.False(t, verifySignature("secret", sig, now.Unix(), "lead_1", body, now.Add(10*time.Minute), time.Minute))
}

func TestWebhookSinkSignsAndDelivers(t *testing.T) {
	evt := sampleEvent()
	var got atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ts, err := strconv.ParseInt(r.Header.Get("X-Timestamp"), 10, 64)
		assert.NoError(t, err)
		if !verifySignature("shh", r.Header.Get("X-Signature"), ts, r.Header.Get("X-Lead-ID"), body, time.Now(), time.Minute) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var decoded Event
		assert.NoError(t, json.Unmarshal(body, &decoded))
		assert.Equal(t, evt.Lead.ID, decoded.Lead.ID)
		assert.Equal(t, EventLeadPartial, decoded.Type)
		got.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, "shh", srv.Client())
	require.NoError(t, sink.Deliver(context.Background(), evt))
	assert.Equal(t, int32(1), got.Load())
}

func TestWebhookSinkRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, "", srv.Client())
	sink.maxInterval = 10 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sink.Deliver(ctx, sampleEvent()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookSinkStopsOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	err := NewWebhookSink(srv.URL, "", srv.Client()).Deliver(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

type fakeSQS struct {
	mu    sync.Mutex
	input []*sqs.SendMessageInput
	err   error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.input = append(f.input, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSSink(t *testing.T) {
	fake := &fakeSQS{}
	sink := NewSQSSink(fake, "https://sqs.local/queue/leads")
	evt := sampleEvent()
	require.NoError(t, sink.Deliver(context.Background(), evt))
	require.Len(t, fake.input, 1)
	in := fake.input[0]
	assert.Equal(t, "https://sqs.local/queue/leads", aws.ToString(in.QueueUrl))
	assert.Equal(t, evt.Lead.ID, aws.ToString(in.MessageAttributes["leadId"].StringValue))
	assert.Contains(t, aws.ToString(in.MessageBody), evt.EventID)

	fake.err = errors.New("throttled")
	assert.Error(t, sink.Deliver(context.Background(), evt))
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Name() string { return "recording" }
func (s *recordingSink) Deliver(_ context.Context, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return s.err
}

func TestRelayPublishFansOut(t *testing.T) {
	ok := &recordingSink{}
	failing := &recordingSink{err: errors.New("down")}
	r := New(time.Second, logging.Discard(), ok, failing)

	r.Publish(sampleEvent())
	r.Close()

	assert.Len(t, ok.events, 1)
	assert.Len(t, failing.events, 1)
}

func TestRelayWithoutSinks(t *testing.T) {
	r := New(0, logging.Discard())
	assert.False(t, r.Enabled())
	r.Publish(sampleEvent())
	r.Close()

	var nilRelay *Relay
	nilRelay.Publish(sampleEvent())
	nilRelay.Close()
}
