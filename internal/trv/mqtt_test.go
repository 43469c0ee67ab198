package trv

import (
	"context"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"roomheat/internal/logger"
	"roomheat/internal/service"
)

type fakeToken struct {
	timedOut bool
	err      error
}

func (t *fakeToken) Wait() bool { return !t.timedOut }

func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timedOut }

func (t *fakeToken) Error() error { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// fakeBrokerClient implements paho.Client with canned tokens.
type fakeBrokerClient struct {
	subscribeToken *fakeToken
	publishToken   *fakeToken

	subscribed []string
	published  map[string]string
}

func (f *fakeBrokerClient) IsConnected() bool { return true }

func (f *fakeBrokerClient) IsConnectionOpen() bool { return true }

func (f *fakeBrokerClient) Connect() paho.Token { return &fakeToken{} }

func (f *fakeBrokerClient) Disconnect(uint) {}

func (f *fakeBrokerClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	if f.published == nil {
		f.published = make(map[string]string)
	}
	f.published[topic], _ = payload.(string)
	if f.publishToken != nil {
		return f.publishToken
	}
	return &fakeToken{}
}

func (f *fakeBrokerClient) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	f.subscribed = append(f.subscribed, topic)
	if f.subscribeToken != nil {
		return f.subscribeToken
	}
	return &fakeToken{}
}

func (f *fakeBrokerClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &fakeToken{}
}

func (f *fakeBrokerClient) Unsubscribe(...string) paho.Token { return &fakeToken{} }

func (f *fakeBrokerClient) AddRoute(string, paho.MessageHandler) {}

func (f *fakeBrokerClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }

func observedLogger() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return &logger.Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func testFeed(log *logger.Logger) *service.TRVFeed {
	return service.NewTRVFeed(service.NewTRVTracker(), nil, log)
}

func TestSubscribe_TimeoutIsLogged(t *testing.T) {
	log, logs := observedLogger()
	broker := &fakeBrokerClient{subscribeToken: &fakeToken{timedOut: true}}
	c := &Client{client: broker, log: log}

	c.Start(testFeed(log))

	if got := len(broker.subscribed); got != 2 {
		t.Fatalf("subscriptions = %d, want 2", got)
	}
	if got := logs.FilterMessage("mqtt subscribe timeout").Len(); got != 2 {
		t.Fatalf("timeout log entries = %d, want 2", got)
	}
	if got := logs.FilterMessage("mqtt subscribe failed").Len(); got != 0 {
		t.Fatalf("failure log entries = %d, want 0", got)
	}
}

func TestSubscribe_ErrorIsLogged(t *testing.T) {
	log, logs := observedLogger()
	broker := &fakeBrokerClient{subscribeToken: &fakeToken{err: context.DeadlineExceeded}}
	c := &Client{client: broker, log: log}

	c.Start(testFeed(log))

	if got := logs.FilterMessage("mqtt subscribe failed").Len(); got != 2 {
		t.Fatalf("failure log entries = %d, want 2", got)
	}
}

func TestSubscribe_NoFeedNoSubscriptions(t *testing.T) {
	log, _ := observedLogger()
	broker := &fakeBrokerClient{}
	c := &Client{client: broker, log: log}

	// Reconnect callback before Start: nothing to subscribe for yet.
	c.subscribe(broker)

	if got := len(broker.subscribed); got != 0 {
		t.Fatalf("subscriptions = %d, want 0", got)
	}
}

func TestSendSetTemperature_FormatsCommand(t *testing.T) {
	log, _ := observedLogger()
	broker := &fakeBrokerClient{}
	c := &Client{client: broker, log: log}

	if err := c.SendSetTemperature(context.Background(), "shellytrv-aa", 21.5); err != nil {
		t.Fatalf("send: %v", err)
	}

	topic := "shellies/shellytrv-aa/thermostat/0/command/target_t"
	if got := broker.published[topic]; got != "21.5" {
		t.Fatalf("payload = %q, want 21.5", got)
	}
}

func TestSendSetTemperature_PublishTimeout(t *testing.T) {
	log, _ := observedLogger()
	broker := &fakeBrokerClient{publishToken: &fakeToken{timedOut: true}}
	c := &Client{client: broker, log: log}

	if err := c.SendSetTemperature(context.Background(), "shellytrv-aa", 21.5); err == nil {
		t.Fatalf("expected publish timeout error")
	}
}

func TestActuatorFromTopic(t *testing.T) {
	cases := []struct {
		topic string
		id    string
		ok    bool
	}{
		{"shellies/shellytrv-aa/status", "shellytrv-aa", true},
		{"shellies/shellytrv-aa/info", "shellytrv-aa", true},
		{"shellies//status", "", false},
		{"other/shellytrv-aa/status", "", false},
		{"shellies", "", false},
	}
	for _, tc := range cases {
		id, ok := actuatorFromTopic(tc.topic)
		if ok != tc.ok || string(id) != tc.id {
			t.Errorf("actuatorFromTopic(%q) = (%q, %v), want (%q, %v)", tc.topic, id, ok, tc.id, tc.ok)
		}
	}
}
