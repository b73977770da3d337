package consolebus

import (
	"testing"

	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/schema"
)

func TestBusFansOutToSubscribers(t *testing.T) {
	bus := New(nil)
	first, cancelFirst := bus.Subscribe("web")
	defer cancelFirst()
	second, cancelSecond := bus.Subscribe("web")
	defer cancelSecond()
	other, cancelOther := bus.Subscribe("db")
	defer cancelOther()

	bus.OnOutput(schema.OutputEvent{Console: "web", Lines: []schema.ConsoleLine{{Text: "hello"}}})

	for _, ch := range []<-chan Event{first, second} {
		select {
		case event := <-ch:
			if event.Type != EventOutput || len(event.Output.Lines) != 1 || event.Output.Lines[0].Text != "hello" {
				t.Fatalf("unexpected event %+v", event)
			}
		default:
			t.Fatalf("expected event delivered to subscriber")
		}
	}
	select {
	case event := <-other:
		t.Fatalf("expected no event for other console, got %+v", event)
	default:
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("web")
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed after cancel")
	}
	// Publishing after unsubscribe must not panic.
	bus.OnClear(schema.ClearEvent{Console: "web"})
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	bus := New(nil)
	bus.depth = 1
	ch, cancel := bus.Subscribe("web")
	defer cancel()

	bus.OnImportantLine(schema.ImportantLineEvent{Console: "web", Line: schema.ConsoleLine{Text: "one"}})
	bus.OnImportantLine(schema.ImportantLineEvent{Console: "web", Line: schema.ConsoleLine{Text: "two"}})

	event := <-ch
	if event.Important.Line.Text != "one" {
		t.Fatalf("expected first event retained, got %+v", event)
	}
	select {
	case event := <-ch:
		t.Fatalf("expected second event dropped, got %+v", event)
	default:
	}
}

func TestBusSessionStateRoundTrip(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("web")
	defer cancel()

	code := 2
	bus.OnSessionState(schema.SessionStateEvent{Console: "web", Kind: schema.SessionCommand, Running: false, ExitCode: &code})
	event := <-ch
	if event.Type != EventSessionState || event.Session.Kind != schema.SessionCommand {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.Session.ExitCode == nil || *event.Session.ExitCode != 2 {
		t.Fatalf("expected exit code 2, got %+v", event.Session.ExitCode)
	}
}
