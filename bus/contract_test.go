package bus

import (
	stderrors "errors"
	"testing"
	"time"
)

// runBusContract exercises the behavior every MessageBus must share.
// The bus is closed at the end.
func runBusContract(t *testing.T, b MessageBus) {
	t.Helper()

	t.Run("PubSub", func(t *testing.T) {
		sub, err := b.Subscribe("threads.snapshot.a")
		if err != nil {
			t.Fatalf("Subscribe error: %v", err)
		}
		defer sub.Unsubscribe()

		if err := b.Publish("threads.snapshot.a", []byte("hello")); err != nil {
			t.Fatalf("Publish error: %v", err)
		}
		msg := receive(t, sub)
		if string(msg.Data) != "hello" {
			t.Errorf("Data = %q, want hello", msg.Data)
		}
		if msg.Subject != "threads.snapshot.a" {
			t.Errorf("Subject = %q", msg.Subject)
		}
	})

	t.Run("Wildcards", func(t *testing.T) {
		one, err := b.Subscribe("wild.*")
		if err != nil {
			t.Fatalf("Subscribe error: %v", err)
		}
		defer one.Unsubscribe()
		tail, err := b.Subscribe("wild.>")
		if err != nil {
			t.Fatalf("Subscribe error: %v", err)
		}
		defer tail.Unsubscribe()

		if err := b.Publish("wild.a.b", []byte("deep")); err != nil {
			t.Fatalf("Publish error: %v", err)
		}
		if err := b.Publish("wild.a", []byte("shallow")); err != nil {
			t.Fatalf("Publish error: %v", err)
		}

		if got := receive(t, one); string(got.Data) != "shallow" {
			t.Errorf("'*' subscriber got %q, want shallow", got.Data)
		}
		if got := receive(t, tail); string(got.Data) != "deep" {
			t.Errorf("'>' subscriber first got %q, want deep", got.Data)
		}
		if got := receive(t, tail); string(got.Data) != "shallow" {
			t.Errorf("'>' subscriber second got %q, want shallow", got.Data)
		}
	})

	t.Run("PublishRejectsWildcard", func(t *testing.T) {
		if err := b.Publish("wild.*", nil); !stderrors.Is(err, ErrInvalidSubject) {
			t.Errorf("Publish(wildcard) = %v, want ErrInvalidSubject", err)
		}
		if err := b.Publish("", nil); !stderrors.Is(err, ErrInvalidSubject) {
			t.Errorf("Publish(empty) = %v, want ErrInvalidSubject", err)
		}
	})

	t.Run("RequestReply", func(t *testing.T) {
		sub, err := b.Subscribe("svc.echo")
		if err != nil {
			t.Fatalf("Subscribe error: %v", err)
		}
		defer sub.Unsubscribe()

		go func() {
			for msg := range sub.Messages() {
				if msg.Reply != "" {
					b.Publish(msg.Reply, append([]byte("re:"), msg.Data...))
				}
			}
		}()

		reply, err := b.Request("svc.echo", []byte("ping"), 2*time.Second)
		if err != nil {
			t.Fatalf("Request error: %v", err)
		}
		if string(reply.Data) != "re:ping" {
			t.Errorf("reply = %q, want re:ping", reply.Data)
		}
	})

	t.Run("NoResponders", func(t *testing.T) {
		_, err := b.Request("svc.nobody", nil, 500*time.Millisecond)
		if !stderrors.Is(err, ErrNoResponders) {
			t.Errorf("Request error = %v, want ErrNoResponders", err)
		}
	})

	t.Run("UnsubscribeClosesChannel", func(t *testing.T) {
		sub, err := b.Subscribe("gone")
		if err != nil {
			t.Fatalf("Subscribe error: %v", err)
		}
		sub.Unsubscribe()

		select {
		case _, ok := <-sub.Messages():
			if ok {
				t.Error("expected closed channel")
			}
		case <-time.After(2 * time.Second):
			t.Error("channel not closed after Unsubscribe")
		}
	})

	t.Run("Closed", func(t *testing.T) {
		if err := b.Close(); err != nil {
			t.Fatalf("Close error: %v", err)
		}
		if err := b.Publish("after.close", nil); !stderrors.Is(err, ErrClosed) {
			t.Errorf("Publish after Close = %v, want ErrClosed", err)
		}
		if _, err := b.Subscribe("after.close"); !stderrors.Is(err, ErrClosed) {
			t.Errorf("Subscribe after Close = %v, want ErrClosed", err)
		}
		if err := b.Close(); err != nil {
			t.Errorf("second Close error: %v", err)
		}
	})
}

func receive(t *testing.T, sub Subscription) *Message {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		if !ok {
			t.Fatal("subscription closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
	return nil
}
