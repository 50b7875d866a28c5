package gateway

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/dgarciamx/Tramita/internal/domain"
)

func TestGateway_OrderedDelivery(t *testing.T) {
	g := New(nil, nil)
	taskID := uuid.New()

	ch, cancel := g.Subscribe(taskID)
	defer cancel()

	for i := 1; i <= 10; i++ {
		g.PublishEvent(context.Background(), &domain.TaskEvent{
			TaskID:  taskID,
			Seq:     i,
			Type:    domain.EventAction,
			Message: fmt.Sprintf("step %d", i),
		})
	}

	for i := 1; i <= 10; i++ {
		n := <-ch
		if n.Event == nil || n.Event.Seq != i {
			t.Fatalf("expected seq %d, got %+v", i, n)
		}
	}
}

func TestGateway_LateSubscriberFromNow(t *testing.T) {
	g := New(nil, nil)
	taskID := uuid.New()

	// Событие до подписки не доставляется.
	g.PublishEvent(context.Background(), &domain.TaskEvent{TaskID: taskID, Seq: 1, Type: domain.EventAction})

	ch, cancel := g.Subscribe(taskID)
	defer cancel()

	g.PublishEvent(context.Background(), &domain.TaskEvent{TaskID: taskID, Seq: 2, Type: domain.EventAction})

	n := <-ch
	if n.Event.Seq != 2 {
		t.Fatalf("late subscriber must start from now, got seq %d", n.Event.Seq)
	}
}

func TestGateway_MultipleObservers(t *testing.T) {
	g := New(nil, nil)
	taskID := uuid.New()

	ch1, cancel1 := g.Subscribe(taskID)
	ch2, cancel2 := g.Subscribe(taskID)
	defer cancel1()
	defer cancel2()

	if g.SubscriberCount(taskID) != 2 {
		t.Fatalf("expected 2 subscribers, got %d", g.SubscriberCount(taskID))
	}

	g.PublishStatus(context.Background(), &StatusChange{TaskID: taskID, Status: domain.StatusRunning})

	for _, ch := range []<-chan Notification{ch1, ch2} {
		n := <-ch
		if n.Transition == nil || n.Transition.Status != domain.StatusRunning {
			t.Fatalf("unexpected notification: %+v", n)
		}
	}
}

func TestGateway_UnsubscribeClosesChannel(t *testing.T) {
	g := New(nil, nil)
	taskID := uuid.New()

	ch, cancel := g.Subscribe(taskID)
	cancel()

	if _, open := <-ch; open {
		t.Error("channel should be closed after unsubscribe")
	}
	if g.SubscriberCount(taskID) != 0 {
		t.Error("subscriber should be removed")
	}

	// Повторная отписка безопасна.
	cancel()
}

func TestGateway_SlowSubscriberDropped(t *testing.T) {
	g := New(nil, nil)
	taskID := uuid.New()

	ch, cancel := g.Subscribe(taskID)
	defer cancel()

	// Переполняем буфер, не читая канал.
	for i := 0; i < subscriberBuffer+1; i++ {
		g.PublishEvent(context.Background(), &domain.TaskEvent{TaskID: taskID, Seq: i, Type: domain.EventAction})
	}

	if g.SubscriberCount(taskID) != 0 {
		t.Error("overflowing subscriber should be dropped")
	}
	_ = ch
}

type recordingFanout struct {
	events   int
	statuses int
}

func (f *recordingFanout) PublishEvent(context.Context, *domain.TaskEvent) error {
	f.events++
	return nil
}

func (f *recordingFanout) PublishStatus(context.Context, *StatusChange) error {
	f.statuses++
	return nil
}

func TestGateway_FanoutReceivesEverything(t *testing.T) {
	fanout := &recordingFanout{}
	g := New(fanout, nil)
	taskID := uuid.New()

	g.PublishEvent(context.Background(), &domain.TaskEvent{TaskID: taskID, Type: domain.EventAction})
	g.PublishStatus(context.Background(), &StatusChange{TaskID: taskID, Status: domain.StatusCompleted})

	if fanout.events != 1 || fanout.statuses != 1 {
		t.Errorf("fanout missed notifications: %+v", fanout)
	}
}
