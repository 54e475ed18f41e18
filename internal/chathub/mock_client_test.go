package chathub_test

import (
	"campuscare/backend/internal/models"
	"sync"
	"testing"
	"time"
)

type MockClient struct {
	actor       models.Actor
	RecvChannel chan models.Event
	closed      chan struct{}
	once        sync.Once
}

func newMockClient(userID string, role models.Role) *MockClient {
	return newMockClientBuffered(userID, role, 10)
}

func newMockClientBuffered(userID string, role models.Role, buffer int) *MockClient {
	return &MockClient{
		actor:       models.Actor{ID: userID, Role: role},
		RecvChannel: make(chan models.Event, buffer),
		closed:      make(chan struct{}),
	}
}

func (c *MockClient) GetUserID() string                   { return c.actor.ID }
func (c *MockClient) Actor() models.Actor                 { return c.actor }
func (c *MockClient) GetSendChannel() chan<- models.Event { return c.RecvChannel }
func (c *MockClient) Run()                                {}

func (c *MockClient) Close() {
	c.once.Do(func() { close(c.closed) })
}

func (c *MockClient) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-c.closed:
	case <-time.After(time.Second):
		t.Fatalf("client %s was not closed", c.actor.ID)
	}
}

func (c *MockClient) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// next returns the next event, failing the test after a second.
func (c *MockClient) next(t *testing.T) models.Event {
	t.Helper()
	select {
	case ev := <-c.RecvChannel:
		return ev
	case <-time.After(time.Second):
		t.Fatalf("client %s got no event", c.actor.ID)
		return models.Event{}
	}
}

func (c *MockClient) assertEmpty(t *testing.T) {
	t.Helper()
	select {
	case ev := <-c.RecvChannel:
		t.Fatalf("client %s got unexpected event %s", c.actor.ID, ev.Type)
	default:
	}
}
