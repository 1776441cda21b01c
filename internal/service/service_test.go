// ABOUTME: Tests for shared service types and the observer set
// ABOUTME: Covers activity ordering, endpoint identity and observer delivery

package service

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActivityCompare(t *testing.T) {
	low := Activity{Level: 1}
	high := Activity{Level: 9}

	assert.Equal(t, -1, low.Compare(high))
	assert.Equal(t, 1, high.Compare(low))
	assert.Equal(t, 0, low.Compare(Activity{Level: 1}))
}

func TestRemoteInfoEndpoint(t *testing.T) {
	info := RemoteInfo{Host: "10.0.0.5", Port: 10150, Account: "admin", Password: "secret"}

	assert.Equal(t, "10.0.0.5:10150", info.Addr())
	assert.True(t, info.SameEndpoint("10.0.0.5", 10150))
	assert.False(t, info.SameEndpoint("10.0.0.5", 10151))
	assert.NotContains(t, info.String(), "secret")
}

func TestObservers_NotifyInRegistrationOrder(t *testing.T) {
	obs := NewObservers(slog.New(slog.NewTextHandler(io.Discard, nil)))

	var got []string
	obs.Add(ObserverFunc(func(ev Event) { got = append(got, "a:"+string(ev.Kind)) }))
	obs.Add(ObserverFunc(func(Event) { panic("bad observer") }))
	removeC := obs.Add(ObserverFunc(func(ev Event) { got = append(got, "c:"+string(ev.Kind)) }))

	obs.Notify(NewEvent(EventStarted, "gw"))
	assert.Equal(t, []string{"a:started", "c:started"}, got)

	removeC()
	removeC()
	assert.Equal(t, 2, obs.Len())

	got = nil
	obs.Notify(NewEvent(EventStopped, "gw"))
	assert.Equal(t, []string{"a:stopped"}, got)
}
