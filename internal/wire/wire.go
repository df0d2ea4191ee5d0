// Package wire holds the routing and header conventions shared by transports
// and the worker that consumes what they carry.
package wire

import (
	"encoding/json"
	"maps"
	"strconv"

	cbus "github.com/next-trace/scg-cmdr/contract/bus"
)

// Header keys set on queued jobs.
const (
	HeaderMessageType = "x-message-type"
	HeaderListener    = "x-listener"
	HeaderDelay       = "x-delay"
	HeaderTries       = "x-tries"
	HeaderKey         = "key"
)

// Routes holds the subject/topic prefixes of one transport.
type Routes struct {
	Commands  string
	Listeners string
}

// Command returns the route for a queued command. An explicit queue wins over the type name.
func (r Routes) Command(cmd cbus.Command, o cbus.QueueOptions) string {
	if o.Queue != "" {
		return r.Commands + o.Queue
	}

	return r.Commands + cbus.TypeOfMessage(cmd).Name()
}

// Listener returns the route for a queued event listener.
func (r Routes) Listener(e cbus.DomainEvent, handler string, o cbus.QueueOptions) string {
	if o.Queue != "" {
		return r.Commands + o.Queue
	}

	return r.Listeners + cbus.TypeOfMessage(e).Name() + "." + handler
}

// Topic returns the destination of an integration event.
func Topic(e cbus.IntegrationEvent, o cbus.PublishOptions) string {
	if o.TopicOverride != "" {
		return o.TopicOverride
	}

	return e.Topic()
}

// QueueHeaders copies caller headers and adds the message type, delay and tries.
func QueueHeaders(m cbus.Message, o cbus.QueueOptions) map[string]string {
	h := make(map[string]string, len(o.Headers)+3)
	maps.Copy(h, o.Headers)

	h[HeaderMessageType] = cbus.TypeOfMessage(m).Name()

	if o.DelaySeconds > 0 {
		h[HeaderDelay] = strconv.Itoa(o.DelaySeconds)
	}

	if o.Tries > 0 {
		h[HeaderTries] = strconv.Itoa(o.Tries)
	}

	return h
}

// ListenerHeaders are QueueHeaders plus the listener name.
func ListenerHeaders(e cbus.DomainEvent, handler string, o cbus.QueueOptions) map[string]string {
	h := QueueHeaders(e, o)
	h[HeaderListener] = handler

	return h
}

// PublishHeaders copies caller headers; withKey also carries the partition key as a header
// for transports without native keys.
func PublishHeaders(o cbus.PublishOptions, withKey bool) map[string]string {
	h := make(map[string]string, len(o.Headers)+1)
	maps.Copy(h, o.Headers)

	if withKey && o.Key != "" {
		h[HeaderKey] = o.Key
	}

	return h
}

// Encode serializes a payload as JSON.
func Encode(v any) ([]byte, error) { return json.Marshal(v) }
