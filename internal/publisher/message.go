package publisher

import (
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
)

type Action string

const (
	ActionPut    Action = "PUT"
	ActionDelete Action = "DELETE"
	ActionClear  Action = "CLEAR"
)

type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// PointGeometry wraps a GeoJSON position as a Point geometry.
func PointGeometry(coords []float64) *Geometry {
	return &Geometry{Type: "Point", Coordinates: coords}
}

// TrackMessage is one update on the live feed. DELETE messages carry no
// geometry; CLEAR messages only carry a context.
type TrackMessage struct {
	Action     Action             `json:"action"`
	ID         string             `json:"id,omitempty"`
	Context    string             `json:"context,omitempty"`
	Geometry   *Geometry          `json:"geometry,omitempty"`
	Properties geojson.Properties `json:"properties,omitempty"`
}

// ClearMessage tells subscribers to drop every track they hold.
func ClearMessage() TrackMessage {
	return TrackMessage{Action: ActionClear, Context: string(ActionClear)}
}

// Topic is a transport-neutral destination, one token per path segment.
type Topic []string

// Publisher delivers messages to a broker without waiting for subscribers.
type Publisher interface {
	Publish(topic Topic, msg TrackMessage) error
	Close()
}

type PublisherMetrics interface {
	PublishedInc()
	PublishErrInc()
	PublishObserve(d time.Duration)
	SetConnected(connected bool)
}

func observe(m PublisherMetrics, start time.Time, err error) {
	if m == nil {
		return
	}
	m.PublishObserve(time.Since(start))
	if err != nil {
		m.PublishErrInc()
	} else {
		m.PublishedInc()
	}
}

// Router derives topics for track messages:
// producers.<service>.data.<company>.<route...>.<id> for updates and
// producers.<service>.control for control messages.
type Router struct {
	Service         string
	RouteProperties []string
}

const missingToken = "_"

func (r Router) Data(msg TrackMessage) Topic {
	t := Topic{"producers", r.Service, "data", company(msg.ID)}
	for _, key := range r.RouteProperties {
		t = append(t, msg.Properties.MustString(key, missingToken))
	}
	return append(t, msg.ID)
}

func (r Router) Control() Topic {
	return Topic{"producers", r.Service, "control"}
}

// company is the two-letter carrier prefix of a flight-style id.
func company(id string) string {
	if len(id) >= 2 {
		return id[:2]
	}
	return "XX"
}

// subjectToken makes s safe as one token of a dotted or slashed subject.
func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = missingToken
	}
	return s
}

func join(t Topic, sep string) string {
	parts := make([]string, len(t))
	for i, tok := range t {
		parts[i] = subjectToken(tok)
	}
	return strings.Join(parts, sep)
}
