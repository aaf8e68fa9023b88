package publisher

import (
	"encoding/json"
	"log"
	"time"

	"github.com/go-stomp/stomp/v3"
)

// STOMPPublisher sends to /topic/ destinations on a STOMP broker
// (ActiveMQ, RabbitMQ with the STOMP plugin, ...).
type STOMPPublisher struct {
	conn        *stomp.Conn
	separator   string
	logSubjects bool
	metrics     PublisherMetrics
}

func NewSTOMPPublisher(addr, user, password, separator string, logSubjects bool, m PublisherMetrics) (*STOMPPublisher, error) {
	opts := []func(*stomp.Conn) error{stomp.ConnOpt.HeartBeat(10*time.Second, 10*time.Second)}
	if user != "" {
		opts = append(opts, stomp.ConnOpt.Login(user, password))
	}
	conn, err := stomp.Dial("tcp", addr, opts...)
	if err != nil {
		return nil, err
	}
	if separator == "" {
		separator = "/"
	}
	if m != nil {
		m.SetConnected(true)
	}
	return &STOMPPublisher{conn: conn, separator: separator, logSubjects: logSubjects, metrics: m}, nil
}

func (p *STOMPPublisher) Close() {
	if p.conn != nil {
		if err := p.conn.Disconnect(); err != nil {
			log.Printf("stomp disconnect: %v", err)
		}
	}
	if p.metrics != nil {
		p.metrics.SetConnected(false)
	}
}

func (p *STOMPPublisher) Publish(topic Topic, msg TrackMessage) error {
	dest := Destination(topic, p.separator)
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Printf("stomp send destination=%s action=%s", dest, msg.Action)
	}
	start := time.Now()
	err = p.conn.Send(dest, "application/json", b)
	observe(p.metrics, start, err)
	return err
}

// Destination renders topic as a STOMP topic destination.
func Destination(topic Topic, separator string) string {
	return "/topic/" + join(topic, separator)
}
