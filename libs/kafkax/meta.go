package kafkax

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
)

// EventMeta identifies a message independently of its payload. Consumers key
// their inbox on EventID.
type EventMeta struct {
	EventID   string
	EventType string
}

// Headers renders the meta as message headers, skipping empty values.
func (m EventMeta) Headers() []kafka.Header {
	headers := make([]kafka.Header, 0, 2)
	if m.EventID != "" {
		headers = append(headers, kafka.Header{Key: HeaderEventID, Value: []byte(m.EventID)})
	}
	if m.EventType != "" {
		headers = append(headers, kafka.Header{Key: HeaderEventType, Value: []byte(m.EventType)})
	}
	return headers
}

// ExtractEventMeta reads the meta headers. Producers that do not set them
// still get a usable identity: the message key and the topic.
func ExtractEventMeta(msg kafka.Message) EventMeta {
	meta := EventMeta{
		EventID:   HeaderValue(msg.Headers, HeaderEventID),
		EventType: HeaderValue(msg.Headers, HeaderEventType),
	}
	if meta.EventID == "" {
		meta.EventID = string(msg.Key)
	}
	if meta.EventType == "" {
		meta.EventType = msg.Topic
	}
	return meta
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// SplitBrokers parses a comma separated broker list, dropping blanks and
// duplicates.
func SplitBrokers(raw string) []string {
	var brokers []string
	seen := make(map[string]struct{})
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		if _, dup := seen[b]; dup {
			continue
		}
		seen[b] = struct{}{}
		brokers = append(brokers, b)
	}
	return brokers
}
