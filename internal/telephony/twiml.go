package telephony

import (
	"errors"
	"sort"
	"strings"

	"github.com/twilio/twilio-go/twiml"
)

// ConnectStreamTwiML renders the call answer document: an optional spoken
// greeting followed by a bidirectional media stream to streamURL. Parameters
// are attached to the stream and come back on its start event.
func ConnectStreamTwiML(greeting, streamURL string, parameters map[string]string) (string, error) {
	if strings.TrimSpace(streamURL) == "" {
		return "", errors.New("stream url is empty")
	}

	names := make([]string, 0, len(parameters))
	for name := range parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]twiml.Element, 0, len(names))
	for _, name := range names {
		params = append(params, &twiml.VoiceParameter{Name: name, Value: parameters[name]})
	}

	stream := &twiml.VoiceStream{Url: streamURL, InnerElements: params}
	connect := &twiml.VoiceConnect{InnerElements: []twiml.Element{stream}}

	verbs := make([]twiml.Element, 0, 2)
	if greeting = strings.TrimSpace(greeting); greeting != "" {
		verbs = append(verbs, &twiml.VoiceSay{Message: greeting})
	}
	verbs = append(verbs, connect)

	return twiml.Voice(verbs)
}
