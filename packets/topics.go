// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

import "strings"

const (
	// Inbound prefixes topics published by clients for the server.
	Inbound = "f"

	// Outbound prefixes topics published by the server for clients.
	Outbound = "t"

	AckSuffix      = "/ack"
	ProgressSuffix = "/prog"
)

// InboundTopic returns the client to server topic for a client and path.
func InboundTopic(clientID, path string) string {
	return Inbound + "/" + clientID + "/" + path
}

// OutboundTopic returns the server to client topic for a client and path.
func OutboundTopic(clientID, path string) string {
	return Outbound + "/" + clientID + "/" + path
}

// AckTopic transforms an inbound topic f/{id}/{path} into the
// outbound acknowledgement topic t/{id}/{path}/ack.
func AckTopic(topic string) (string, error) {
	if !strings.HasPrefix(topic, Inbound+"/") {
		return "", ErrMalformedTopicName
	}
	return Outbound + topic[len(Inbound):] + AckSuffix, nil
}

// ParseInbound splits an inbound topic into the client id and the remaining path.
func ParseInbound(topic string) (clientID, path string, ok bool) {
	rest, found := strings.CutPrefix(topic, Inbound+"/")
	if !found {
		return "", "", false
	}

	clientID, path, found = strings.Cut(rest, "/")
	if !found || clientID == "" || path == "" {
		return "", "", false
	}

	return clientID, path, true
}
