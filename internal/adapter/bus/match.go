package bus

import "strings"

// matchTopic applies MQTT filter rules: "+" matches exactly one topic
// segment, a terminal "#" matches the remainder including zero
// segments, any other segment must match literally. Without a trailing
// "#" the pattern only matches topics of equal segment length.
func matchTopic(pattern, topic string) bool {
	pp := strings.Split(pattern, "/")
	tt := strings.Split(topic, "/")

	for i, p := range pp {
		if p == "#" {
			return true
		}
		if i >= len(tt) {
			return false
		}
		if p == "+" || p == tt[i] {
			continue
		}
		return false
	}
	return len(pp) == len(tt)
}
