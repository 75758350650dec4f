package events

import (
	"fmt"
	"strings"
)

const defPrefix = "hetsync"

type TopicBuilder struct {
	prefix string
}

func NewTopicBuilder(prefix string) *TopicBuilder {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = defPrefix
	}

	return &TopicBuilder{prefix: prefix}
}

func (tb *TopicBuilder) BaseTopic() string {
	return tb.prefix
}

func (tb *TopicBuilder) StatusTopic() string {
	return tb.BaseTopic() + "/status"
}

func (tb *TopicBuilder) RoundCompleteTopic(roundID string) string {
	return fmt.Sprintf("%s/rounds/%s/complete", tb.BaseTopic(), roundID)
}

func (tb *TopicBuilder) WorkerJoinedTopic() string {
	return tb.BaseTopic() + "/workers/joined"
}

func (tb *TopicBuilder) WorkerLeftTopic() string {
	return tb.BaseTopic() + "/workers/left"
}
